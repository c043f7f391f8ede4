package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

func TestParseContextMode(t *testing.T) {
	mode, err := ParseContextMode(" Global ")
	require.NoError(t, err)
	require.Equal(t, ContextModeGlobal, mode)

	mode, err = ParseContextMode("selected_text")
	require.NoError(t, err)
	require.Equal(t, ContextModeSelectedText, mode)

	_, err = ParseContextMode("chapter")
	require.ErrorIs(t, err, appErr.ErrInvalidMode)
	require.False(t, ContextMode(0).Valid())
	require.Equal(t, "unknown", ContextMode(0).String())
}

func TestContextModeJSON(t *testing.T) {
	var s Session
	require.NoError(t, json.Unmarshal([]byte(`{"id":"s","context_mode":"selected_text"}`), &s))
	require.Equal(t, ContextModeSelectedText, s.ContextMode)

	raw, err := json.Marshal(Session{ID: "s", ContextMode: ContextModeGlobal})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"context_mode":"global"`)

	require.Error(t, json.Unmarshal([]byte(`{"context_mode":"nope"}`), &s))
}

func TestSessionIsExpired(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := &Session{LastInteractionAt: now.Add(-25 * time.Hour).UnixMilli()}
	require.True(t, s.IsExpired(now, 24*time.Hour))
	s.LastInteractionAt = now.Add(-time.Hour).UnixMilli()
	require.False(t, s.IsExpired(now, 24*time.Hour))
}

func TestMetaAccessors(t *testing.T) {
	meta := map[string]interface{}{
		"f":   float64(3),
		"n":   json.Number("7"),
		"s":   "12",
		"bad": "x",
		"nil": nil,
	}
	for key, want := range map[string]int{"f": 3, "n": 7, "s": 12} {
		got, ok := MetaInt(meta, key)
		require.True(t, ok, key)
		require.Equal(t, want, got, key)
	}
	_, ok := MetaInt(meta, "bad")
	require.False(t, ok)
	_, ok = MetaInt(meta, "nil")
	require.False(t, ok)

	str, ok := MetaString(meta, "f")
	require.True(t, ok)
	require.Equal(t, "3", str)
	_, ok = MetaString(meta, "missing")
	require.False(t, ok)
}

func TestChapterStatusValid(t *testing.T) {
	require.True(t, ChapterStatusReview.Valid())
	require.False(t, ChapterStatus("archived").Valid())
}
