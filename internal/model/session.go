package model

import (
	"fmt"
	"strings"
	"time"

	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

// ContextMode is either ContextModeGlobal or ContextModeSelectedText. The zero
// value is not a valid mode.
type ContextMode uint8

const (
	ContextModeGlobal ContextMode = iota + 1
	ContextModeSelectedText
)

func ParseContextMode(s string) (ContextMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "global":
		return ContextModeGlobal, nil
	case "selected_text":
		return ContextModeSelectedText, nil
	}
	return 0, fmt.Errorf("unknown context mode %q: %w", s, appErr.ErrInvalidMode)
}

func (m ContextMode) Valid() bool {
	switch m {
	case ContextModeGlobal, ContextModeSelectedText:
		return true
	}
	return false
}

func (m ContextMode) String() string {
	switch m {
	case ContextModeGlobal:
		return "global"
	case ContextModeSelectedText:
		return "selected_text"
	}
	return "unknown"
}

func (m ContextMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid context mode %d", m)
	}
	return []byte(m.String()), nil
}

func (m *ContextMode) UnmarshalText(data []byte) error {
	mode, err := ParseContextMode(string(data))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

type Session struct {
	ID                string      `json:"id"`
	StudentID         string      `json:"student_id,omitempty"`
	StartedAt         int64       `json:"started_at"`
	LastInteractionAt int64       `json:"last_interaction_at"`
	ContextMode       ContextMode `json:"context_mode"`
	ContextLength     int         `json:"context_length"`
	// Expired is derived on load: the session sat idle past the expiry
	// horizon before this access. It is not stored.
	Expired bool `json:"expired"`
}

// IsExpired reports whether the session has been idle for longer than horizon.
func (s *Session) IsExpired(now time.Time, horizon time.Duration) bool {
	return now.Sub(time.UnixMilli(s.LastInteractionAt)) > horizon
}

type SessionStats struct {
	SessionID         string  `json:"session_id"`
	StartedAt         int64   `json:"started_at"`
	LastInteractionAt int64   `json:"last_interaction_at"`
	ContextMode       string  `json:"context_mode"`
	InteractionCount  int64   `json:"interaction_count"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgAccuracy       float64 `json:"avg_accuracy"`
	Expired           bool    `json:"expired"`
}
