package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
	"github.com/xxxsen/booktutor/internal/vectorstore"
)

type fakeChapters struct {
	items map[string]*model.Chapter
}

func (f *fakeChapters) GetByID(ctx context.Context, id string) (*model.Chapter, error) {
	ch, ok := f.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeChapters) ListByStatus(ctx context.Context, status model.ChapterStatus) ([]model.Chapter, error) {
	var out []model.Chapter
	for _, id := range []string{"c1", "c2", "c3"} {
		if ch, ok := f.items[id]; ok && ch.Status == status {
			out = append(out, *ch)
		}
	}
	return out, nil
}

type fakeChunks struct {
	rows       map[string][]model.ChunkRecord
	replaceErr error
}

func (f *fakeChunks) ReplaceForChapter(ctx context.Context, chapterID string, chunks []model.ChunkRecord) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.rows[chapterID] = chunks
	return nil
}

func (f *fakeChunks) ListIDsByChapter(ctx context.Context, chapterID string) ([]string, error) {
	var ids []string
	for _, r := range f.rows[chapterID] {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (f *fakeChunks) DeleteByChapter(ctx context.Context, chapterID string) (int64, error) {
	n := int64(len(f.rows[chapterID]))
	delete(f.rows, chapterID)
	return n, nil
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *localLocker) LockChapter(ctx context.Context, chapterID string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	m, ok := l.locks[chapterID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[chapterID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fixture struct {
	chapters *fakeChapters
	chunks   *fakeChunks
	embedder *fakeEmbedder
	store    *vectorstore.MemoryStore
	idx      *Indexer
}

func newFixture(content string) *fixture {
	f := &fixture{
		chapters: &fakeChapters{items: map[string]*model.Chapter{
			"c1": {ID: "c1", Title: "Sensors", Slug: "sensors", ChapterNumber: 3, Content: content, Status: model.ChapterStatusPublished},
		}},
		chunks:   &fakeChunks{rows: map[string][]model.ChunkRecord{}},
		embedder: &fakeEmbedder{},
		store:    vectorstore.NewMemoryStore(),
	}
	f.idx = New(f.chapters, f.chunks, &localLocker{}, f.embedder, f.store, Options{ChunkSize: 40, ChunkOverlap: 5, StripMarkdown: true})
	return f
}

const sensorsChapter = `# Sensors

Robots perceive the world. Cameras capture light. Lidar measures distance with lasers.

## Actuators

Motors convert energy into motion. Gearboxes trade speed for torque!`

func TestIndexChapter_WritesBothStoresWithStableIDs(t *testing.T) {
	f := newFixture(sensorsChapter)
	ctx := context.Background()

	require.NoError(t, f.idx.IndexChapter(ctx, "c1"))
	first, _ := f.chunks.ListIDsByChapter(ctx, "c1")
	require.NotEmpty(t, first)
	require.Equal(t, len(first), f.store.Len())
	require.Equal(t, ChunkID("c1", 0), first[0])

	require.NoError(t, f.idx.UpdateChapterIndex(ctx, "c1"))
	second, _ := f.chunks.ListIDsByChapter(ctx, "c1")
	require.Equal(t, first, second)
	require.Equal(t, len(second), f.store.Len())

	points, err := f.store.Retrieve(ctx, []string{second[0]})
	require.NoError(t, err)
	require.Len(t, points, 1)
	payload := points[0].Payload
	require.Equal(t, "c1", payload[model.MetaChapterID])
	require.Equal(t, 3, payload[model.MetaChapterNumber])
	require.Equal(t, "chapter_sensors_chunk_0", payload[model.MetaSource])
	require.Equal(t, "Sensors", payload[model.MetaSection])
	require.NotEmpty(t, payload[model.MetaContent])
}

func TestIndexChapter_SectionsFollowHeadings(t *testing.T) {
	f := newFixture(sensorsChapter)
	require.NoError(t, f.idx.IndexChapter(context.Background(), "c1"))
	rows := f.chunks.rows["c1"]
	last := rows[len(rows)-1]
	require.Equal(t, "Actuators", last.Metadata[model.MetaSection])
}

func TestIndexChapter_EmptyChapterIsNoop(t *testing.T) {
	f := newFixture("   ")
	require.NoError(t, f.idx.IndexChapter(context.Background(), "c1"))
	require.Equal(t, 0, f.store.Len())
	require.Empty(t, f.chunks.rows)
}

func TestIndexChapter_MissingChapter(t *testing.T) {
	f := newFixture(sensorsChapter)
	err := f.idx.IndexChapter(context.Background(), "nope")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIndexChapter_EmbedFailureWritesNothing(t *testing.T) {
	f := newFixture(sensorsChapter)
	f.embedder.err = errors.New("backend down")
	require.Error(t, f.idx.IndexChapter(context.Background(), "c1"))
	require.Equal(t, 0, f.store.Len())
	require.Empty(t, f.chunks.rows)
}

func TestIndexChapter_RelationalFailureCompensates(t *testing.T) {
	f := newFixture(sensorsChapter)
	f.chunks.replaceErr = errors.New("tx aborted")
	require.Error(t, f.idx.IndexChapter(context.Background(), "c1"))
	require.Equal(t, 0, f.store.Len())
}

func TestIndexChapter_FailedReindexKeepsLiveVectors(t *testing.T) {
	f := newFixture(sensorsChapter)
	ctx := context.Background()
	require.NoError(t, f.idx.IndexChapter(ctx, "c1"))
	ids, _ := f.chunks.ListIDsByChapter(ctx, "c1")
	before, err := f.store.Retrieve(ctx, ids)
	require.NoError(t, err)
	require.Len(t, before, len(ids))

	f.chapters.items["c1"].Content = sensorsChapter + "\n\nWheels roll on flat ground. Legs climb stairs. Tracks cross sand."
	f.chunks.replaceErr = errors.New("tx aborted")
	require.Error(t, f.idx.IndexChapter(ctx, "c1"))

	require.Equal(t, len(ids), f.store.Len())
	after, err := f.store.Retrieve(ctx, ids)
	require.NoError(t, err)
	require.ElementsMatch(t, before, after)
	require.Len(t, f.chunks.rows["c1"], len(ids))
}

func TestIndexChapter_RemovesStaleVectors(t *testing.T) {
	f := newFixture(sensorsChapter)
	ctx := context.Background()
	require.NoError(t, f.idx.IndexChapter(ctx, "c1"))
	require.Greater(t, f.store.Len(), 1)

	f.chapters.items["c1"].Content = "Short now."
	require.NoError(t, f.idx.IndexChapter(ctx, "c1"))
	require.Equal(t, 1, f.store.Len())
	require.Len(t, f.chunks.rows["c1"], 1)
}

func TestDeleteChapterIndex(t *testing.T) {
	f := newFixture(sensorsChapter)
	ctx := context.Background()
	require.NoError(t, f.idx.DeleteChapterIndex(ctx, "c1"))

	require.NoError(t, f.idx.IndexChapter(ctx, "c1"))
	require.NoError(t, f.idx.DeleteChapterIndex(ctx, "c1"))
	require.Equal(t, 0, f.store.Len())
	require.Empty(t, f.chunks.rows["c1"])
}

func TestIndexAllPublished_ReportsFailures(t *testing.T) {
	f := newFixture(sensorsChapter)
	f.chapters.items["c2"] = &model.Chapter{ID: "c2", Title: "Draft", Slug: "draft", Content: "Not yet.", Status: model.ChapterStatusDraft}
	f.chapters.items["c3"] = &model.Chapter{ID: "c3", Title: "Control", Slug: "control", Content: "PID loops. Feedback.", Status: model.ChapterStatusPublished}

	report, err := f.idx.IndexAllPublished(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Total)
	require.Equal(t, 2, report.Succeeded)
	require.True(t, report.OK())

	f.embedder.err = errors.New("down")
	report, err = f.idx.IndexAllPublished(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c3"}, report.Failed)
	require.False(t, report.OK())
}

func TestChunkText_PacksSentences(t *testing.T) {
	text := "One. Two. Three."
	chunks := ChunkText(text, 10, 0)
	require.Equal(t, []TextChunk{
		{Content: "One. Two.", Start: 0, End: 9},
		{Content: "Three.", Start: 10, End: 16},
	}, chunks)
}

func TestChunkText_SeedsOverlap(t *testing.T) {
	text := "One. Two. Three."
	chunks := ChunkText(text, 10, 3)
	require.Len(t, chunks, 2)
	require.Equal(t, "wo. Three.", chunks[1].Content)
	require.True(t, strings.HasSuffix(chunks[0].Content, "wo."))
}

func TestChunkText_SkipsSeedThatDoesNotFit(t *testing.T) {
	chunks := ChunkText("One. Two. Three.", 10, 4)
	require.Len(t, chunks, 2)
	require.Equal(t, "Three.", chunks[1].Content)
}

func TestChunkText_OffsetsMatchContent(t *testing.T) {
	text := "  Humanoids walk.  They balance!   Do they fall? Rarely\n"
	for _, c := range ChunkText(text, 20, 4) {
		require.Equal(t, c.Content, text[c.Start:c.End])
		require.Equal(t, strings.TrimSpace(c.Content), c.Content)
	}
}

func TestChunkText_OversizeSentenceStandsAlone(t *testing.T) {
	chunks := ChunkText("Tiny. This sentence is far longer than the limit. End.", 10, 0)
	require.Len(t, chunks, 3)
	require.Equal(t, "This sentence is far longer than the limit.", chunks[1].Content)
}

func TestChunkText_Empty(t *testing.T) {
	require.Empty(t, ChunkText(" \n\t", 10, 2))
}

func TestSplitSentences_KeepsDecimals(t *testing.T) {
	text := "Pi is 3.14 roughly. Really?! Yes"
	var got []string
	for _, s := range splitSentences(text) {
		got = append(got, text[s.start:s.end])
	}
	require.Equal(t, []string{"Pi is 3.14 roughly.", "Really?!", "Yes"}, got)
}

func TestPlainText_Blocks(t *testing.T) {
	md := "# Title\n\nSome *bold* text\nwrapped.\n\n- one\n- two\n\n```go\nfmt.Println(1)\n```\n\n## Next\n\nEnd."
	text, sections := PlainText(md)
	require.Equal(t, "Title\n\nSome bold text wrapped.\n\none\ntwo\n\nfmt.Println(1)\n\nNext\n\nEnd.", text)
	require.Equal(t, []Section{{Offset: 0, Title: "Title"}, {Offset: strings.Index(text, "Next"), Title: "Next"}}, sections)
	require.Equal(t, "Title", SectionAt(sections, 3))
	require.Equal(t, "Next", SectionAt(sections, len(text)-1))
	require.Equal(t, "", SectionAt(nil, 5))
}
