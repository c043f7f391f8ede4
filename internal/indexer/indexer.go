package indexer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/metrics"
	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
	"github.com/xxxsen/booktutor/internal/pkg/timeutil"
	"github.com/xxxsen/booktutor/internal/vectorstore"
)

type IChapterSource interface {
	GetByID(ctx context.Context, id string) (*model.Chapter, error)
	ListByStatus(ctx context.Context, status model.ChapterStatus) ([]model.Chapter, error)
}

type IChunkStore interface {
	ReplaceForChapter(ctx context.Context, chapterID string, chunks []model.ChunkRecord) error
	ListIDsByChapter(ctx context.Context, chapterID string) ([]string, error)
	DeleteByChapter(ctx context.Context, chapterID string) (int64, error)
}

// ChapterLocker serializes index mutations of one chapter.
type ChapterLocker interface {
	LockChapter(ctx context.Context, chapterID string) (func(), error)
}

type IEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	StripMarkdown bool
}

type Indexer struct {
	chapters IChapterSource
	chunks   IChunkStore
	locker   ChapterLocker
	embedder IEmbedder
	store    vectorstore.Store
	opts     Options
}

type IndexReport struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed"`
}

func (r *IndexReport) OK() bool {
	return len(r.Failed) == 0
}

func New(chapters IChapterSource, chunks IChunkStore, locker ChapterLocker, embedder IEmbedder, store vectorstore.Store, opts Options) *Indexer {
	return &Indexer{
		chapters: chapters,
		chunks:   chunks,
		locker:   locker,
		embedder: embedder,
		store:    store,
		opts:     opts,
	}
}

// ChunkID derives the stable point id of a chunk.
func ChunkID(chapterID string, index int) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s_%d", chapterID, index))).String()
}

func (i *Indexer) IndexChapter(ctx context.Context, chapterID string) error {
	unlock, err := i.locker.LockChapter(ctx, chapterID)
	if err != nil {
		return fmt.Errorf("lock chapter %s: %w", chapterID, err)
	}
	defer unlock()
	err = i.indexLocked(ctx, chapterID)
	observeIndex(err)
	return err
}

func (i *Indexer) DeleteChapterIndex(ctx context.Context, chapterID string) error {
	unlock, err := i.locker.LockChapter(ctx, chapterID)
	if err != nil {
		return fmt.Errorf("lock chapter %s: %w", chapterID, err)
	}
	defer unlock()
	return i.deleteLocked(ctx, chapterID)
}

// UpdateChapterIndex deletes then re-indexes. A failure between the two steps
// leaves the chapter unindexed until the next run.
func (i *Indexer) UpdateChapterIndex(ctx context.Context, chapterID string) error {
	unlock, err := i.locker.LockChapter(ctx, chapterID)
	if err != nil {
		return fmt.Errorf("lock chapter %s: %w", chapterID, err)
	}
	defer unlock()
	if err := i.deleteLocked(ctx, chapterID); err != nil {
		observeIndex(err)
		return err
	}
	err = i.indexLocked(ctx, chapterID)
	observeIndex(err)
	return err
}

func (i *Indexer) IndexAllPublished(ctx context.Context) (*IndexReport, error) {
	chapters, err := i.chapters.ListByStatus(ctx, model.ChapterStatusPublished)
	if err != nil {
		return nil, err
	}
	report := &IndexReport{Total: len(chapters)}
	for _, ch := range chapters {
		if err := i.IndexChapter(ctx, ch.ID); err != nil {
			logutil.GetLogger(ctx).Error("index chapter failed", zap.String("chapter_id", ch.ID), zap.Error(err))
			report.Failed = append(report.Failed, ch.ID)
			continue
		}
		report.Succeeded++
	}
	logutil.GetLogger(ctx).Info("index published chapters finished",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (i *Indexer) indexLocked(ctx context.Context, chapterID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("chapter_id", chapterID))
	ch, err := i.chapters.GetByID(ctx, chapterID)
	if err != nil {
		return err
	}

	// stage
	records, texts := i.buildRecords(ch)
	if len(records) == 0 {
		logger.Info("chapter has no content to index")
		return nil
	}
	vectors, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chapter chunks: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedded %d of %d chunks: %w", len(vectors), len(records), appErr.ErrUpstream)
	}
	previous, err := i.chunks.ListIDsByChapter(ctx, chapterID)
	if err != nil {
		return err
	}
	// live vectors share ids with the staged ones, keep a copy to restore
	var snapshot []vectorstore.Point
	if len(previous) > 0 {
		if snapshot, err = i.store.Retrieve(ctx, previous); err != nil {
			return fmt.Errorf("snapshot chunk vectors: %w: %w", appErr.ErrUpstream, err)
		}
	}

	// commit vectors
	ids := make([]string, 0, len(records))
	points := make([]vectorstore.Point, 0, len(records))
	for idx, rec := range records {
		payload := make(map[string]interface{}, len(rec.Metadata)+1)
		for k, v := range rec.Metadata {
			payload[k] = v
		}
		payload[model.MetaContent] = rec.Content
		points = append(points, vectorstore.Point{ID: rec.ID, Vector: vectors[idx], Payload: payload})
		ids = append(ids, rec.ID)
	}
	if err := i.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return fmt.Errorf("ensure collection: %w: %w", appErr.ErrUpstream, err)
	}
	if err := i.store.Upsert(ctx, points); err != nil {
		i.compensate(ctx, subtract(ids, previous), snapshot)
		return fmt.Errorf("upsert chunk vectors: %w: %w", appErr.ErrUpstream, err)
	}

	// commit relational
	if err := i.chunks.ReplaceForChapter(ctx, chapterID, records); err != nil {
		i.compensate(ctx, subtract(ids, previous), snapshot)
		return fmt.Errorf("save chunk records: %w", err)
	}

	if stale := subtract(previous, ids); len(stale) > 0 {
		if err := i.store.Delete(ctx, stale); err != nil {
			logger.Warn("failed to delete stale chunk vectors", zap.Int("count", len(stale)), zap.Error(err))
		}
	}
	logger.Info("chapter indexed", zap.Int("chunks", len(records)))
	return nil
}

func (i *Indexer) deleteLocked(ctx context.Context, chapterID string) error {
	ids, err := i.chunks.ListIDsByChapter(ctx, chapterID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := i.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete chunk vectors: %w: %w", appErr.ErrUpstream, err)
	}
	if _, err := i.chunks.DeleteByChapter(ctx, chapterID); err != nil {
		return fmt.Errorf("delete chunk records: %w", err)
	}
	logutil.GetLogger(ctx).Info("chapter index deleted", zap.String("chapter_id", chapterID), zap.Int("chunks", len(ids)))
	return nil
}

func (i *Indexer) buildRecords(ch *model.Chapter) ([]model.ChunkRecord, []string) {
	content := ch.Content
	var sections []Section
	if i.opts.StripMarkdown {
		content, sections = PlainText(ch.Content)
	}
	pieces := ChunkText(content, i.opts.ChunkSize, i.opts.ChunkOverlap)
	now := timeutil.NowUnixMilli()
	records := make([]model.ChunkRecord, 0, len(pieces))
	texts := make([]string, 0, len(pieces))
	for idx, p := range pieces {
		section := SectionAt(sections, p.Start)
		if section == "" {
			section = ch.Title
		}
		records = append(records, model.ChunkRecord{
			ID:          ChunkID(ch.ID, idx),
			ChapterID:   ch.ID,
			Content:     p.Content,
			ChunkIndex:  idx,
			StartOffset: p.Start,
			EndOffset:   p.End,
			Ctime:       now,
			Metadata: map[string]interface{}{
				model.MetaChapterID:     ch.ID,
				model.MetaChapterTitle:  ch.Title,
				model.MetaChapterNumber: ch.ChapterNumber,
				model.MetaChunkIndex:    idx,
				model.MetaStartOffset:   p.Start,
				model.MetaEndOffset:     p.End,
				model.MetaSection:       section,
				model.MetaSource:        fmt.Sprintf("chapter_%s_chunk_%d", ch.Slug, idx),
			},
		})
		texts = append(texts, p.Content)
	}
	return records, texts
}

// compensate removes vectors this run added and restores the ones it
// overwrote.
func (i *Indexer) compensate(ctx context.Context, added []string, snapshot []vectorstore.Point) {
	logger := logutil.GetLogger(ctx)
	logger.Warn("rolling back staged chunk vectors", zap.Int("added", len(added)), zap.Int("restored", len(snapshot)))
	if len(added) > 0 {
		if err := i.store.Delete(ctx, added); err != nil {
			logger.Error("compensating vector delete failed", zap.Int("count", len(added)), zap.Error(err))
		}
	}
	if len(snapshot) > 0 {
		if err := i.store.Upsert(ctx, snapshot); err != nil {
			logger.Error("restoring chunk vectors failed", zap.Int("count", len(snapshot)), zap.Error(err))
		}
	}
}

func observeIndex(err error) {
	if err != nil {
		metrics.IndexChapters.WithLabelValues(metrics.OutcomeFailure).Inc()
		return
	}
	metrics.IndexChapters.WithLabelValues(metrics.OutcomeSuccess).Inc()
}

func subtract(all, keep []string) []string {
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var out []string
	for _, id := range all {
		if _, ok := kept[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
