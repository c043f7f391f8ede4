package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/filestore"
	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

const maxChapterBytes = 4 << 20

var chapterFileRe = regexp.MustCompile(`^(\d+)-([a-z0-9][a-z0-9-]*)\.md$`)

type ImportReport struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
	// Validation holds the content checks of every imported chapter by slug.
	Validation map[string]*model.ContentReport `json:"validation"`
}

type ImportService struct {
	source   filestore.Source
	chapters *ChapterService
}

func NewImportService(source filestore.Source, chapters *ChapterService) *ImportService {
	return &ImportService{source: source, chapters: chapters}
}

// Import reads every NN-slug.md file under prefix and creates or updates the
// matching chapter by slug.
func (s *ImportService) Import(ctx context.Context, prefix string, publish bool) (*ImportReport, error) {
	logger := logutil.GetLogger(ctx)
	keys, err := s.source.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}
	report := &ImportReport{Validation: map[string]*model.ContentReport{}}
	for _, key := range keys {
		number, slug, ok := parseChapterFile(key)
		if !ok {
			report.Skipped = append(report.Skipped, key)
			continue
		}
		content, err := s.read(ctx, key)
		if err != nil {
			logger.Error("read chapter file failed", zap.String("key", key), zap.Error(err))
			report.Failed = append(report.Failed, key)
			continue
		}
		ch, created, err := s.upsert(ctx, number, slug, content, publish)
		if err != nil {
			logger.Error("import chapter failed", zap.String("key", key), zap.Error(err))
			report.Failed = append(report.Failed, key)
			continue
		}
		report.Validation[slug] = ch.Validation
		if created {
			report.Created = append(report.Created, slug)
		} else {
			report.Updated = append(report.Updated, slug)
		}
	}
	logger.Info("corpus import finished",
		zap.Int("created", len(report.Created)),
		zap.Int("updated", len(report.Updated)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (s *ImportService) read(ctx context.Context, key string) (string, error) {
	rc, err := s.source.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxChapterBytes+1))
	if err != nil {
		return "", err
	}
	if len(raw) > maxChapterBytes {
		return "", fmt.Errorf("chapter file exceeds %d bytes: %w", maxChapterBytes, appErr.ErrInvalid)
	}
	return string(raw), nil
}

func (s *ImportService) upsert(ctx context.Context, number int, slug, content string, publish bool) (*model.Chapter, bool, error) {
	in := ChapterInput{
		Title:         chapterTitle(content, slug),
		Slug:          slug,
		ChapterNumber: number,
		Content:       content,
		Status:        model.ChapterStatusDraft,
	}
	existing, err := s.chapters.GetBySlug(ctx, slug)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, false, err
	}
	if publish || (existing != nil && existing.Status == model.ChapterStatusPublished) {
		in.Status = model.ChapterStatusPublished
	}
	if existing == nil {
		ch, err := s.chapters.Create(ctx, in)
		return ch, true, err
	}
	in.Summary = existing.Summary
	in.LearningOutcomes = existing.LearningOutcomes
	if existing.Status == model.ChapterStatusReview && !publish {
		in.Status = model.ChapterStatusReview
	}
	ch, err := s.chapters.Update(ctx, existing.ID, in)
	return ch, false, err
}

func parseChapterFile(key string) (int, string, bool) {
	m := chapterFileRe.FindStringSubmatch(strings.ToLower(path.Base(key)))
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, "", false
	}
	return n, m[2], true
}

// chapterTitle returns the first H1 text, or the slug in title case.
func chapterTitle(content, slug string) string {
	source := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		h, ok := node.(*ast.Heading)
		if !ok || h.Level != 1 {
			continue
		}
		var sb strings.Builder
		_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if t, ok := n.(*ast.Text); ok && entering {
				sb.Write(t.Segment.Value(source))
			}
			return ast.WalkContinue, nil
		})
		if title := strings.TrimSpace(sb.String()); title != "" {
			return title
		}
	}
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
