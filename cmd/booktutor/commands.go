package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/handler"
	"github.com/xxxsen/booktutor/internal/job"
	"github.com/xxxsen/booktutor/internal/middleware"
	"github.com/xxxsen/booktutor/internal/schedule"
)

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)
	if err := a.vectors.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewSessionCleanupJob(a.rag, cfg.Session.ExpiryHours), cfg.Jobs.SessionCleanup); err != nil {
		return fmt.Errorf("schedule session cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Jobs.EmbeddingCacheMaxAgeDays), cfg.Jobs.EmbeddingCacheCleanup); err != nil {
		return fmt.Errorf("schedule embedding cache cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewReindexJob(a.indexer), cfg.Jobs.Reindex); err != nil {
		return fmt.Errorf("schedule reindex: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Chatbot:  handler.NewChatbotHandler(a.rag, a.feedback, a.retriever, cfg.Retrieval.TopK),
		Chapters: handler.NewChapterHandler(a.chapters),
		Index:    handler.NewIndexHandler(a.indexer, a.retriever),
		Health:   handler.NewHealthHandler(a.db),
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"",
		addr,
		webapi.WithRegister(func(root *gin.RouterGroup) {
			root.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
			handler.RegisterRoutes(root.Group("/api/v1"), deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			middleware.Metrics(),
			middleware.RateLimit(time.Duration(cfg.RateLimitSeconds)*time.Second),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr), zap.String("metrics_path", cfg.MetricsPath))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

func runIndex(ctx context.Context, a *app, chapterID string) error {
	if chapterID != "" {
		return a.indexer.IndexChapter(ctx, chapterID)
	}
	report, err := a.indexer.IndexAllPublished(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d/%d chapters\n", report.Succeeded, report.Total)
	if !report.OK() {
		return fmt.Errorf("failed chapters: %v", report.Failed)
	}
	return nil
}

func runCleanup(ctx context.Context, a *app, hours int, dryRun bool) error {
	if dryRun {
		ids, err := a.rag.ListExpiredSessions(ctx, hours)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		fmt.Printf("%d sessions would be removed\n", len(ids))
		return nil
	}
	removed, err := a.rag.CleanupExpiredSessions(ctx, hours)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d sessions\n", removed)
	return nil
}

func runImport(ctx context.Context, a *app, prefix string, publish bool) error {
	if a.importer == nil {
		return fmt.Errorf("corpus source is not configured")
	}
	report, err := a.importer.Import(ctx, prefix, publish)
	if err != nil {
		return err
	}
	fmt.Printf("created=%d updated=%d skipped=%d failed=%d\n",
		len(report.Created), len(report.Updated), len(report.Skipped), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("failed files: %v", report.Failed)
	}
	return nil
}
