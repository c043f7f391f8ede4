package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/config"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "booktutor",
		Short: "textbook tutoring chatbot backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	load := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return cfg, nil
	}

	withApp := func(fn func(ctx context.Context, a *app) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(context.Background(), a)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(runServer)
		},
	}

	var chapterID string
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "index one chapter, or every published chapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return runIndex(ctx, a, chapterID)
			})
		},
	}
	indexCmd.Flags().StringVar(&chapterID, "chapter", "", "chapter id to index (default: all published)")

	var hours int
	var dryRun bool
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "remove expired chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return runCleanup(ctx, a, hours, dryRun)
			})
		},
	}
	cleanupCmd.Flags().IntVar(&hours, "hours", 0, "idle hours before a session expires (default: session.expiry_hours)")
	cleanupCmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list the sessions that would be removed")

	var prefix string
	var publish bool
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "import NN-slug.md chapter files from the corpus source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return runImport(ctx, a, prefix, publish)
			})
		},
	}
	importCmd.Flags().StringVar(&prefix, "prefix", "", "corpus prefix to import from")
	importCmd.Flags().BoolVar(&publish, "publish", false, "publish and index imported chapters")

	rootCmd.AddCommand(runCmd, indexCmd, cleanupCmd, importCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}
