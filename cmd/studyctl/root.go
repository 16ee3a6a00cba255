package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/FarisLab/StudySync/internal/config"
	"github.com/FarisLab/StudySync/internal/logger"
	"github.com/FarisLab/StudySync/internal/store"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "studyctl",
	Short: "Operator tooling for the StudySync API",
	Long: `studyctl reads the same STUDYSYNC_* environment as the API server and
runs maintenance tasks against its database and search engine.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override STUDYSYNC_LOG_LEVEL")
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return cfg, logger.NewWithWriter(os.Stderr, "studyctl", level), nil
}

func openGateway(ctx context.Context, cfg config.Config) (store.Gateway, error) {
	gateway, err := store.Open(ctx, store.Options{
		Driver:        cfg.StoreDriver,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		DatabaseURL:   cfg.DatabaseURL,
		MaxPoolSize:   cfg.DBMaxPool,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return gateway, nil
}
