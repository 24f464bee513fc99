// Reflective coach main entry point
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/assembler"
	"github.com/reflective-journal-kernel/internal/config"
	"github.com/reflective-journal-kernel/internal/graph"
	"github.com/reflective-journal-kernel/internal/ingest"
	"github.com/reflective-journal-kernel/internal/llm"
	"github.com/reflective-journal-kernel/internal/session"
	"github.com/reflective-journal-kernel/internal/tracking"
)

func main() {
	configPath := flag.String("config", "coach.yaml", "path to YAML config")
	verbose := flag.Bool("verbose", false, "log at debug level to stderr")
	flag.Parse()

	logger := newLogger(*verbose)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.LLM.APIKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is not set; coaching responses will fail.")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	graphStore, err := graph.NewStore(graph.Config{
		Path:          cfg.GraphPath(),
		WalkCacheSize: cfg.WalkCacheSize,
		WalkCacheTTL:  cfg.WalkCacheTTL.Std(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer graphStore.Close()

	trackingStore, err := tracking.NewStore(tracking.Config{Dir: cfg.TrackingDir()}, logger)
	if err != nil {
		logger.Fatal("Failed to open tracking store", zap.Error(err))
	}

	client := llm.NewClient(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxRetries: cfg.LLM.MaxRetries,
		Timeout:    cfg.LLM.Timeout.Std(),
	}, logger)

	asm := assembler.New(assembler.Config{
		Dir:               cfg.SessionDir(),
		WeeklyContextPath: cfg.WeeklyContextPath(),
	}, trackingStore, graphStore, logger)

	pipeline := ingest.New(graphStore, client, logger)

	coach := session.New(cfg, client, asm, trackingStore, pipeline, os.Stdin, os.Stdout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coach.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("Session ended with error", zap.Error(err))
	}
}

// newLogger keeps structured logs on stderr so they never interleave
// with the interactive prompt on stdout.
func newLogger(verbose bool) *zap.Logger {
	level := zap.WarnLevel
	if verbose {
		level = zap.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
