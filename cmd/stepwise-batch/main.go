package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/batch"
	"github.com/MikeSquared-Agency/stepwise/internal/hermes"
	"github.com/MikeSquared-Agency/stepwise/internal/processor"
	"github.com/MikeSquared-Agency/stepwise/internal/ranker"
	"github.com/MikeSquared-Agency/stepwise/internal/steps"
	"github.com/MikeSquared-Agency/stepwise/internal/store"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	analyzer, err := newAnalyzer(cfg, logger)
	if err != nil {
		return err
	}

	var pipeline batch.Pipeline
	if cfg.DatabaseURL != "" || cfg.NatsURL != "" {
		var (
			runStore  processor.RunStore
			publisher processor.Publisher
		)
		if cfg.DatabaseURL != "" {
			db, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			runStore = db
		}
		if cfg.NatsURL != "" {
			client, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
			if err != nil {
				return err
			}
			defer client.Close()
			publisher = client
		}
		pipeline = processor.New(analyzer, runStore, publisher, nil, logger)
	}

	return batch.NewRunner(cfg.batchConfig(), analyzer, pipeline, logger).Run(ctx)
}

func newAnalyzer(cfg Config, logger *slog.Logger) (*analysis.Analyzer, error) {
	tables := steps.DefaultTables()
	if cfg.KeywordsPath != "" {
		t, err := steps.LoadTables(cfg.KeywordsPath)
		if err != nil {
			return nil, err
		}
		tables = t
	}
	reg, err := steps.DefaultRegistry(tables)
	if err != nil {
		return nil, err
	}
	rk, err := ranker.New(cfg.rankerConfig(), reg)
	if err != nil {
		return nil, err
	}
	return analysis.New(rk, cfg.Workers, logger), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	// Avoid mutating the global FlagSet if called from tests.
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Transcript JSON file, or a directory searched recursively for *.json")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory for <name>.steps.json reports (default: next to each input)")
	fs.StringVar(&cfg.StatePath, "state", cfg.StatePath, "Resume state file")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "Source label recorded on persisted runs")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Analyse and summarise without writing reports, state or runs")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Transcripts analysed concurrently per file")
	fs.StringVar(&cfg.KeywordsPath, "keywords", cfg.KeywordsPath, "YAML keyword table overrides")
	fs.Float64Var(&cfg.LowConfidence, "threshold", cfg.LowConfidence, "Low-confidence threshold in [0,1]")
	fs.IntVar(&cfg.Candidates, "candidates", cfg.Candidates, "Suggestions kept for ambiguous dialogues")
	fs.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "Postgres URL to persist runs into (default: $DATABASE_URL)")
	fs.StringVar(&cfg.NatsURL, "nats", cfg.NatsURL, "NATS URL to publish analysis events to")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/stepwise-batch -in data/multiwoz -out reports")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/stepwise-batch -in dialogues.json -dry-run -threshold 0.6")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.InputPath != "" {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	if cfg.OutputDir != "" {
		cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	}
	return cfg, nil
}
