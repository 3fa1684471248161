package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/stepwise/internal/analysis"
	"github.com/MikeSquared-Agency/stepwise/internal/api"
	"github.com/MikeSquared-Agency/stepwise/internal/config"
	"github.com/MikeSquared-Agency/stepwise/internal/hermes"
	"github.com/MikeSquared-Agency/stepwise/internal/processor"
	"github.com/MikeSquared-Agency/stepwise/internal/ranker"
	"github.com/MikeSquared-Agency/stepwise/internal/slack"
	"github.com/MikeSquared-Agency/stepwise/internal/steps"
	"github.com/MikeSquared-Agency/stepwise/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("stepwise starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Classifiers
	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		slog.Error("invalid classifier configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("classifiers ready",
		"steps", analyzer.Ranker().Registry().StepNames(),
		"low_confidence", cfg.LowConfidence,
		"candidates", cfg.Candidates,
		"workers", cfg.Workers,
	)

	// Database (optional: without it runs are not stored)
	var (
		runStore processor.RunStore
		apiStore api.RunStore
	)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		runStore, apiStore = db, db
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, running without persistence")
	}

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Slack poster (optional, no review loop without it)
	var poster processor.ReviewPoster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without review loop")
	}

	proc := processor.New(analyzer, runStore, hermesClient, poster, slog.Default())

	// Uploads are shared across replicas; reactions must reach the replica
	// that posted the review thread, so every replica sees them.
	if err := hermesClient.QueueSubscribe(hermes.SubjectTranscriptUploaded, "stepwise", proc.HandleTranscriptUploaded); err != nil {
		slog.Error("failed to subscribe to transcript uploads", "error", err)
		os.Exit(1)
	}
	if poster != nil {
		if err := hermesClient.Subscribe(hermes.SubjectSlackReaction, proc.HandleReaction); err != nil {
			slog.Error("failed to subscribe to slack reactions", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	var pipeline api.Pipeline
	if runStore != nil {
		pipeline = proc
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, analyzer, apiStore, pipeline)
	srv.SetMaxUpload(cfg.MaxUploadBytes)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	if err := hermesClient.Publish(hermes.SubjectAgentRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"steps":     analyzer.Ranker().Registry().StepNames(),
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("stepwise ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("stepwise stopped")
}

func newAnalyzer(cfg config.Config) (*analysis.Analyzer, error) {
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
	rk, err := ranker.New(ranker.Config{
		LowConfidenceThreshold:  cfg.LowConfidence,
		AmbiguousCandidateCount: cfg.Candidates,
	}, reg)
	if err != nil {
		return nil, err
	}
	return analysis.New(rk, cfg.Workers, slog.Default()), nil
}

func setupLogging(level string) {
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
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
