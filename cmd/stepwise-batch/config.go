package main

import (
	"fmt"
	"os"

	"github.com/MikeSquared-Agency/stepwise/internal/batch"
	"github.com/MikeSquared-Agency/stepwise/internal/ranker"
)

type Config struct {
	InputPath     string
	OutputDir     string
	StatePath     string
	Source        string
	DryRun        bool
	Workers       int
	KeywordsPath  string
	LowConfidence float64
	Candidates    int
	DatabaseURL   string
	NatsURL       string
	NatsToken     string
	LogLevel      string
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("missing -in")
	}
	if c.Workers < 1 {
		return fmt.Errorf("-workers must be at least 1, got %d", c.Workers)
	}
	if err := c.rankerConfig().Validate(); err != nil {
		return err
	}
	if c.DryRun && c.DatabaseURL != "" {
		return fmt.Errorf("-dry-run cannot be combined with -db")
	}
	return nil
}

func (c Config) rankerConfig() ranker.Config {
	return ranker.Config{
		LowConfidenceThreshold:  c.LowConfidence,
		AmbiguousCandidateCount: c.Candidates,
	}
}

func (c Config) batchConfig() batch.Config {
	return batch.Config{
		Input:     c.InputPath,
		OutputDir: c.OutputDir,
		StatePath: c.StatePath,
		Source:    c.Source,
		DryRun:    c.DryRun,
	}
}

func defaultConfig() Config {
	rc := ranker.DefaultConfig()
	return Config{
		StatePath:     batch.DefaultStatePath,
		Source:        "batch",
		Workers:       4,
		LowConfidence: rc.LowConfidenceThreshold,
		Candidates:    rc.AmbiguousCandidateCount,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		NatsToken:     os.Getenv("NATS_TOKEN"),
		LogLevel:      "info",
	}
}
