package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port           int
	NatsURL        string
	NatsToken      string
	DatabaseURL    string
	LogLevel       string
	APIToken       string
	SlackBotToken  string
	SlackChannel   string
	LowConfidence  float64
	Candidates     int
	Workers        int
	KeywordsPath   string
	MaxUploadBytes int64
}

func Load() Config {
	return Config{
		Port:           envInt("STEPWISE_PORT", 8760),
		NatsURL:        envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:      envStr("NATS_TOKEN", ""),
		DatabaseURL:    envStr("DATABASE_URL", ""),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		APIToken:       envStr("STEPWISE_API_TOKEN", ""),
		SlackBotToken:  envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:   envStr("SLACK_REVIEW_CHANNEL", ""),
		LowConfidence:  envFloat("STEPWISE_LOW_CONFIDENCE", 0.5),
		Candidates:     envInt("STEPWISE_CANDIDATES", 3),
		Workers:        envInt("STEPWISE_WORKERS", 4),
		KeywordsPath:   envStr("STEPWISE_KEYWORDS", ""),
		MaxUploadBytes: int64(envInt("STEPWISE_MAX_UPLOAD_MB", 32)) << 20,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
