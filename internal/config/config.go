package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server and CLI need.  It is built once at
// startup and handed to the components that use it.
type Config struct {
	Env         string
	Port        string
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	OpenAIKey     string
	OpenAIBaseURL string
	ChatModel     string
	SummaryModel  string
	LLMTimeout    time.Duration

	FollowUpLimit int
	CORSOrigins   []string

	NotifyChannel string
	KafkaBrokers  []string
	KafkaTopic    string
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool { return c.Env == "development" }

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests need not touch the
// real environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Env:           get("ENV", "production"),
		Port:          get("PORT", "8080"),
		DatabaseURL:   get("DATABASE_URL", ""),
		JWTSecret:     get("JWT_SECRET", ""),
		OpenAIKey:     get("OPENAI_API_KEY", ""),
		OpenAIBaseURL: get("OPENAI_BASE_URL", ""),
		ChatModel:     get("OPENAI_MODEL_CHAT", "gpt-4o-mini"),
		NotifyChannel: get("POSTGRES_NOTIFY_CHANNEL", ""),
		KafkaBrokers:  splitList(get("KAFKA_BROKERS", "")),
		KafkaTopic:    get("KAFKA_TOPIC", "triage.patient_ready"),
		CORSOrigins:   splitList(get("CORS_ORIGINS", "http://localhost:3000")),
	}
	cfg.SummaryModel = get("OPENAI_MODEL_SUMMARY", cfg.ChatModel)

	var err error
	if cfg.TokenTTL, err = time.ParseDuration(get("TOKEN_TTL", "12h")); err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	if cfg.LLMTimeout, err = time.ParseDuration(get("LLM_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("LLM_TIMEOUT: %w", err)
	}
	if cfg.FollowUpLimit, err = strconv.Atoi(get("FOLLOWUP_LIMIT", "10")); err != nil {
		return nil, fmt.Errorf("FOLLOWUP_LIMIT: %w", err)
	}
	if cfg.FollowUpLimit < 0 {
		return nil, errors.New("FOLLOWUP_LIMIT must not be negative")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}
	return cfg, nil
}

// RequireServer checks settings that only the HTTP server needs.
func (c *Config) RequireServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
