// Package config loads and validates environment-based configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	SessionSecret      string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchRedirectURI  string
	BotUserID          string
	WebhookCallbackURL string
	WebhookSecret      string
	CommandPrefix      string
	DecayInterval      time.Duration
	DefaultCooldown    time.Duration
	MaxSSEClients      int
	LogLevel           string
	LogFormat          string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		TwitchClientID:     getEnv("TWITCH_CLIENT_ID", ""),
		TwitchClientSecret: getEnv("TWITCH_CLIENT_SECRET", ""),
		TwitchRedirectURI:  getEnv("TWITCH_REDIRECT_URI", "http://localhost:8080/auth/callback"),
		BotUserID:          getEnv("TWITCH_BOT_USER_ID", ""),
		WebhookCallbackURL: getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		CommandPrefix:      getEnv("COMMAND_PREFIX", "!"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.DecayInterval, err = getDuration("DECAY_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.DefaultCooldown, err = getDuration("DEFAULT_COOLDOWN", 60*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxSSEClients, err = getInt("MAX_SSE_CLIENTS", 20); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(cfg.CommandPrefix) != 1 {
		return nil, fmt.Errorf("COMMAND_PREFIX must be a single character, got %q", cfg.CommandPrefix)
	}

	// Webhook config: callback URL and secret must be set together
	if cfg.WebhookCallbackURL != "" || cfg.WebhookSecret != "" {
		if cfg.WebhookCallbackURL == "" {
			return nil, fmt.Errorf("WEBHOOK_CALLBACK_URL is required when WEBHOOK_SECRET is set")
		}
		if cfg.WebhookSecret == "" {
			return nil, fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_CALLBACK_URL is set")
		}
		if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
			return nil, fmt.Errorf("WEBHOOK_SECRET must be between 10 and 100 characters")
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 15s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
