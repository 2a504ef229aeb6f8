package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	Backend   BackendConfig
	Identity  IdentityConfig
	Polling   PollingConfig
	DevServer DevServerConfig
	OpenAI    OpenAIConfig
}

type BackendConfig struct {
	BaseURL string
	AgentID string
	// SessionID resumes an existing session instead of creating one.
	SessionID string
}

type IdentityConfig struct {
	Token    string
	Provider string
}

// PollingConfig mirrors poller.Config; zero values take the engine's
// canonical defaults.
type PollingConfig struct {
	ActiveInterval    time.Duration
	NormalInterval    time.Duration
	IdleInterval      time.Duration
	VeryIdleInterval  time.Duration
	RecencyWindow     time.Duration
	IdleThreshold     time.Duration
	VeryIdleThreshold time.Duration
}

type DevServerConfig struct {
	Port string
	// ReplyDelay paces the simulated agent so status events are observable.
	ReplyDelay time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Load loads configuration from environment variables. In development it
// first merges a .env file when present.
func Load() (Config, error) {
	if getEnv("PARLOR_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env: getEnv("PARLOR_ENV", "development"),
		Backend: BackendConfig{
			BaseURL:   getEnv("PARLOR_BASE_URL", "http://localhost:8800"),
			AgentID:   getEnv("PARLOR_AGENT_ID", "default"),
			SessionID: getEnv("PARLOR_SESSION_ID", ""),
		},
		Identity: IdentityConfig{
			Token:    getEnv("PARLOR_TOKEN", ""),
			Provider: getEnv("PARLOR_AUTH_PROVIDER", "generic"),
		},
		Polling: PollingConfig{
			ActiveInterval:    getEnvDuration("PARLOR_POLL_ACTIVE", 0),
			NormalInterval:    getEnvDuration("PARLOR_POLL_NORMAL", 0),
			IdleInterval:      getEnvDuration("PARLOR_POLL_IDLE", 0),
			VeryIdleInterval:  getEnvDuration("PARLOR_POLL_VERY_IDLE", 0),
			RecencyWindow:     getEnvDuration("PARLOR_POLL_RECENCY_WINDOW", 0),
			IdleThreshold:     getEnvDuration("PARLOR_POLL_IDLE_THRESHOLD", 0),
			VeryIdleThreshold: getEnvDuration("PARLOR_POLL_VERY_IDLE_THRESHOLD", 0),
		},
		DevServer: DevServerConfig{
			Port:       getEnv("PORT", "8800"),
			ReplyDelay: getEnvDuration("DEVSERVER_REPLY_DELAY", 400*time.Millisecond),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are treated as milliseconds.
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
