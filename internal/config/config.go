// ABOUTME: Centralized runtime configuration for the sidekick CLI and MCP server
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backends
const (
	StoreSQLite = "sqlite"
	StoreCharm  = "charm"
	StoreMemory = "memory"
)

// Config holds process configuration plus the pipeline settings
type Config struct {
	// Persistence
	Store         string
	DBPath        string
	DebounceDelay time.Duration

	// Charm settings
	CharmHost   string
	CharmDBName string
	AutoSync    bool

	// Completion and embedding credentials
	OpenAIKey      string
	AnthropicKey   string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	// Pipeline settings, optionally read from a YAML file
	SettingsFile string
	Settings     Settings
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Store:          getEnv("SIDEKICK_STORE", StoreSQLite),
		DBPath:         os.Getenv("SIDEKICK_DB_PATH"),
		DebounceDelay:  getEnvDuration("SIDEKICK_DEBOUNCE", 250*time.Millisecond),
		CharmHost:      getEnv("CHARM_HOST", "charm.2389.dev"),
		CharmDBName:    getEnv("CHARM_DB", "sidekick"),
		AutoSync:       getEnvBool("CHARM_AUTO_SYNC", true),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		EmbeddingModel: getEnv("SIDEKICK_EMBEDDING_MODEL", "text-embedding-3-small"),
		Timeout:        getEnvDuration("SIDEKICK_TIMEOUT", 60*time.Second),
		MaxRetries:     getEnvInt("SIDEKICK_MAX_RETRIES", 2),
		RetryDelay:     getEnvDuration("SIDEKICK_RETRY_DELAY", time.Second),
		SettingsFile:   os.Getenv("SIDEKICK_SETTINGS"),
	}

	settings := Defaults()
	if cfg.SettingsFile != "" {
		s, err := LoadSettingsFile(cfg.SettingsFile)
		if err != nil {
			return nil, err
		}
		settings = s
	}
	applyEnv(&settings)
	settings.Normalize()
	cfg.Settings = settings

	return cfg, cfg.Validate()
}

// applyEnv overlays SIDEKICK_* variables onto s
func applyEnv(s *Settings) {
	s.Enabled = getEnvBool("SIDEKICK_ENABLED", s.Enabled)
	s.Debug = getEnvBool("SIDEKICK_DEBUG", s.Debug)
	s.ReduceHistory = getEnvBool("SIDEKICK_REDUCE_HISTORY", s.ReduceHistory)
	s.FilterOperationalInstructions = getEnvBool("SIDEKICK_FILTER_INSTRUCTIONS", s.FilterOperationalInstructions)
	s.Completion.Provider = getEnv("SIDEKICK_PROVIDER", s.Completion.Provider)
	s.Completion.URL = getEnv("SIDEKICK_COMPLETION_URL", s.Completion.URL)
	s.Completion.Model = getEnv("SIDEKICK_MODEL", s.Completion.Model)
	s.Completion.Temperature = getEnvFloat("SIDEKICK_TEMPERATURE", s.Completion.Temperature)
	s.Completion.MaxTokens = getEnvInt("SIDEKICK_MAX_TOKENS", s.Completion.MaxTokens)
	s.PreserveLastMessages = getEnvInt("SIDEKICK_PRESERVE_LAST", s.PreserveLastMessages)
	s.Thresholds.StartOccupancy = getEnvFloat("SIDEKICK_START_OCCUPANCY", s.Thresholds.StartOccupancy)
	s.Thresholds.MinTurnsBetween = getEnvInt("SIDEKICK_COOLDOWN_TURNS", s.Thresholds.MinTurnsBetween)
	s.Relevance.Mode = getEnv("SIDEKICK_RELEVANCE_MODE", s.Relevance.Mode)
	s.Vector.Enabled = getEnvBool("SIDEKICK_VECTOR_ENABLED", s.Vector.Enabled)
	s.TableMemory.Enabled = getEnvBool("SIDEKICK_TABLE_MEMORY_ENABLED", s.TableMemory.Enabled)
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreCharm, StoreMemory:
	default:
		return fmt.Errorf("SIDEKICK_STORE must be sqlite, charm or memory, got %q", c.Store)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("SIDEKICK_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	return c.Settings.Validate()
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
