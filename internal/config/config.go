// ABOUTME: Centralized configuration for the relay
// ABOUTME: Optional YAML file overlaid with environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harper/veil/internal/storage/sqlite"
)

// Config holds all configuration for the relay. Values come from an optional
// YAML file (VEIL_CONFIG, default veil.yaml) with environment variables
// taking precedence.
type Config struct {
	// Server settings
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	// Platform settings. A zero GuildID disables the membership gate on
	// can_play. AdminRoleID or AdminIDs name who hears about round ends.
	GuildID     int64   `yaml:"guild_id"`
	AdminRoleID int64   `yaml:"admin_role"`
	AdminIDs    []int64 `yaml:"admin_ids"`

	// OpenAI settings
	OpenAIKey     string        `yaml:"-"`
	Model         string        `yaml:"model"`
	ProtectedNoun string        `yaml:"protected_noun"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`

	// Logging settings
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from .env, the YAML file, and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:    ":8080",
		DBPath:        sqlite.DefaultDBPath(),
		Model:         "gpt-4.1",
		ProtectedNoun: "code guessing",
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
		LogLevel:      "info",
	}

	path := getEnv("VEIL_CONFIG", "veil.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.ListenAddr = getEnv("VEIL_ADDR", cfg.ListenAddr)
	cfg.DBPath = getEnv("VEIL_DB_PATH", cfg.DBPath)
	cfg.GuildID = getEnvInt64("VEIL_GUILD_ID", cfg.GuildID)
	cfg.AdminRoleID = getEnvInt64("VEIL_ADMIN_ROLE", cfg.AdminRoleID)
	if ids, err := parseIDList(os.Getenv("VEIL_ADMIN_IDS")); err != nil {
		return nil, err
	} else if ids != nil {
		cfg.AdminIDs = ids
	}
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Model = getEnv("VEIL_OPENAI_MODEL", cfg.Model)
	cfg.ProtectedNoun = getEnv("VEIL_PROTECTED_NOUN", cfg.ProtectedNoun)
	cfg.Timeout = getEnvDuration("OPENAI_TIMEOUT", cfg.Timeout)
	cfg.MaxRetries = getEnvInt("OPENAI_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryDelay = getEnvDuration("OPENAI_RETRY_DELAY", cfg.RetryDelay)
	cfg.LogFile = getEnv("VEIL_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = getEnv("VEIL_LOG_LEVEL", cfg.LogLevel)

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// RequireMember reports whether can_play is gated on platform membership.
func (c *Config) RequireMember() bool {
	return c.GuildID != 0
}

func parseIDList(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("VEIL_ADMIN_IDS: bad id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
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
