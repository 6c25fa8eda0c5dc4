// Package config provides configuration for the portal.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the portal configuration.
type Config struct {
	// Server settings
	HTTPPort       int
	AllowedOrigins []string

	// Orchestrator settings
	OrchestratorURL     string
	OrchestratorTimeout time.Duration // zero leaves deadlines to the transport
	ManifestID          string

	// Identity settings
	IdentityProviderURL string
	IdentitySecret      string
	SessionTTL          time.Duration

	// Directory cache
	AgentCacheSize int
	AgentCacheTTL  time.Duration

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:            getEnvInt("HTTP_PORT", 8090),
		AllowedOrigins:      getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		OrchestratorURL:     getEnv("ORCHESTRATOR_URL", "http://localhost:8000"),
		OrchestratorTimeout: time.Duration(getEnvInt("ORCHESTRATOR_TIMEOUT_MS", 0)) * time.Millisecond,
		ManifestID:          getEnv("MANIFEST_ID", "orchestrator_v2"),
		IdentityProviderURL: getEnv("IDENTITY_PROVIDER_URL", "https://identity.ic0.app"),
		IdentitySecret:      getEnv("IDENTITY_SECRET", ""),
		SessionTTL:          time.Duration(getEnvInt("SESSION_TTL_MIN", 24*60)) * time.Minute,
		AgentCacheSize:      getEnvInt("AGENT_CACHE_SIZE", 16),
		AgentCacheTTL:       time.Duration(getEnvInt("AGENT_CACHE_TTL_MS", 60000)) * time.Millisecond,
		PingInterval:        time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:        time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:         time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:      int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
