package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/workitem-fieldmap/internal/kv"
)

// Preset backends
const (
	BackendRedis    = kv.BackendRedis
	BackendPostgres = kv.BackendPostgres
	BackendMemory   = kv.BackendMemory
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	FrontendURL     string
	PresetBackend   string
	PresetStoreKey  string
	RedisURL        string
	DatabaseURL     string
	RabbitMQURL     string
	RateLimit       string
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string

	AzureDevOpsBaseURL     string
	AzureDevOpsOrg         string
	AzureDevOpsProject     string
	AzureDevOpsPAT         string
	AzureDevOpsBearerToken string
	CatalogRefreshInterval time.Duration
}

// CatalogConfigured reports whether enough settings exist to reach the tracker
func (c *Config) CatalogConfigured() bool {
	return c.AzureDevOpsOrg != "" && c.AzureDevOpsProject != "" &&
		(c.AzureDevOpsPAT != "" || c.AzureDevOpsBearerToken != "")
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom loads configuration using getenv to read variables
func LoadFrom(getenv func(string) string) (*Config, error) {
	e := env(getenv)
	cfg := &Config{
		ServerPort:      e.get("SERVER_PORT", "8080"),
		FrontendURL:     e.get("FRONTEND_URL", "http://localhost:3000"),
		PresetBackend:   strings.ToLower(e.get("PRESET_BACKEND", BackendRedis)),
		PresetStoreKey:  e.get("PRESET_STORE_KEY", "fieldMappingPresets"),
		RedisURL:        e.get("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:     e.get("DATABASE_URL", ""),
		RabbitMQURL:     e.get("RABBITMQ_URL", ""),
		RateLimit:       e.get("RATE_LIMIT", "20-S"),
		ServerDebugMode: e.getBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     e.getBool("OTEL_ENABLED", false),
		OTELEndpoint:    e.get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AzureDevOpsBaseURL:     e.get("AZDO_BASE_URL", "https://dev.azure.com/"),
		AzureDevOpsOrg:         e.get("AZDO_ORGANIZATION", ""),
		AzureDevOpsProject:     e.get("AZDO_PROJECT", ""),
		AzureDevOpsPAT:         e.get("AZDO_PAT", ""),
		AzureDevOpsBearerToken: e.get("AZDO_BEARER_TOKEN", ""),
		CatalogRefreshInterval: e.getDuration("CATALOG_REFRESH_INTERVAL", 5*time.Minute),
	}

	switch cfg.PresetBackend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when PRESET_BACKEND=redis")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when PRESET_BACKEND=postgres")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("invalid PRESET_BACKEND: %s (must be 'redis', 'postgres', or 'memory')", cfg.PresetBackend)
	}

	return cfg, nil
}

type env func(string) string

func (e env) get(key, defaultValue string) string {
	if value := strings.TrimSpace(e(key)); value != "" {
		return value
	}
	return defaultValue
}

func (e env) getBool(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e env) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := e(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
