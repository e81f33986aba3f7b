// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// TheForge is the canonical home region used when no region is specified.
const TheForge = 10000002

// Regions maps trade-hub region names to region IDs.
var Regions = map[string]int{
	"The Forge": 10000002,
	"Domain":    10000043,
	"Hek":       10000030,
}

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for databases and static data dumps (always absolute)
	Port        int
	LogLevel    string
	DevMode     bool
	QuoteAPIURL string // EVE Tycoon API base URL
	SDEBaseURL  string // Fuzzwork static data dump base URL
	HomeRegion  int    // Default region for quote lookups

	// Defaults for scan/optimize requests that omit them
	ReprocessingEfficiency float64
	TransportCostPerM3     float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory, defaulting to ./data, always resolved to an
	// absolute path so database and dump file locations are stable regardless
	// of working directory.
	dataDir := getEnv("REFINERY_DATA_DIR", "data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:                absDataDir,
		Port:                   getEnvAsInt("REFINERY_PORT", 8010),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		QuoteAPIURL:            getEnv("QUOTE_API_URL", "https://evetycoon.com/api"),
		SDEBaseURL:             getEnv("SDE_BASE_URL", "https://www.fuzzwork.co.uk/dump/latest"),
		HomeRegion:             getEnvAsInt("HOME_REGION", TheForge),
		ReprocessingEfficiency: getEnvAsFloat("REPROCESSING_EFFICIENCY", 0.5),
		TransportCostPerM3:     getEnvAsFloat("TRANSPORT_COST_PER_M3", 450),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.ReprocessingEfficiency < 0 || c.ReprocessingEfficiency > 1 {
		return fmt.Errorf("reprocessing efficiency must be in [0, 1], got %v", c.ReprocessingEfficiency)
	}
	if c.TransportCostPerM3 < 0 {
		return fmt.Errorf("transport cost per m3 must be non-negative, got %v", c.TransportCostPerM3)
	}
	if c.HomeRegion <= 0 {
		return fmt.Errorf("home region must be a positive region id, got %d", c.HomeRegion)
	}
	return nil
}

// RegionByName resolves a trade-hub name to its region id.
// Falls back to the configured home region for an empty name.
func (c *Config) RegionByName(name string) (int, error) {
	if name == "" {
		return c.HomeRegion, nil
	}
	if id, ok := Regions[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("unknown region %q", name)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
