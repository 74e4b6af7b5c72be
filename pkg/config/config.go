package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// VenueConfig holds connection endpoints and credentials for one venue.
type VenueConfig struct {
	WSURL      string
	APIURL     string
	APIKey     string
	PrivateKey string
	FeeRate    float64
}

// Config is the process-wide configuration snapshot. Everything is immutable
// after LoadFromEnv except the auto-execute flag.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Venues
	VenueA VenueConfig
	VenueB VenueConfig

	// Database
	DatabaseURL string

	// Arbitrage detection
	ArbThreshold        float64
	MinLiquidity        float64
	MaxPositionSize     float64
	SimilarityThreshold float64

	// Execution
	autoExecute atomic.Bool

	// Market sync
	SyncInterval    time.Duration
	ListingCacheTTL time.Duration

	// Venue streams
	WSDialTimeout           time.Duration
	WSPingInterval          time.Duration
	WSAuthTimeout           time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectMaxAttempts  int
	WSMessageBufferSize     int

	// Outbound venue REST
	APIConnectTimeout time.Duration
	APIRequestTimeout time.Duration
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("PORT", "3001"),

		VenueA: VenueConfig{
			WSURL:      os.Getenv("VENUE_A_WS_URL"),
			APIURL:     os.Getenv("VENUE_A_API_URL"),
			APIKey:     os.Getenv("VENUE_A_API_KEY"),
			PrivateKey: os.Getenv("VENUE_A_PRIVATE_KEY"),
			FeeRate:    getFloat64OrDefault("VENUE_A_FEE_RATE", 0.02),
		},
		VenueB: VenueConfig{
			WSURL:      os.Getenv("VENUE_B_WS_URL"),
			APIURL:     os.Getenv("VENUE_B_API_URL"),
			APIKey:     os.Getenv("VENUE_B_API_KEY"),
			PrivateKey: os.Getenv("VENUE_B_PRIVATE_KEY"),
			FeeRate:    getFloat64OrDefault("VENUE_B_FEE_RATE", 0.02),
		},

		DatabaseURL: os.Getenv("DATABASE_URL"),

		ArbThreshold:        getFloat64OrDefault("ARB_THRESHOLD", 0.98),
		MinLiquidity:        getFloat64OrDefault("MIN_LIQUIDITY", 1000),
		MaxPositionSize:     getFloat64OrDefault("MAX_POSITION_SIZE", 10000),
		SimilarityThreshold: getFloat64OrDefault("SIMILARITY_THRESHOLD", 0.85),

		SyncInterval:    getDurationOrDefault("MARKET_SYNC_INTERVAL", 5*time.Minute),
		ListingCacheTTL: getDurationOrDefault("LISTING_CACHE_TTL", time.Minute),

		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 30*time.Second),
		WSAuthTimeout:           getDurationOrDefault("WS_AUTH_TIMEOUT", 5*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectMaxAttempts:  getIntOrDefault("WS_RECONNECT_MAX_ATTEMPTS", 10),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		APIConnectTimeout: getDurationOrDefault("API_CONNECT_TIMEOUT", 2*time.Second),
		APIRequestTimeout: getDurationOrDefault("API_REQUEST_TIMEOUT", 10*time.Second),
	}

	cfg.autoExecute.Store(getBoolOrDefault("AUTO_EXECUTE", false))

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	if c.VenueA.WSURL == "" || c.VenueA.APIURL == "" {
		return fmt.Errorf("VENUE_A_WS_URL and VENUE_A_API_URL are required")
	}

	if c.VenueB.WSURL == "" || c.VenueB.APIURL == "" {
		return fmt.Errorf("VENUE_B_WS_URL and VENUE_B_API_URL are required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ArbThreshold <= 0 || c.ArbThreshold > 1.0 {
		return fmt.Errorf("ARB_THRESHOLD must be in (0, 1.0], got %f", c.ArbThreshold)
	}

	if c.MinLiquidity < 0 {
		return fmt.Errorf("MIN_LIQUIDITY cannot be negative, got %f", c.MinLiquidity)
	}

	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("MAX_POSITION_SIZE must be positive, got %f", c.MaxPositionSize)
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1.0], got %f", c.SimilarityThreshold)
	}

	return nil
}

// AutoExecute reports whether detected opportunities are executed
// automatically. The only configuration value mutable after start.
func (c *Config) AutoExecute() bool {
	return c.autoExecute.Load()
}

// SetAutoExecute toggles automatic execution at runtime.
func (c *Config) SetAutoExecute(enabled bool) {
	c.autoExecute.Store(enabled)
}

// VenueFor returns the configuration for the named venue ("A" or "B").
func (c *Config) VenueFor(venue string) VenueConfig {
	if venue == "A" {
		return c.VenueA
	}
	return c.VenueB
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
