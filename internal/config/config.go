// Package config provides environment configuration for the chatsync
// binaries.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the gateway server and the
// client engine.
type Config struct {
	// Server settings (gatewayd)
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Fixture and simulated-network settings (gatewayd)
	FixtureFile         string
	GatewayLatency      time.Duration
	ReactionFailureRate float64

	// NATS settings (gatewayd, optional)
	NATSURL     string
	NATSToken   string
	NATSEnabled bool

	// Rate limiting (gatewayd)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Tracing (gatewayd)
	TracingEndpoint string
	TracingEnabled  bool

	// Client engine settings (chatsync)
	GatewayURL       string
	GatewayTimeout   time.Duration
	SnapshotPath     string
	ReactionErrorTTL time.Duration
	LocalUserID      int64
	LocalUserName    string
	LocalUserAvatar  string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// Fixture and simulated network
		FixtureFile:         getEnv("FIXTURE_FILE", ""),
		GatewayLatency:      getDurationEnv("GATEWAY_LATENCY", 300*time.Millisecond),
		ReactionFailureRate: getFloatEnv("REACTION_FAILURE_RATE", 0.1),

		// NATS
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		NATSToken:   getEnv("NATS_TOKEN", ""),
		NATSEnabled: getBoolEnv("NATS_ENABLED", false),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		// Client engine
		GatewayURL:       getEnv("GATEWAY_URL", "http://localhost:8080"),
		GatewayTimeout:   getDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
		SnapshotPath:     getEnv("SNAPSHOT_PATH", "chatsync.snapshot"),
		ReactionErrorTTL: getDurationEnv("REACTION_ERROR_TTL", 3*time.Second),
		LocalUserID:      getInt64Env("LOCAL_USER_ID", 6),
		LocalUserName:    getEnv("LOCAL_USER_NAME", "Me"),
		LocalUserAvatar:  getEnv("LOCAL_USER_AVATAR", "https://i.pravatar.cc/150?img=6"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
