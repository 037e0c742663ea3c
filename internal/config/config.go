package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev-secret-change-in-production"

type Config struct {
	Port        string
	Env         string
	DatabaseDSN string
	JWTSecret   string
	JWTExpiry   time.Duration

	AdminEmails         []string
	CORSAllowedOrigins  []string
	HealthCheckInterval time.Duration
	AuthRateLimitRPS    float64
	AuthRateLimitBurst  int
}

// Load reads the configuration from the environment. An empty DATABASE_DSN
// runs the server on the in-memory store only.
func Load() Config {
	cfg := Config{
		Port:        getEnv("PORT", "3001"),
		Env:         getEnv("ENV", "development"),
		DatabaseDSN: getEnv("DATABASE_DSN", ""),
		JWTSecret:   getEnv("JWT_SECRET", devJWTSecret),
		JWTExpiry:   getDuration("JWT_EXPIRY", 24*time.Hour),

		AdminEmails:         getList("ADMIN_EMAILS"),
		CORSAllowedOrigins:  getList("CORS_ALLOWED_ORIGINS"),
		HealthCheckInterval: getDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		AuthRateLimitRPS:    getFloat("AUTH_RATE_LIMIT_RPS", 5),
		AuthRateLimitBurst:  getInt("AUTH_RATE_LIMIT_BURST", 10),
	}

	if cfg.Env == "production" && cfg.JWTSecret == devJWTSecret {
		slog.Error("JWT_SECRET must be set in production environment")
		os.Exit(1)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid number, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

// getList splits a comma separated variable, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
