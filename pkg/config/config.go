// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upstream UpstreamConfig
	Resolver ResolverConfig
}

// ServerConfig configures the HTTP listener and inbound rate limiting.
type ServerConfig struct {
	Port               string
	Env                string
	RateLimitPerSecond int
	RateLimitBurst     int
	AllowedOrigins     []string
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// UpstreamConfig configures the two external dependencies, their courtesy
// rate limits and cache TTLs.
type UpstreamConfig struct {
	NominatimBaseURL string
	OverpassURL      string
	UserAgent        string
	HTTPTimeout      time.Duration

	SuggestCacheTTL time.Duration
	DetailCacheTTL  time.Duration
	RoadCacheTTL    time.Duration

	GeocodeBurst        int
	GeocodeRefillEvery  time.Duration
	OverpassBurst       int
	OverpassRefillEvery time.Duration
}

// ResolverConfig holds the heuristic tuning knobs. The defaults are the
// operating constants; none of them is a contract.
type ResolverConfig struct {
	MaxGeocodeBoxAreaDeg2        float64
	TightBoxRadiusMeters         float64
	FallbackBoxRadiusMeters      float64
	NearPathHighConfidenceMeters float64
	ResponseCacheTTL             time.Duration
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			Env:                getEnv("APP_ENV", "development"),
			RateLimitPerSecond: getEnvInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvInt("SERVER_RATE_LIMIT_BURST", 40),
			AllowedOrigins:     []string{getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000")},
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "doorway"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Upstream: UpstreamConfig{
			NominatimBaseURL: getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
			OverpassURL:      getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			UserAgent:        getEnv("UPSTREAM_USER_AGENT", "doorway-api/1.0"),
			HTTPTimeout:      getEnvDuration("UPSTREAM_HTTP_TIMEOUT", 10*time.Second),

			SuggestCacheTTL: getEnvDuration("SUGGEST_CACHE_TTL", 5*time.Minute),
			DetailCacheTTL:  getEnvDuration("DETAIL_CACHE_TTL", 5*time.Minute),
			RoadCacheTTL:    getEnvDuration("ROAD_CACHE_TTL", 10*time.Minute),

			GeocodeBurst:        getEnvInt("GEOCODE_BUCKET_BURST", 2),
			GeocodeRefillEvery:  getEnvDuration("GEOCODE_BUCKET_REFILL", time.Second),
			OverpassBurst:       getEnvInt("OVERPASS_BUCKET_BURST", 1),
			OverpassRefillEvery: getEnvDuration("OVERPASS_BUCKET_REFILL", 2*time.Second),
		},
		Resolver: ResolverConfig{
			MaxGeocodeBoxAreaDeg2:        getEnvFloat("RESOLVER_MAX_BOX_AREA_DEG2", 0.01),
			TightBoxRadiusMeters:         getEnvFloat("RESOLVER_TIGHT_BOX_RADIUS_M", 60),
			FallbackBoxRadiusMeters:      getEnvFloat("RESOLVER_FALLBACK_BOX_RADIUS_M", 30),
			NearPathHighConfidenceMeters: getEnvFloat("RESOLVER_NEAR_PATH_HIGH_M", 8),
			ResponseCacheTTL:             getEnvDuration("RESOLVER_RESPONSE_CACHE_TTL", 5*time.Minute),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
