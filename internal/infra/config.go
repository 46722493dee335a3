package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	StabilityAPIKey  string
	StabilityBaseURL string
	GenerateTimeout  time.Duration
	StructureTimeout time.Duration

	OutputDir     string
	TempDir       string
	TempMaxAge    time.Duration
	SweepInterval time.Duration

	SessionBackend string // "memory" or "redis"
	SessionTTL     time.Duration
	RedisAddr      string
	RedisUsername  string
	RedisPassword  string
	RedisUseTLS    bool

	DefaultSteps           int
	DefaultGuidanceScale   float64
	DefaultStrength        float64
	DefaultControlStrength float64
	DefaultContrast        float64
	DefaultBrightness      float64

	AllowedOrigins   []string
	RateLimitPerMin  int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Only the session backend choice is validated
// here; the Stability key may legitimately be absent (the controller
// reports it per cycle).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		StabilityAPIKey:  os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL: getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),
		GenerateTimeout:  getEnvDuration("GENERATE_TIMEOUT", 60*time.Second),
		StructureTimeout: getEnvDuration("STRUCTURE_TIMEOUT", 90*time.Second),

		OutputDir:     getEnv("OUTPUT_DIR", "data/outputs"),
		TempDir:       getEnv("TEMP_DIR", "data/temp"),
		TempMaxAge:    getEnvDuration("TEMP_MAX_AGE", time.Hour),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisUsername:  os.Getenv("REDIS_USERNAME"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisUseTLS:    getEnvBool("REDIS_USE_TLS", false),

		DefaultSteps:           getEnvInt("GEN_STEPS", 35),
		DefaultGuidanceScale:   getEnvFloat("GEN_GUIDANCE_SCALE", 8.5),
		DefaultStrength:        getEnvFloat("GEN_STRENGTH", 0.65),
		DefaultControlStrength: getEnvFloat("GEN_CONTROL_STRENGTH", 0.85),
		DefaultContrast:        getEnvFloat("ENHANCE_CONTRAST", 1.3),
		DefaultBrightness:      getEnvFloat("ENHANCE_BRIGHTNESS", 1.2),

		AllowedOrigins:   splitAndTrim(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.SessionBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported SESSION_BACKEND %q", cfg.SessionBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
