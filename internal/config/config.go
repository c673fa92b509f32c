package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	Debug      bool
	DBURL      string
	LogLevel   string
	DBMaxConns int

	TxTimeout       time.Duration
	DefaultCurrency string

	RedisURL       string
	IdempotencyTTL time.Duration

	JWTSecret string
	JWTTTL    time.Duration

	AdjutorBaseURL   string
	AdjutorAPIKey    string
	AdjutorTimeout   time.Duration
	AdjutorFailOpen  bool
	BlacklistEnforce bool

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load("config.env")

	cfg := &Config{
		Port:       getEnv("APP_PORT", "8080"),
		Debug:      getBool("APP_DEBUG", false),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DBURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns: getInt("DB_MAX_CONNS", 8),

		TxTimeout:       getDuration("TX_TIMEOUT", 5*time.Second),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "NGN"),

		RedisURL:       os.Getenv("REDIS_URL"),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    getDuration("JWT_TTL", 24*time.Hour),

		AdjutorBaseURL:   getEnv("ADJUTOR_BASE_URL", "https://adjutor.lendsqr.com/v2"),
		AdjutorAPIKey:    os.Getenv("ADJUTOR_API_KEY"),
		AdjutorTimeout:   getDuration("ADJUTOR_TIMEOUT", 3*time.Second),
		AdjutorFailOpen:  getBool("ADJUTOR_FAIL_OPEN", true),
		BlacklistEnforce: getBool("BLACKLIST_ENFORCE", true),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 20),
	}

	if cfg.DBURL == "" {
		cfg.DBURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			os.Getenv("DB_NAME"),
		)
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if len(cfg.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code, got %q", cfg.DefaultCurrency)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
