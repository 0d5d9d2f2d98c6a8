// Package config читает настройки сервера из окружения и файла .env.
package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresConn  string
	ServerAddress string
	JWTSecret     string

	RedisAddr     string
	RedisPassword string
	ActorCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	WebURL          string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

var (
	ErrNoPostgres  = errors.New("POSTGRES_CONN env variable is not set")
	ErrNoJWTSecret = errors.New("JWT_SECRET env variable is not set")
)

// Load читает .env, если он есть, и собирает конфигурацию из переменных окружения
func Load(logger *log.Logger) Config {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Printf(".env not loaded: %v", err)
	}
	return Config{
		PostgresConn:    getEnv("POSTGRES_CONN", ""),
		ServerAddress:   getEnv("SERVER_ADDRESS", "0.0.0.0:8080"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		ActorCacheTTL:   getEnvDuration("ACTOR_CACHE_TTL", time.Minute),
		KafkaBrokers:    splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "gigmarket.notifications"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getEnv("MINIO_BUCKET", "gigmarket"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		WebURL:          getEnv("WEB_URL", "http://localhost:3000"),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func (c Config) Validate() error {
	if c.PostgresConn == "" {
		return ErrNoPostgres
	}
	if c.JWTSecret == "" {
		return ErrNoJWTSecret
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
