package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBConfig       DBConfig
	Feed           FeedConfig
	GRPCPort       string
	RESTPort       string
	PortalPort     string
	WorkerCount    int
	DataInterval   int // in milliseconds
	StreamInterval int // in milliseconds
	HistoryLimit   int
	LogLevel       string
}

type DBConfig struct {
	DBSource         string
	MaxDBConnections int
	MinDBConnections int
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
}

// FeedConfig настройки получения живой телеметрии на стороне портала
type FeedConfig struct {
	APIBase           string
	UseMock           bool
	SynthesisInterval int // in milliseconds
}

func LoadConfig() *Config {
	return &Config{
		DBConfig: DBConfig{
			// Пустой DB_SOURCE означает хранилище в памяти
			DBSource: getEnv("DB_SOURCE", ""),

			MaxDBConnections: getEnvAsInt("MAX_DB_CONNECTIONS", 10),
			MinDBConnections: getEnvAsInt("MIN_DB_CONNECTIONS", 2),
			MaxConnLifetime:  time.Duration(getEnvAsInt("MAX_CONN_LIFETIME", 3600)) * time.Second,
			MaxConnIdleTime:  time.Duration(getEnvAsInt("MAX_CONN_IDLE_TIME", 1800)) * time.Second,
		},
		Feed: FeedConfig{
			APIBase:           getEnv("API_BASE", "http://127.0.0.1:8000/api"),
			UseMock:           getEnvAsBool("USE_MOCK", false),
			SynthesisInterval: getEnvAsPositiveInt("SYNTHESIS_INTERVAL_MS", 5000),
		},
		GRPCPort:       getEnv("GRPC_PORT", ":9090"),
		RESTPort:       getEnv("REST_PORT", ":8000"),
		PortalPort:     getEnv("PORTAL_PORT", ":3000"),
		WorkerCount:    getEnvAsPositiveInt("WORKER_COUNT", 2),
		DataInterval:   getEnvAsPositiveInt("DATA_INTERVAL", 1000),
		StreamInterval: getEnvAsPositiveInt("STREAM_INTERVAL_MS", 5000),
		HistoryLimit:   getEnvAsPositiveInt("HISTORY_LIMIT", 3),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsPositiveInt(key string, fallback int) int {
	if parsed := getEnvAsInt(key, fallback); parsed > 0 {
		return parsed
	}
	return fallback
}

// getEnvAsBool понимает только "true" без учёта регистра, как и фронтенд с VITE_USE_MOCK
func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return strings.EqualFold(strings.TrimSpace(value), "true")
}
