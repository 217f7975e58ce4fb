package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	EventsNone  = "none"
	EventsKafka = "kafka"
	EventsRedis = "redis"
)

type Config struct {
	HTTPAddr string
	Env      string

	StorageDriver     string
	DatabaseURL       string
	DBConnectAttempts int

	EventsDriver string
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	RedisPass    string
	RedisChannel string

	FXRatesFile         string
	TransferMaxAttempts int
	SeedAccounts        bool
}

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		Env:                 getEnv("ENV", "development"),
		StorageDriver:       strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DBConnectAttempts:   getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		EventsDriver:        strings.ToLower(getEnv("EVENTS_DRIVER", EventsNone)),
		KafkaBrokers:        getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:          getEnv("KAFKA_TOPIC", ""),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:           getEnv("REDIS_PASS", ""),
		RedisChannel:        getEnv("REDIS_CHANNEL", ""),
		FXRatesFile:         getEnv("FX_RATES_FILE", ""),
		TransferMaxAttempts: getEnvInt("TRANSFER_MAX_ATTEMPTS", 3),
		SeedAccounts:        getEnvBool("SEED_ACCOUNTS", true),
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
