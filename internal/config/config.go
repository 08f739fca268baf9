package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                      string
	DatabaseURL               string
	AvgServiceMinutes         int
	CallNextRetries           int
	RateLimitPerMinute        int
	RateLimitBurst            int
	ServiceRateLimitPerMinute int
	ServiceRateLimitBurst     int
	OTLPEndpoint              string
}

func Load() Config {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                      port,
		DatabaseURL:               os.Getenv("DB_DSN"),
		AvgServiceMinutes:         readInt("AVG_SERVICE_MINUTES", 15),
		CallNextRetries:           readInt("CALL_NEXT_RETRIES", 5),
		RateLimitPerMinute:        readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:            readInt("RATE_LIMIT_BURST", 30),
		ServiceRateLimitPerMinute: readInt("SERVICE_RATE_LIMIT_PER_MIN", 600),
		ServiceRateLimitBurst:     readInt("SERVICE_RATE_LIMIT_BURST", 120),
		OTLPEndpoint:              os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
