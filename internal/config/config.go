package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins []string // websocket origin patterns; empty means same-origin only
	WriteTimeout   time.Duration
	ReadLimit      int64 // bytes per inbound websocket message
	OutboxSize     int   // buffered events per connection
}

func Load() Config {
	// .env is a dev convenience; absence is fine.
	_ = godotenv.Load()

	return Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitEnv("ALLOWED_ORIGINS"),
		WriteTimeout:   time.Duration(getEnvInt("WRITE_TIMEOUT_SEC", 3)) * time.Second,
		ReadLimit:      int64(getEnvInt("READ_LIMIT_BYTES", 32768)),
		OutboxSize:     getEnvInt("OUTBOX_SIZE", 32),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
