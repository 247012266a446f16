package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, populated from environment variables.
type Config struct {
	Server    ServerConfig
	Execution ExecutionConfig
	Rooms     RoomConfig
	Limiter   LimiterConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string // "*" allows any origin
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type ExecutionConfig struct {
	Timeout       time.Duration // wall-clock budget per supervised process
	OutputLimit   int           // per-stream cap in bytes
	Workers       int
	QueueCapacity int
}

type RoomConfig struct {
	IdleTTL       time.Duration // empty rooms older than this are swept
	SweepInterval time.Duration
}

type LimiterConfig struct {
	GlobalRPS  float64
	PerIPRPS   float64
	PerIPBurst int
}

func Load() (*Config, error) {
	conf := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
			ReadTimeout:    getEnvDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		},
		Execution: ExecutionConfig{
			Timeout:       getEnvDuration("EXECUTION_TIMEOUT_MS", 5000*time.Millisecond),
			OutputLimit:   getEnvInt("OUTPUT_LIMIT_BYTES", 64*1024),
			Workers:       getEnvInt("EXECUTION_WORKERS", 4),
			QueueCapacity: getEnvInt("QUEUE_CAPACITY", 64),
		},
		Rooms: RoomConfig{
			IdleTTL:       getEnvDuration("ROOM_IDLE_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Hour),
		},
		Limiter: LimiterConfig{
			GlobalRPS:  getEnvFloat("WS_RPS", 100),
			PerIPRPS:   getEnvFloat("WS_PER_IP_RPS", 10),
			PerIPBurst: getEnvInt("WS_PER_IP_BURST", 20),
		},
	}
	return conf, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts either a Go duration string ("30s", "24h") or, for
// keys ending in _MS, a bare millisecond count.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if strings.HasSuffix(key, "_MS") {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
