package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPPort          string
	PublicURL         string
	PostgresURL       string
	TemporalAddress   string
	TemporalTaskQueue string
	GatewayProbeURL   string
	DesktopProbeURL   string
	ActiveMediums     []string
	ProbeTimeoutSecs  int
	ActivityLimit     int
}

func Load() Config {
	httpPort := getEnv("CONDUCTOR_PORT", "8080")
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	return Config{
		HTTPPort:          httpPort,
		PublicURL:         getEnv("CONDUCTOR_URL", "http://localhost:"+httpPort),
		PostgresURL:       postgresURL,
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "conductor-maintenance"),
		GatewayProbeURL:   getEnv("GATEWAY_PROBE_URL", ""),
		DesktopProbeURL:   getEnv("DESKTOP_PROBE_URL", ""),
		ActiveMediums:     getEnvList("ACTIVE_MEDIUMS", nil),
		ProbeTimeoutSecs:  getEnvInt("PROBE_TIMEOUT_SECONDS", 3),
		ActivityLimit:     getEnvInt("ACTIVITY_FEED_LIMIT", 50),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "conductor")
	password := getEnv("POSTGRES_PASSWORD", "conductor")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "conductor")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
