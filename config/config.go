/*
config.go - Environment-driven server configuration

PURPOSE:
  Centralizes every runtime knob behind typed environment lookups with
  sensible development defaults. cmd/server loads a .env file first, so
  local overrides live in one place.

SEE ALSO:
  - cmd/server/main.go: Load and Validate at startup
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr            string
	DBPath          string
	AllowedOrigins  []string
	Divisions       []string
	AdminMembers    []string
	AuditorEnabled  bool
	AuditorInterval time.Duration
	DebounceWindow  time.Duration
}

func Load() Config {
	return Config{
		Addr:            getEnv("APP_ADDR", ":8080"),
		DBPath:          getEnv("DB_PATH", "leave.db"),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		Divisions:       getEnvList("DIVISIONS", []string{"default"}),
		AdminMembers:    getEnvList("ADMIN_MEMBERS", nil),
		AuditorEnabled:  getEnvBool("AUDITOR_ENABLED", true),
		AuditorInterval: getEnvDuration("AUDITOR_INTERVAL", 1*time.Hour),
		DebounceWindow:  getEnvDuration("DEBOUNCE_WINDOW", 300*time.Millisecond),
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("APP_ADDR must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if len(c.Divisions) == 0 {
		return fmt.Errorf("DIVISIONS must name at least one division")
	}
	if c.AuditorInterval <= 0 {
		return fmt.Errorf("AUDITOR_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
