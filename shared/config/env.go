// Package config provides environment variable helpers used across services.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvSecondsWithFallback reads primary as a count of seconds (fractions
// allowed), falling back to a Go duration string under alias.
func GetEnvSecondsWithFallback(primary, alias string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(primary); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return GetEnvDuration(alias, defaultValue)
}

// GetEnvMinutesWithFallback reads primary as a count of whole minutes,
// falling back to a Go duration string under alias.
func GetEnvMinutesWithFallback(primary, alias string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(primary); value != "" {
		if m, err := strconv.Atoi(value); err == nil && m > 0 {
			return time.Duration(m) * time.Minute
		}
	}
	return GetEnvDuration(alias, defaultValue)
}

// GetEnvSlice parses a comma-separated env var into a string slice.
func GetEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
