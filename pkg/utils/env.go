package utils

import (
	"os"
	"strings"
)

// Env gets an environment variable with a default value
func Env(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// EnvBool gets a boolean environment variable. ok is false when the variable
// is unset so callers can tell "false" from "not configured".
func EnvBool(key string) (value bool, ok bool) {
	raw, set := os.LookupEnv(key)
	if !set || raw == "" {
		return false, false
	}
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on":
		return true, true
	default:
		return false, true
	}
}
