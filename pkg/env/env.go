package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Instance names the running process for log correlation (DYNO on Heroku-style hosts).
func Instance() string {
	return Get("DYNO", Get("HOSTNAME", "local"))
}
