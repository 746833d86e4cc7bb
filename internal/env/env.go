package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// file holds values loaded from an optional YAML config file.
// Environment variables always take precedence over it.
var file = map[string]string{}

// LoadFile reads a flat YAML mapping of KEY: value pairs. Keys use the same
// names as the environment variables they stand in for.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	raw := map[string]any{}
	if err = yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	loaded := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		loaded[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	file = loaded
	return nil
}

func lookup(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return file[key]
}

// Str returns the value of the environment variable key, or fallback if unset/empty.
func Str(key, fallback string) string {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	return val
}

// Int returns key parsed as an int, or fallback if unset or malformed.
func Int(key string, fallback int) int {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

// Float returns key parsed as a float64, or fallback if unset or malformed.
func Float(key string, fallback float64) float64 {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

// Bool returns key parsed with strconv.ParseBool, or fallback.
func Bool(key string, fallback bool) bool {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

// Duration accepts Go duration strings ("15s") or a bare number of seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	secs, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}
