package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable read by browserrelay.
const EnvPrefix = "BROWSERRELAY_"

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already present in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func GetStringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return fallback
}

// parsedEnv returns fallback when the variable is unset, empty or does not parse.
func parsedEnv[T any](key string, fallback T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := parse(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func GetBoolEnv(key string, fallback bool) bool {
	return parsedEnv(key, fallback, strconv.ParseBool)
}

func GetIntEnv(key string, fallback int) int {
	return parsedEnv(key, fallback, strconv.Atoi)
}

func GetFloatEnv(key string, fallback float64) float64 {
	return parsedEnv(key, fallback, func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

func GetDurationEnv(key string, fallback time.Duration) time.Duration {
	return parsedEnv(key, fallback, time.ParseDuration)
}
