package utils

import (
	"os"
	"strconv"

	"github.com/walehn/reader-study-backend/internal/pkg/logger"
)

func GetEnv(key, fallback string, log *logger.Logger) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	log.Debug("Env var not set, using fallback", "key", key, "fallback", fallback)
	return fallback
}

func GetEnvAsInt(key string, fallback int, log *logger.Logger) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		log.Debug("Env var not set, using fallback", "key", key, "fallback", fallback)
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn("Env var is not an int, using fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func GetEnvAsFloat(key string, fallback float64, log *logger.Logger) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		log.Debug("Env var not set, using fallback", "key", key, "fallback", fallback)
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn("Env var is not a float, using fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}
