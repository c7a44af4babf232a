// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Platform identifies the host platform the core runs on.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
)

// Config holds process-lifetime configuration. Storage selection reads it
// once at startup; nothing mutates it afterwards.
type Config struct {
	Platform      Platform
	NativeStorage bool // experimental filesystem backend, desktop only
	DataDir       string
	APIBaseURL    string
	APIToken      string
	RealtimeURL   string
	SyncInterval  time.Duration
	QueueInterval time.Duration
	LogLevel      string
}

// Load reads configuration from the environment with defaults.
func Load() Config {
	return Config{
		Platform:      parsePlatform(getenv("MDREADER_PLATFORM", "web")),
		NativeStorage: getenvBool("MDREADER_NATIVE_STORAGE", false),
		DataDir:       getenv("MDREADER_DATA_DIR", "./data"),
		APIBaseURL:    getenv("MDREADER_API_URL", "http://localhost:8000"),
		APIToken:      getenv("MDREADER_API_TOKEN", ""),
		RealtimeURL:   getenv("MDREADER_REALTIME_URL", ""),
		SyncInterval:  time.Duration(getenvInt("MDREADER_SYNC_INTERVAL_SECONDS", 30)) * time.Second,
		QueueInterval: time.Duration(getenvInt("MDREADER_QUEUE_INTERVAL_SECONDS", 60)) * time.Second,
		LogLevel:      getenv("MDREADER_LOG_LEVEL", "INFO"),
	}
}

func parsePlatform(s string) Platform {
	if s == string(PlatformDesktop) {
		return PlatformDesktop
	}
	return PlatformWeb
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
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

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
