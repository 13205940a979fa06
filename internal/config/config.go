package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the netwatch capture service.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Tab matching
	TabURLFilter string

	// Capture behavior
	BodyTimeout time.Duration
	StaleAfter  time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Optional JSONL archive of finished records
	ArchiveDir       string
	ArchiveMaxFileMB int
	ArchiveBuffer    int
	ArchiveResources bool

	// Live event streams
	StreamOmitBodies bool

	// Optional browser launch
	LaunchBrowser   bool
	BrowserBinary   string
	BrowserHeadless bool
	ProfileDir      string
	StartURL        string

	TraceStdout bool
}

// Load reads configuration from environment variables and optional .env file.
// Body limit overrides (NETWATCH_MAX_REQUEST_KB, NETWATCH_MAX_RESPONSE_KB) are
// applied to the process-wide limits as a side effect.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:         getEnvOrDefault("NETWATCH_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("NETWATCH_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback: getEnvBoolOrDefault("NETWATCH_PORT_AUTO_FALLBACK", true),
		TabURLFilter:     getEnvOrDefault("NETWATCH_TAB_URL_FILTER", ""),
		BodyTimeout:      time.Duration(getEnvIntOrDefault("NETWATCH_BODY_TIMEOUT_MS", 10000)) * time.Millisecond,
		StaleAfter:       time.Duration(getEnvIntOrDefault("NETWATCH_STALE_AFTER_SEC", 300)) * time.Second,
		LogLevel:         strings.ToLower(getEnvOrDefault("NETWATCH_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("NETWATCH_LOG_FILE", "logs/netwatch.log"),
		ArchiveDir:       getEnvOrDefault("NETWATCH_ARCHIVE_DIR", ""),
		ArchiveMaxFileMB: getEnvIntOrDefault("NETWATCH_ARCHIVE_MAX_FILE_MB", 200),
		ArchiveBuffer:    getEnvIntOrDefault("NETWATCH_ARCHIVE_BUFFER", 5000),
		ArchiveResources: getEnvBoolOrDefault("NETWATCH_ARCHIVE_RESOURCES", false),
		StreamOmitBodies: getEnvBoolOrDefault("NETWATCH_STREAM_OMIT_BODIES", true),
		LaunchBrowser:    getEnvBoolOrDefault("NETWATCH_LAUNCH_BROWSER", false),
		BrowserBinary:    getEnvOrDefault("NETWATCH_BROWSER_BINARY", ""),
		BrowserHeadless:  getEnvBoolOrDefault("NETWATCH_BROWSER_HEADLESS", false),
		ProfileDir:       getEnvOrDefault("NETWATCH_BROWSER_PROFILE_DIR", "./browser_profile"),
		StartURL:         getEnvOrDefault("NETWATCH_START_URL", "about:blank"),
		TraceStdout:      getEnvBoolOrDefault("NETWATCH_TRACE_STDOUT", false),
	}
	if cfg.BodyTimeout < time.Second {
		cfg.BodyTimeout = time.Second
	}
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("invalid CHROMIUM_CDP_PORT: %d", cfg.CDPPort)
	}

	ApplyLimitEnv(os.LookupEnv)
	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
