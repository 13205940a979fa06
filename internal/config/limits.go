package config

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
)

const (
	DefaultMaxRequestBodyBytes  = 32 * 1024
	DefaultMaxResponseBodyBytes = 64 * 1024

	EnvMaxRequestKB  = "NETWATCH_MAX_REQUEST_KB"
	EnvMaxResponseKB = "NETWATCH_MAX_RESPONSE_KB"
)

// Limits are the body capture ceilings in bytes.
type Limits struct {
	MaxRequestBodyBytes  int `json:"max_request_body_bytes"`
	MaxResponseBodyBytes int `json:"max_response_body_bytes"`
}

// LimitOptions are kilobyte-denominated overrides. Nil leaves a limit unchanged.
type LimitOptions struct {
	MaxRequestKB  *float64 `json:"max_request_kb,omitempty"`
	MaxResponseKB *float64 `json:"max_response_kb,omitempty"`
}

var (
	limitsMu sync.RWMutex
	limits   = DefaultLimits()
)

// DefaultLimits returns the built-in body limits.
func DefaultLimits() Limits {
	return Limits{
		MaxRequestBodyBytes:  DefaultMaxRequestBodyBytes,
		MaxResponseBodyBytes: DefaultMaxResponseBodyBytes,
	}
}

// CurrentLimits returns the limits in effect right now.
func CurrentLimits() Limits {
	limitsMu.RLock()
	defer limitsMu.RUnlock()
	return limits
}

// ConfigureLimits applies kilobyte overrides and returns the effective limits.
// Invalid or non-positive values are ignored and the previous limit stays.
func ConfigureLimits(opts LimitOptions) Limits {
	limitsMu.Lock()
	defer limitsMu.Unlock()

	if opts.MaxRequestKB != nil {
		if b, ok := kilobytesToBytes(*opts.MaxRequestKB); ok {
			limits.MaxRequestBodyBytes = b
		} else {
			slog.Warn("ignoring invalid request body limit", "kb", *opts.MaxRequestKB)
		}
	}
	if opts.MaxResponseKB != nil {
		if b, ok := kilobytesToBytes(*opts.MaxResponseKB); ok {
			limits.MaxResponseBodyBytes = b
		} else {
			slog.Warn("ignoring invalid response body limit", "kb", *opts.MaxResponseKB)
		}
	}
	return limits
}

// ApplyLimitEnv reads NETWATCH_MAX_REQUEST_KB and NETWATCH_MAX_RESPONSE_KB
// through lookup (os.LookupEnv in production) and applies them.
func ApplyLimitEnv(lookup func(string) (string, bool)) Limits {
	var opts LimitOptions
	if kb, ok := parseKB(lookup, EnvMaxRequestKB); ok {
		opts.MaxRequestKB = &kb
	}
	if kb, ok := parseKB(lookup, EnvMaxResponseKB); ok {
		opts.MaxResponseKB = &kb
	}
	return ConfigureLimits(opts)
}

// ResetLimits restores the defaults.
func ResetLimits() {
	limitsMu.Lock()
	limits = DefaultLimits()
	limitsMu.Unlock()
}

func parseKB(lookup func(string) (string, bool), key string) (float64, bool) {
	raw, ok := lookup(key)
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	kb, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("ignoring non-numeric limit", "key", key, "value", raw)
		return 0, false
	}
	return kb, true
}

// kilobytesToBytes rounds to the nearest whole kilobyte. Values that round
// to zero are rejected along with negatives, NaN and infinities.
func kilobytesToBytes(kb float64) (int, bool) {
	if math.IsNaN(kb) || math.IsInf(kb, 0) || kb <= 0 {
		return 0, false
	}
	rounded := math.Round(kb)
	if rounded < 1 || rounded > math.MaxInt32/1024 {
		return 0, false
	}
	return int(rounded) * 1024, true
}
