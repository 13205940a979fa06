package config

import (
	"math"
	"testing"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaultLimits(t *testing.T) {
	ResetLimits()
	got := CurrentLimits()
	if got.MaxRequestBodyBytes != 32*1024 {
		t.Fatalf("MaxRequestBodyBytes = %d; want %d", got.MaxRequestBodyBytes, 32*1024)
	}
	if got.MaxResponseBodyBytes != 64*1024 {
		t.Fatalf("MaxResponseBodyBytes = %d; want %d", got.MaxResponseBodyBytes, 64*1024)
	}
}

func TestConfigureLimits(t *testing.T) {
	t.Cleanup(ResetLimits)

	t.Run("rounds_to_nearest_kilobyte", func(t *testing.T) {
		ResetLimits()
		req, res := 1.4, 2.6
		got := ConfigureLimits(LimitOptions{MaxRequestKB: &req, MaxResponseKB: &res})
		if got.MaxRequestBodyBytes != 1024 {
			t.Fatalf("MaxRequestBodyBytes = %d; want 1024", got.MaxRequestBodyBytes)
		}
		if got.MaxResponseBodyBytes != 3*1024 {
			t.Fatalf("MaxResponseBodyBytes = %d; want %d", got.MaxResponseBodyBytes, 3*1024)
		}
	})

	t.Run("invalid_values_keep_previous", func(t *testing.T) {
		ResetLimits()
		for _, bad := range []float64{0, -4, 0.3, math.NaN(), math.Inf(1)} {
			v := bad
			got := ConfigureLimits(LimitOptions{MaxRequestKB: &v})
			if got.MaxRequestBodyBytes != DefaultMaxRequestBodyBytes {
				t.Fatalf("ConfigureLimits(%v) request = %d; want default %d", bad, got.MaxRequestBodyBytes, DefaultMaxRequestBodyBytes)
			}
		}
	})

	t.Run("nil_options_leave_limits_unchanged", func(t *testing.T) {
		ResetLimits()
		if got := ConfigureLimits(LimitOptions{}); got != DefaultLimits() {
			t.Fatalf("ConfigureLimits({}) = %+v; want defaults", got)
		}
	})
}

func TestApplyLimitEnv(t *testing.T) {
	t.Cleanup(ResetLimits)
	ResetLimits()

	got := ApplyLimitEnv(lookupFrom(map[string]string{
		EnvMaxRequestKB:  " 8 ",
		EnvMaxResponseKB: "not-a-number",
	}))
	if got.MaxRequestBodyBytes != 8*1024 {
		t.Fatalf("MaxRequestBodyBytes = %d; want %d", got.MaxRequestBodyBytes, 8*1024)
	}
	if got.MaxResponseBodyBytes != DefaultMaxResponseBodyBytes {
		t.Fatalf("MaxResponseBodyBytes = %d; want default %d", got.MaxResponseBodyBytes, DefaultMaxResponseBodyBytes)
	}

	got = ApplyLimitEnv(lookupFrom(map[string]string{EnvMaxResponseKB: "-1"}))
	if got.MaxResponseBodyBytes != DefaultMaxResponseBodyBytes {
		t.Fatalf("negative override applied: MaxResponseBodyBytes = %d", got.MaxResponseBodyBytes)
	}
	if got.MaxRequestBodyBytes != 8*1024 {
		t.Fatalf("unrelated limit changed: MaxRequestBodyBytes = %d", got.MaxRequestBodyBytes)
	}
}
