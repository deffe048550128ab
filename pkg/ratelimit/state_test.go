package ratelimit

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		enabled bool
		limit   rate.Limit
		burst   int
		str     string
	}{
		{"disabled", Config{}, false, rate.Inf, 1, "unlimited"},
		{"negative rate", Config{RequestsPerSecond: -1, Burst: 3}, false, rate.Inf, 3, "unlimited"},
		{"enabled", Config{RequestsPerSecond: 10, Burst: 5}, true, rate.Limit(10), 5, "10.00 req/s (burst 5)"},
		{"zero burst", Config{RequestsPerSecond: 0.5}, true, rate.Limit(0.5), 1, "0.50 req/s (burst 1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Enabled(); got != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", got, tt.enabled)
			}
			if got := tt.config.Limit(); got != tt.limit {
				t.Errorf("Limit() = %v, want %v", got, tt.limit)
			}
			if got := tt.config.burst(); got != tt.burst {
				t.Errorf("burst() = %d, want %d", got, tt.burst)
			}
			if got := tt.config.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}
