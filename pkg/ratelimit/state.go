// Package ratelimit throttles record fetches to a configured request rate.
package ratelimit

import (
	"fmt"

	"golang.org/x/time/rate"
)

// Config holds the throttle configuration.
type Config struct {
	// RequestsPerSecond is the sustained request rate. Values <= 0 disable
	// throttling.
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once. Values < 1 become 1.
	Burst int
}

// Enabled reports whether the configuration throttles at all.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// Limit returns the limiter rate for the configuration.
func (c Config) Limit() rate.Limit {
	if !c.Enabled() {
		return rate.Inf
	}
	return rate.Limit(c.RequestsPerSecond)
}

// burst returns the normalized burst size.
func (c Config) burst() int {
	if c.Burst < 1 {
		return 1
	}
	return c.Burst
}

// String describes the configuration for logs.
func (c Config) String() string {
	if !c.Enabled() {
		return "unlimited"
	}
	return fmt.Sprintf("%.2f req/s (burst %d)", c.RequestsPerSecond, c.burst())
}
