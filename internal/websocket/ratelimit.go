package websocket

import "golang.org/x/time/rate"

// RateLimitConfig throttles outbound messages on a connection.
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages may be sent per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// NewLimiter builds a token bucket for the config. A nil or disabled config
// yields a limiter that never waits. The burst is at least 1.
func (c *RateLimitConfig) NewLimiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(c.MessagesPerSecond, max(c.Burst, 1))
}
