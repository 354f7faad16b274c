package client

import (
	"github.com/avrabe/raco/internal/logging"
	"golang.org/x/time/rate"
)

// Option configures a Client.
type Option func(c *Client)

// WithLogger sets the client logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit limits outbound calls to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithName sets the client implementation name announced to servers.
func WithName(name, version string) Option {
	return func(c *Client) {
		c.name = name
		c.version = version
	}
}
