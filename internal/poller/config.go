package poller

import "time"

// Config controls one polling session.
type Config struct {
	// MaxRetries is the number of consecutive fetch failures retried before
	// the session reports an error and stops.
	MaxRetries int
	// RetryDelay is the constant wait between failed fetches.
	RetryDelay time.Duration
	// StopOnComplete ends the session once a terminal stage is seen.
	StopOnComplete bool
	// RequestTimeout bounds a single fetch. Zero disables the timeout.
	RequestTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		RetryDelay:     2 * time.Second,
		StopOnComplete: true,
		RequestTimeout: 15 * time.Second,
	}
}

// Option overrides a Config field for a single session.
type Option func(*Config)

// WithMaxRetries sets the retry budget. Negative values are treated as 0.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n < 0 {
			n = 0
		}
		c.MaxRetries = n
	}
}

// WithRetryDelay sets the delay between failed fetches.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithStopOnComplete controls whether a terminal stage ends the session.
func WithStopOnComplete(stop bool) Option {
	return func(c *Config) {
		c.StopOnComplete = stop
	}
}

// WithRequestTimeout sets the per-fetch timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

func (c Config) with(opts ...Option) Config {
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}
