// Package wait provides a fixed-interval polling loop for cluster conditions.
package wait

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when a bounded wait runs out of attempts before the
// condition holds.
var ErrExhausted = errors.New("condition not met within the configured attempts")

const defaultInterval = 5 * time.Second

// Config holds polling configuration.
type Config struct {
	Interval time.Duration

	// MaxAttempts bounds the number of predicate evaluations.
	// Zero means poll indefinitely.
	MaxAttempts int

	// Progress is invoked once per attempt, before the predicate runs.
	Progress func(attempt int)
}

// Option is a functional option for polling configuration.
type Option func(*Config)

// Until polls the predicate at a fixed interval until it reports true.
// Each cycle sleeps first and then evaluates, so a condition that depends on a
// just-issued mutation is never checked immediately. Connectivity failures are
// the predicate's concern: it reports false for "not yet", never an error.
//
// By default the loop runs until the predicate holds or the context is
// cancelled. WithMaxAttempts opts into a bounded wait that fails with
// ErrExhausted.
func Until(ctx context.Context, predicate func(ctx context.Context) bool, opts ...Option) error {
	cfg := &Config{
		Interval: defaultInterval,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}

		if cfg.Progress != nil {
			cfg.Progress(attempt)
		}

		if predicate(ctx) {
			return nil
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return ErrExhausted
		}
	}
}

// WithInterval sets the delay between predicate evaluations.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Interval = d
		}
	}
}

// WithMaxAttempts bounds the number of predicate evaluations. Zero keeps the
// loop unbounded.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithProgress sets a callback invoked once per attempt.
func WithProgress(fn func(attempt int)) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}
