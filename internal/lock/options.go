package lock

import (
	"log/slog"

	"github.com/juju/clock"
)

type options struct {
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a Locker.
type Option func(*options)

// WithClock sets the time source used for lock timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func applyOptions(opts []Option) options {
	o := options{
		clock:  clock.WallClock,
		logger: slog.Default().With("component", "lock"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
