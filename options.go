package telemetry

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Option overrides one of the client's fixed timing defaults.
type Option func(*settings)

// settings holds the resolved timing constants for one client instance.
type settings struct {
	connectTimeout    time.Duration
	pingInterval      time.Duration
	inactivityTimeout time.Duration
	reconnectBase     time.Duration
	reconnectMax      time.Duration
	schemaRetries     int
	schemaRetryDelay  time.Duration
	clock             clock.Clock
}

func defaultSettings() settings {
	return settings{
		connectTimeout:    5 * time.Second,
		pingInterval:      15 * time.Second,
		inactivityTimeout: 10 * time.Second,
		reconnectBase:     time.Second,
		reconnectMax:      10 * time.Second,
		schemaRetries:     3,
		schemaRetryDelay:  2 * time.Second,
		clock:             clock.New(),
	}
}

// WithConnectTimeout sets the budget for a single connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *settings) { s.connectTimeout = d }
}

// WithPingInterval sets the period between keepalive probes.
func WithPingInterval(d time.Duration) Option {
	return func(s *settings) { s.pingInterval = d }
}

// WithInactivityTimeout sets the window after which a silent connection is
// considered dead and forced to reconnect.
func WithInactivityTimeout(d time.Duration) Option {
	return func(s *settings) { s.inactivityTimeout = d }
}

// WithReconnectDelay sets the base and maximum reconnection backoff delays.
func WithReconnectDelay(base, max time.Duration) Option {
	return func(s *settings) {
		s.reconnectBase = base
		s.reconnectMax = max
	}
}

// WithSchemaRetry sets the retry budget for loading the binary-frame schema.
func WithSchemaRetry(attempts int, delay time.Duration) Option {
	return func(s *settings) {
		s.schemaRetries = attempts
		s.schemaRetryDelay = delay
	}
}

// WithClock injects an alternative clock. Tests use this to drive the ping,
// staleness and reconnect timers with a mock clock.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}
