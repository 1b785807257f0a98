package chatango

import (
	"time"

	"github.com/toddbirchard/chatangogo/internal/ratelimit"
)

// Config carries the tunables a Client or standalone Room accepts,
// following the teacher's functional-options style rather than parsing
// environment variables or flags: this library is embedded, not run as
// its own process, so config construction is the caller's job.
type Config struct {
	Origin              string
	DialTimeout         time.Duration
	ConnectAllDeadline  time.Duration
	UserAgent           string
	Limiter             *ratelimit.Limiter
	Development         bool
}

// Option configures a Config.
type Option func(*Config)

// DefaultConfig returns the configuration every Room/Client starts from
// absent explicit options.
func DefaultConfig() *Config {
	return &Config{
		Origin:             "http://st.chatango.com",
		DialTimeout:        10 * time.Second,
		ConnectAllDeadline: 5 * time.Second,
		UserAgent:          "chatangogo",
	}
}

// NewConfig builds a Config from DefaultConfig with opts applied in order.
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithOrigin overrides the Origin header sent on every WebSocket dial.
func WithOrigin(origin string) Option {
	return func(c *Config) { c.Origin = origin }
}

// WithDialTimeout bounds how long a single Connect attempt may take.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithConnectAllDeadline overrides the window a Client's ConnectAll gives
// every initial room to reach Connected before returning a partial result.
func WithConnectAllDeadline(d time.Duration) Option {
	return func(c *Config) { c.ConnectAllDeadline = d }
}

// WithUserAgent sets Config.UserAgent. No dial sends it: the WebSocket
// handshake carries only the Origin header.
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithRateLimiter attaches an outbound send throttle shared by every Room
// built from this Config.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(c *Config) { c.Limiter = l }
}

// WithDevelopmentLogging sets Config.Development. Nothing in this package
// reads that field, so the global logger is not reconfigured by it.
func WithDevelopmentLogging() Option {
	return func(c *Config) { c.Development = true }
}
