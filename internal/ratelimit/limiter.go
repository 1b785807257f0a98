// Package ratelimit provides an outbound send throttle for message
// sends, adapted from the teacher's inbound-request limiter built on
// ulule/limiter. Here it guards every outgoing frame a Room sends (bm,
// bauth and the rest) instead of incoming HTTP requests, so a caller that
// sends in a tight loop can't trip Chatango's own server-side
// climited/getratelimit throttle. PM frames do not pass through it.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/toddbirchard/chatangogo/internal/logging"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Limiter wraps a single named rate, keyed by an arbitrary string (room
// name, PM identity, whatever the caller wants to throttle independently).
type Limiter struct {
	instance *limiter.Limiter
}

// New creates a Limiter from a formatted rate string, e.g. "20-S" for 20
// requests per second. An in-memory store is used; callers that need the
// limit shared across processes should construct their own
// limiter.Store-backed instance with a Redis store (see internal/bus for
// the Redis wiring this module already carries).
func New(rate string) (*Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: invalid rate %q: %w", rate, err)
	}
	return &Limiter{instance: limiter.New(memory.NewStore(), r)}, nil
}

// Allow reports whether a send keyed by key is currently permitted,
// consuming from its bucket if so. A nil Limiter always allows (the
// default, off-path behavior spec.md's §5 describes: throttling is
// optional, not required in the core).
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.instance == nil {
		return true
	}
	result, err := l.instance.Get(ctx, key)
	if err != nil {
		logging.Warn(ctx, "ratelimit store failed, failing open")
		return true
	}
	return !result.Reached
}
