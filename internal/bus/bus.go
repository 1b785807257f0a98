// Package bus provides an optional, Redis-backed cross-process fan-out
// for dispatched room events, adapted from the teacher's bus.Service: a
// gobreaker-wrapped Redis client with a Prometheus state-change callback.
// When no Redis address is configured, every method is a no-op — a
// Client runs fine single-process with no Redis at all.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/toddbirchard/chatangogo/internal/logging"
	"github.com/toddbirchard/chatangogo/internal/metrics"
)

// Event is the envelope published for every dispatched room event.
type Event struct {
	Room    string          `json:"room"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Service publishes room events to Redis so multiple processes can share
// a live room's event stream.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// New connects to addr and verifies reachability. Pass an empty addr to
// get a nil *Service that every call below treats as "disabled".
func New(addr, password string) (*Service, error) {
	if addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "chatango-bus",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.BreakerState.WithLabelValues("redis-bus").Set(v)
		},
	}

	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

func channel(room string) string {
	return "chatango:" + room + ":events"
}

// Publish republishes a dispatched event onto the room's Redis channel.
// Errors are logged and swallowed: a dead bus must never fail a local
// dispatch.
func (s *Service) Publish(ctx context.Context, room, name string, payload any) {
	if s == nil || s.client == nil {
		return
	}
	_, err := s.cb.Execute(func() (any, error) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(Event{Room: room, Name: name, Payload: raw})
		if err != nil {
			return nil, err
		}
		return nil, s.client.Publish(ctx, channel(room), data).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			logging.Warn(ctx, "bus publish dropped: circuit open")
			return
		}
		logging.Error(ctx, "bus publish failed")
	}
}

// Subscribe starts a background goroutine delivering events published to
// room by other processes until ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, room string, handler func(Event)) {
	if s == nil || s.client == nil {
		return
	}
	sub := s.client.Subscribe(ctx, channel(room))
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					logging.Error(ctx, "bus: malformed event payload")
					continue
				}
				handler(evt)
			}
		}
	}()
}

// Close releases the underlying Redis client.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
