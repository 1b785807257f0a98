package chatango

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/toddbirchard/chatangogo/internal/logging"
	"github.com/toddbirchard/chatangogo/internal/metrics"
)

// State is one of the Connection lifecycle states: Disconnected ->
// Dialing -> Connected -> Closing -> Disconnected.
type State int32

const (
	Disconnected State = iota
	Dialing
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Dialing:
		return "dialing"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// pingInterval is how long the ping loop waits between keep-alive frames.
// Chatango's protocol has no server-pong handshake; this is one-way.
const pingInterval = 90 * time.Second

// Connection owns a single WebSocket to one Chatango endpoint (a room
// shard or the PM server). It runs exactly two long-lived cooperative
// goroutines — a receive loop and a ping loop — and serializes all
// writes so sends from any goroutine are safe. Reconnection is not its
// job: the owning Room's listen loop decides whether and when to call
// Connect again.
type Connection struct {
	dialer *websocket.Dialer
	origin string

	state atomic.Int32

	writeMu sync.Mutex
	ws      *websocket.Conn

	onFrame func(string)

	stopPing chan struct{}
	wg       sync.WaitGroup
}

// NewConnection returns a disconnected Connection. onFrame is invoked
// from the receive-loop goroutine for every inbound text frame; it must
// not block for long, since frame observation order must equal handler
// execution order for protocol semantics (see the dispatcher).
func NewConnection(onFrame func(string)) *Connection {
	return NewConnectionWithOrigin("http://st.chatango.com", onFrame)
}

// NewConnectionWithOrigin is NewConnection with an explicit Origin header,
// so a Config's WithOrigin override actually reaches the dial.
func NewConnectionWithOrigin(origin string, onFrame func(string)) *Connection {
	return &Connection{
		dialer:  websocket.DefaultDialer,
		origin:  origin,
		onFrame: onFrame,
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// Connect dials host (a bare hostname, e.g. "s12.chatango.com") over
// ws://host:8080/ with the Origin header Chatango expects. On failure it
// emits a TransportError and leaves the connection Disconnected; it does
// not retry. On success it starts the receive and ping loops.
func (c *Connection) Connect(ctx context.Context, host string) error {
	c.setState(Dialing)

	url := fmt.Sprintf("ws://%s:8080/", host)
	header := http.Header{"Origin": []string{c.origin}}

	dialer := c.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		c.setState(Disconnected)
		return newError(TransportError, "Connection.Connect", err)
	}

	c.ws = ws
	c.setState(Connected)
	c.stopPing = make(chan struct{})

	c.wg.Add(2)
	go c.recvLoop()
	go c.pingLoop()
	return nil
}

// Send writes frame to the socket. It is a quiet no-op when the
// connection is not Connected, matching the spec's NotConnected
// disposition: outbound sends during a reconnect gap are dropped rather
// than queued.
func (c *Connection) Send(frame string) error {
	if c.State() != Connected {
		return newError(NotConnected, "Connection.Send", nil)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return newError(NotConnected, "Connection.Send", nil)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return newError(TransportError, "Connection.Send", err)
	}
	return nil
}

// Disconnect cancels the ping loop and closes the transport. The receive
// loop observes the close and returns on its own; cancellation is
// cooperative, so an in-flight handler runs to completion first.
func (c *Connection) Disconnect() {
	if c.State() == Disconnected {
		return
	}
	c.setState(Closing)
	if c.stopPing != nil {
		select {
		case <-c.stopPing:
		default:
			close(c.stopPing)
		}
	}
	c.writeMu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.writeMu.Unlock()
}

// Wait blocks until both the receive and ping loops have returned, i.e.
// the connection has fully settled into Disconnected.
func (c *Connection) Wait() {
	c.wg.Wait()
}

func (c *Connection) recvLoop() {
	defer c.wg.Done()
	defer c.setState(Disconnected)

	ctx := context.Background()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			logging.Info(ctx, "connection receive loop exiting", zap.Error(err))
			return
		}
		if len(data) == 0 {
			continue
		}
		if c.onFrame != nil {
			c.onFrame(string(data))
		}
	}
}

func (c *Connection) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPing:
			return
		case <-ticker.C:
			_ = c.Send(pingFrame)
		}
	}
}

// breakerRegistry memoizes one gobreaker.CircuitBreaker per shard host
// so a flaky host's repeated dial failures trip a breaker that every
// Room dialing that host shares, instead of each Room hammering it on
// its own 3-second reconnect cadence.
var (
	breakerMu sync.Mutex
	breakers  = make(map[string]*gobreaker.CircuitBreaker)
)

func breakerFor(host string) *gobreaker.CircuitBreaker {
	breakerMu.Lock()
	defer breakerMu.Unlock()
	if b, ok := breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chatango-dial-" + host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.BreakerState.WithLabelValues(host).Set(v)
		},
	})
	breakers[host] = b
	return b
}
