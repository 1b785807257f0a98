package chatango

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toddbirchard/chatangogo/internal/logging"
)

// Client owns a set of Rooms plus an optional PM session and supervises
// their listen loops together, sharing one UserRegistry across all of
// them so the same account seen in two rooms interns to one *User.
// Grounded on original_source's Client: construction takes the account
// credentials and initial room list; JoinRoom/LeaveRoom/JoinPM/LeavePM
// mutate membership afterward; Stop tears everything down.
type Client struct {
	mu sync.Mutex

	userName string
	password string

	cfg      *Config
	registry *UserRegistry

	rooms map[string]*Room
	pm    *PM

	wg sync.WaitGroup
}

// NewClient builds a Client for the given account. userName/password may
// be empty to join rooms anonymously; cfg may be nil for DefaultConfig.
func NewClient(userName, password string, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		userName: userName,
		password: password,
		cfg:      cfg,
		registry: NewUserRegistry(),
		rooms:    make(map[string]*Room),
	}
}

// Registry returns the UserRegistry every Room this Client owns shares.
func (c *Client) Registry() *UserRegistry { return c.registry }

// Room returns the named Room if this Client currently owns it.
func (c *Client) Room(name string) (*Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[strings.ToLower(name)]
	return r, ok
}

// InRoom reports whether this Client currently owns the named Room.
func (c *Client) InRoom(name string) bool {
	_, ok := c.Room(name)
	return ok
}

// JoinRoom validates name, constructs a Room sharing this Client's
// registry and config, and launches its listen loop in the background.
// It returns once the loop has been started, not once the Room has
// connected — subscribe to "connect" on the returned Room to observe that.
func (c *Client) JoinRoom(ctx context.Context, name string) (*Room, error) {
	if !ValidateRoomName(name) {
		return nil, newError(InvalidRoomName, "Client.JoinRoom", nil)
	}
	lname := strings.ToLower(name)

	c.mu.Lock()
	if _, ok := c.rooms[lname]; ok {
		c.mu.Unlock()
		return nil, newError(AlreadyConnected, "Client.JoinRoom", nil)
	}
	room, err := NewRoom(lname, c.cfg, c.registry)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.rooms[lname] = room
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := room.Listen(ctx, c.userName, c.password); err != nil {
			logging.Info(ctx, "room listen loop exited", zap.String("room", lname), zap.Error(err))
		}
		c.mu.Lock()
		delete(c.rooms, lname)
		c.mu.Unlock()
	}()
	return room, nil
}

// LeaveRoom stops the named Room's listen loop and disconnects it, if owned.
func (c *Client) LeaveRoom(name string) {
	if room, ok := c.Room(name); ok {
		room.Stop()
	}
}

// JoinPM opens this Client's PM session. It requires the account
// credentials supplied at construction.
func (c *Client) JoinPM(ctx context.Context) error {
	if c.userName == "" || c.password == "" {
		return newError(HandlerError, "Client.JoinPM", nil)
	}
	c.mu.Lock()
	if c.pm != nil {
		c.mu.Unlock()
		return newError(AlreadyConnected, "Client.JoinPM", nil)
	}
	pm := newPM(c.cfg)
	c.pm = pm
	c.mu.Unlock()

	if err := pm.Connect(ctx, c.userName, c.password); err != nil {
		c.mu.Lock()
		c.pm = nil
		c.mu.Unlock()
		return err
	}
	return nil
}

// LeavePM closes this Client's PM session, if open.
func (c *Client) LeavePM() {
	c.mu.Lock()
	pm := c.pm
	c.pm = nil
	c.mu.Unlock()
	if pm != nil {
		pm.Disconnect()
	}
}

// PM returns the active PM session, or nil if none is open.
func (c *Client) PM() *PM {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pm
}

// ConnectAll joins every room in names and, if usePM, the PM session,
// waiting up to cfg.ConnectAllDeadline (default 5s) for each room to
// report "connect" before returning. A room that misses the deadline is
// logged, not torn down: per spec §5 the Client proceeds to "started"
// regardless.
func (c *Client) ConnectAll(ctx context.Context, names []string, usePM bool) error {
	deadline := c.cfg.ConnectAllDeadline
	if deadline <= 0 {
		deadline = 5 * time.Second
	}

	var mu sync.Mutex
	pending := make(map[string]struct{}, len(names)+1)
	done := make(chan struct{})
	signalIfDone := func() {
		mu.Lock()
		empty := len(pending) == 0
		mu.Unlock()
		if empty {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}

	for _, name := range names {
		lname := strings.ToLower(name)
		mu.Lock()
		pending[lname] = struct{}{}
		mu.Unlock()

		room, err := c.JoinRoom(ctx, name)
		if err != nil {
			logging.Info(ctx, "failed to join room", zap.String("room", name), zap.Error(err))
			mu.Lock()
			delete(pending, lname)
			mu.Unlock()
			continue
		}
		room.On("connect", func(Event) {
			mu.Lock()
			delete(pending, lname)
			mu.Unlock()
			signalIfDone()
		})
	}

	if usePM {
		if err := c.JoinPM(ctx); err != nil {
			logging.Info(ctx, "failed to join pm", zap.Error(err))
		}
	}
	signalIfDone()

	select {
	case <-done:
	case <-time.After(deadline):
		mu.Lock()
		for name := range pending {
			logging.Info(ctx, "room did not connect before deadline", zap.String("room", name))
		}
		mu.Unlock()
	case <-ctx.Done():
	}
	return nil
}

// Stop ends every Room's listen loop and closes the PM session, then
// waits for all listen goroutines to return.
func (c *Client) Stop() {
	c.mu.Lock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
	c.LeavePM()
	c.wg.Wait()
}
