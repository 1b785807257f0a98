package chatango

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/toddbirchard/chatangogo/internal/logging"
	"github.com/toddbirchard/chatangogo/internal/metrics"
	"github.com/toddbirchard/chatangogo/internal/ratelimit"
	"github.com/toddbirchard/chatangogo/internal/server"
)

// Room is one joined Chatango group: a Connection to its shard, its
// RoomState, a MessageReconciler pairing inbound b/u frames, and the EventBus
// callers subscribe to. A Room is usable standalone; Client exists only
// to supervise several of them together.
type Room struct {
	mu sync.Mutex

	name   string
	server string

	conn       *Connection
	dispatcher *ProtocolDispatcher
	state      *RoomState
	registry   *UserRegistry
	reconciler *MessageReconciler
	bus        *EventBus
	limiter    *ratelimit.Limiter

	cfg *Config

	uid string // per-room 16-digit id sent in bauth, not a UUID

	userName string
	password string

	correlationID string // fresh per connect attempt, carried on every log line for that connection's lifetime

	denied atomic.Bool // set by handleDenied; Listen never reconnects once true

	stopListen chan struct{}
	listenDone chan struct{}
}

// NewRoom constructs a Room for name using cfg and a shared or
// per-room UserRegistry. The room is not yet connected; call Listen or
// Connect to dial its shard.
func NewRoom(name string, cfg *Config, registry *UserRegistry) (*Room, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	state, err := NewRoomState(name, server.Resolve(name))
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewUserRegistry()
	}
	r := &Room{
		name:       name,
		server:     state.Server(),
		state:      state,
		registry:   registry,
		reconciler: NewMessageReconciler(),
		bus:        NewEventBus(),
		cfg:        cfg,
		limiter:    cfg.Limiter,
		uid:        genUID(),
	}
	r.dispatcher = newDispatcher(r)
	r.conn = NewConnectionWithOrigin(cfg.Origin, func(frame string) {
		r.mu.Lock()
		cid := r.correlationID
		r.mu.Unlock()
		ctx := logging.WithCorrelationID(logging.WithRoom(context.Background(), r.name), cid)
		r.dispatcher.Dispatch(ctx, frame)
	})
	return r, nil
}

// On subscribes fn to every event named name this Room's handlers emit.
func (r *Room) On(name string, fn Handler) { r.bus.On(name, fn) }

// Name returns the room's lowercase name.
func (r *Room) Name() string { return r.name }

// State exposes the room's read-only roster/history/ban model.
func (r *Room) State() *RoomState { return r.state }

// Registry returns the user-interning table this room shares with its Client, if any.
func (r *Room) Registry() *UserRegistry { return r.registry }

// Connect dials the room's shard and sends the bauth handshake; the
// bootstrap request burst follows later, when the server's inited frame
// arrives. userName/password may be empty for an anonymous join.
func (r *Room) Connect(ctx context.Context, userName, password string) error {
	if r.conn.State() == Connected {
		return newError(AlreadyConnected, "Room.Connect", nil)
	}
	r.userName = userName
	r.password = password

	r.mu.Lock()
	r.correlationID = uuid.NewString()
	r.mu.Unlock()

	dialCtx := ctx
	if r.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, r.cfg.DialTimeout)
		defer cancel()
	}
	if err := r.conn.Connect(dialCtx, r.server); err != nil {
		return err
	}
	metrics.ConnectionsActive.WithLabelValues("room").Inc()
	r.reconciler.Reset()

	if err := r.send("bauth", r.name, r.uid, userName, password); err != nil {
		return err
	}
	return nil
}

// reload fires the burst of post-login requests original Chatango
// clients send once an inited frame confirms the session's bootstrap is
// ready: participant sync (g_participants if the room is small enough
// that a full roster is cheap, gparticipants otherwise), premium status,
// announcement, banned words, rate limit, and both ban logs. Triggered
// by the "inited" verb, per spec §4.E.
func (r *Room) reload(ctx context.Context) {
	if r.state.UserCount() <= 1000 {
		_ = r.send("g_participants:start")
	} else {
		_ = r.send("gparticipants:start")
	}
	_ = r.send("getpremium", "l")
	_ = r.send("getannouncement")
	_ = r.send("getbannedwords")
	_ = r.send("getratelimit")
	_ = r.RequestBanlist()
	_ = r.RequestUnbanlist()
}

// send encodes args as a frame and writes it, rate-limiting outbound
// traffic when a Limiter is configured and recording a frames_sent metric
// labeled by verb.
func (r *Room) send(args ...string) error {
	if r.limiter != nil && len(args) > 0 && !r.limiter.Allow(context.Background(), r.name) {
		return newError(HandlerError, "Room.send", nil)
	}
	if len(args) > 0 {
		metrics.FramesSentTotal.WithLabelValues(args[0]).Inc()
	}
	return r.conn.Send(encodeFrame(args...))
}

// SendMessage posts body to the room, chunking it on grapheme boundaries
// and normalizing it to NFC first. Each chunk is wrapped in the n/f style
// tags Chatango expects, using the self user's current styles, and sent
// as its own bm frame with a fresh random tag.
func (r *Room) SendMessage(ctx context.Context, body string, flags MessageFlags) error {
	self := r.state.SelfUser()
	var styles Styles
	if self != nil {
		styles = self.Styles()
	} else {
		styles = DefaultStyles()
	}

	chunks := messageCut(normalizeMessage(body), maxMessageLength)
	allFlags := fmt.Sprint(uint32(flags | r.state.Badge()))
	for _, chunk := range chunks {
		tag := genMessageTag()
		wrapped := wrapMessageHTML(chunk, styles)
		if err := r.send("bm", tag, allFlags, wrapped); err != nil {
			return err
		}
	}
	return nil
}

// BanUser bans the named user by requesting their most recent message's
// unid/ip, matching original_source's ban_user (a ban is issued by
// replaying the identifying triple from a message, not the bare name).
func (r *Room) BanUser(ctx context.Context, username string) error {
	user, ok := r.registry.Lookup(username)
	if !ok {
		return newError(HandlerError, "Room.BanUser", nil)
	}
	history := r.state.History()
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.User == user {
			return r.send("block", msg.UNID, msg.IP, username)
		}
	}
	return newError(HandlerError, "Room.BanUser", nil)
}

// UnbanUser reverses a ban recorded in the room's ban table.
func (r *Room) UnbanUser(ctx context.Context, username string) error {
	user, ok := r.registry.Lookup(username)
	if !ok {
		return newError(HandlerError, "Room.UnbanUser", nil)
	}
	rec, ok := r.state.BanList()[user]
	if !ok {
		return newError(HandlerError, "Room.UnbanUser", nil)
	}
	return r.send("removeblock", rec.UNID, rec.IP, username)
}

// DeleteMessage asks the server to delete one message by id.
func (r *Room) DeleteMessage(ctx context.Context, id string) error {
	return r.send("delmsg", id)
}

// DeleteUser deletes every message in history attributed to username.
func (r *Room) DeleteUser(ctx context.Context, username string) error {
	user, ok := r.registry.Lookup(username)
	if !ok {
		return newError(HandlerError, "Room.DeleteUser", nil)
	}
	for _, msg := range r.state.History() {
		if msg.User == user {
			if err := r.send("delallmsg", msg.UNID, msg.IP, username); err != nil {
				return err
			}
			return nil
		}
	}
	return newError(HandlerError, "Room.DeleteUser", nil)
}

// ClearAll wipes the room's entire message history, server-side.
func (r *Room) ClearAll(ctx context.Context) error {
	return r.send("clearall")
}

// RequestBanlist asks the server to resend the full ban table.
func (r *Room) RequestBanlist() error {
	now := strconv.FormatInt(time.Now().Unix()+int64(r.state.TimeCorrection()), 10)
	return r.send("blocklist", "block", now, "next", "500", "anons", "1")
}

// RequestUnbanlist asks the server to resend the recent unban log.
func (r *Room) RequestUnbanlist() error {
	now := strconv.FormatInt(time.Now().Unix()+int64(r.state.TimeCorrection()), 10)
	return r.send("blocklist", "unblock", now, "next", "500", "anons", "1")
}

// RequestMoreHistory asks the server for 20 more backfilled messages
// before the oldest one currently held.
func (r *Room) RequestMoreHistory() error {
	if r.state.NoMore() {
		return nil
	}
	return r.send("get_more", "20", "0")
}

// Disconnect tears down the room's connection without affecting any
// in-flight listen loop's retry decision; Stop should be used to end the
// listen loop itself.
func (r *Room) Disconnect() {
	r.conn.Disconnect()
	r.conn.Wait()
	metrics.ConnectionsActive.WithLabelValues("room").Dec()
	r.bus.Emit(context.Background(), "disconnect", r)
}

// Listen connects, then supervises the connection for the lifetime of
// ctx: on an unexpected disconnect it waits out the dial circuit breaker
// for this shard (if open) or a fixed 3-second backoff, then reconnects.
// Listen returns when ctx is done or Stop is called.
func (r *Room) Listen(ctx context.Context, userName, password string) error {
	r.mu.Lock()
	if r.stopListen != nil {
		r.mu.Unlock()
		return newError(AlreadyConnected, "Room.Listen", nil)
	}
	r.stopListen = make(chan struct{})
	r.listenDone = make(chan struct{})
	r.mu.Unlock()
	defer close(r.listenDone)

	if err := r.Connect(ctx, userName, password); err != nil {
		return err
	}

	for {
		r.conn.Wait()
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopListen:
			return nil
		default:
		}
		if r.denied.Load() {
			return newError(ProtocolDenied, "Room.Listen", nil)
		}

		metrics.ReconnectsTotal.WithLabelValues(r.name).Inc()
		breaker := breakerFor(r.server)
		if breaker.State() == gobreaker.StateOpen {
			logging.Info(ctx, "dial breaker open, backing off", zap.String("room", r.name))
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return nil
			case <-r.stopListen:
				return nil
			}
			continue
		}

		select {
		case <-time.After(3 * time.Second):
		case <-ctx.Done():
			return nil
		case <-r.stopListen:
			return nil
		}

		if _, err := breaker.Execute(func() (any, error) { return nil, r.Connect(ctx, userName, password) }); err != nil {
			logging.Info(ctx, "reconnect attempt failed", zap.Error(err))
			continue
		}
	}
}

// Stop ends an active Listen loop and disconnects.
func (r *Room) Stop() {
	r.mu.Lock()
	stop := r.stopListen
	r.mu.Unlock()
	if stop == nil {
		r.Disconnect()
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	r.Disconnect()
}

// genUID returns a random 16-digit decimal string, the shape Chatango's
// protocol expects for the per-connection uid sent in bauth. It is
// deliberately not a UUID: the wire format is a bare numeric string with
// no hyphens.
func genUID() string {
	var sb [16]byte
	for i := range sb {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		sb[i] = byte('0' + n.Int64())
	}
	return string(sb[:])
}
