package chatango

import "context"

// pmHost is the fixed endpoint Chatango's private-message service
// listens on. PM's command vocabulary beyond the shared frame/connection
// core is an explicit Non-goal (spec §1: "room is the canonical case and
// PM reuses the connection core with a different command vocabulary"),
// so PM here is the bare Connection wired to a blogin handshake, not a
// parsed verb table — every inbound frame surfaces as a single raw event.
const pmHost = "c1.chatango.com"

// PM is a minimal personal-message session: the same Connection/LineCodec
// core a Room uses, dialed against pmHost, without a dispatch table.
// Callers that need PM semantics beyond "I'm connected and frames arrive"
// parse pm_frame themselves.
type PM struct {
	conn *Connection
	bus  *EventBus
}

func newPM(cfg *Config) *PM {
	p := &PM{bus: NewEventBus()}
	p.conn = NewConnectionWithOrigin(cfg.Origin, func(frame string) {
		p.bus.Emit(context.Background(), "pm_frame", frame)
	})
	return p
}

// On subscribes fn to pm_frame, the only event this minimal session raises.
func (p *PM) On(name string, fn Handler) { p.bus.On(name, fn) }

// Connect dials the PM host and sends the login handshake.
func (p *PM) Connect(ctx context.Context, userName, password string) error {
	if err := p.conn.Connect(ctx, pmHost); err != nil {
		return err
	}
	return p.conn.Send(encodeFrame("blogin", userName, password))
}

// Send writes a raw frame to the PM connection.
func (p *PM) Send(args ...string) error {
	return p.conn.Send(encodeFrame(args...))
}

// Disconnect closes the PM connection and waits for its loops to exit.
func (p *PM) Disconnect() {
	p.conn.Disconnect()
	p.conn.Wait()
}
