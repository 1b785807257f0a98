package chatango

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/toddbirchard/chatangogo/internal/logging"
	"github.com/toddbirchard/chatangogo/internal/metrics"
)

// verbHandler processes one decoded frame's arguments against a Room.
// Handlers never return an error to the dispatcher: a handler that hits
// a malformed frame logs and drops rather than tearing down the
// connection, matching the spec's resilience requirement for a single
// bad frame.
type verbHandler func(ctx context.Context, room *Room, args []string)

// ProtocolDispatcher routes decoded verb/args pairs to the handler table
// a Room registers. Dispatch is strictly sequential: frames are handled
// one at a time, in the order the Connection delivered them, since
// protocol semantics (roster deltas, message reconciliation) depend on
// that order.
type ProtocolDispatcher struct {
	room  *Room
	table map[string]verbHandler
}

// newDispatcher builds the dispatcher for room, wired to the static verb
// table below.
func newDispatcher(room *Room) *ProtocolDispatcher {
	return &ProtocolDispatcher{room: room, table: verbTable}
}

// Dispatch decodes one raw frame and routes it to its handler. An empty
// frame (the bare ping terminator) is dropped silently; an unrecognized
// verb is logged at info level and dropped; a handler panic is recovered
// so it never takes down the receive loop that called Dispatch.
func (d *ProtocolDispatcher) Dispatch(ctx context.Context, raw string) {
	verb, args := decodeFrame(raw)
	if verb == "" {
		return
	}
	metrics.FramesReceivedTotal.WithLabelValues(verb).Inc()

	handler, ok := d.table[verb]
	if !ok {
		logging.Info(ctx, "dropping unrecognized verb", zap.String("verb", verb))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "verb handler panicked", zap.String("verb", verb), zap.String("recover", fmt.Sprint(r)))
			metrics.HandlerErrorsTotal.WithLabelValues(verb).Inc()
		}
	}()
	handler(ctx, d.room, args)
}

// verbTable maps every inbound verb this client understands to its
// handler, per spec §4.E's key-verb enumeration. Unlisted verbs fall
// through to Dispatch's unknown-verb path.
var verbTable = map[string]verbHandler{
	"ok":               handleOk,
	"inited":           handleInited,
	"i":                handleHistoryMessage,
	"b":                handleMessage,
	"u":                handleMessageUpdate,
	"n":                handleUserCount,
	"g_participants":   handleParticipants,
	"gparticipants":    handleParticipants,
	"participant":      handleParticipant,
	"mods":             handleMods,
	"blocked":          handleBlocked,
	"blocklist":        handleBlocklist,
	"unblocked":        handleUnblocked,
	"unblocklist":      handleUnblocklist,
	"groupflagsupdate": handleGroupFlagsUpdate,
	"premium":          handlePremium,
	"delete":           handleDelete,
	"deleteall":        handleDeleteAll,
	"denied":           handleDenied,
	"show_fw":          handleShowFW,
	"show_nlp":         handleShowFW,
	"nlptb":            handleShowFW,
	"tb":               handleTempBan,
	"proxybanned":      handleProxyBanned,
	"show_tb":          handleShowTempBan,
	"pwdok":            handleLoginOk,
	"nomore":           handleNoMore,
	"logoutok":         handleLogoutOk,
	"logoutfirst":      handleNoop,
	"annc":             handleAnnc,
	"getannc":          handleGetAnnc,
	"getratelimit":     handleNoop,
	"msglexceeded":     handleMsgLExceeded,
	"bw":               handleBw,
	"ubw":              handleUbw,
	"climited":         handleNoop,
	"clearall":         handleClearAll,
	"updatemoderr":     handleUpdateModErr,
	"miu":              handleMiu,
	"updateprofile":    handleUpdateProfile,
	"reload_profile":   handleReloadProfile,
}
