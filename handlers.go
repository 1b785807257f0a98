package chatango

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/toddbirchard/chatangogo/internal/logging"
	"github.com/toddbirchard/chatangogo/internal/metrics"
)

// nowSeconds returns the local wall clock as Unix seconds with a
// fractional part, the same unit Chatango's own timestamps use.
func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// recordPending mirrors the reconciler's current queue depths into the
// reconcile_pending gauge, labeled by queue, after every b/u frame.
func recordPending(room *Room) {
	mqueue, uqueue := room.reconciler.Pending()
	metrics.ReconcilePending.WithLabelValues(room.name, "mqueue").Set(float64(mqueue))
	metrics.ReconcilePending.WithLabelValues(room.name, "uqueue").Set(float64(uqueue))
}

// handleOk processes the session bootstrap frame: owner, puid, login
// mode, current name/IP, time correction (set exactly once), the mod
// map, and room flags. Grounded on original_source's _rcmd_ok. The self
// user is resolved here since an anonymous login needs AnonName, which
// needs the (now corrected) connection time.
func handleOk(ctx context.Context, room *Room, args []string) {
	parsed, err := ParseOk(args)
	if err != nil {
		logging.Error(ctx, "ok: failed to parse", zap.Error(err))
		return
	}

	now := nowSeconds()
	correction := parsed.ConnTime - now

	var selfUser *User
	switch parsed.LoginMode {
	case "C":
		seed := strings.ReplaceAll(strconv.FormatFloat(correction, 'f', 0, 64), "-", "")
		anon := AnonName(seed, parsed.PUID)
		selfUser = room.registry.Get(anon)
	case "M":
		selfUser = room.registry.Get(parsed.CurrentName)
	}

	room.state.ApplyOk(parsed, now, room.registry, selfUser)
	room.bus.Emit(ctx, "connect", room)
}

// handleInited fires the post-bootstrap request burst once the server
// confirms the session is ready to receive it. Grounded on
// original_source's _rcmd_inited, which calls self._reload().
func handleInited(ctx context.Context, room *Room, args []string) {
	room.reload(ctx)
}

// handleHistoryMessage processes one backfilled message from an i frame.
// Unlike a live b frame, a history message's id is final on arrival —
// there is no matching u frame — so it is prepended to history directly.
func handleHistoryMessage(ctx context.Context, room *Room, args []string) {
	msg, err := parseRoomMessage(args, room.registry, room.state.TimeCorrection())
	if err != nil {
		logging.Info(ctx, "i: dropping malformed history message", zap.Error(err))
		return
	}
	msg.ID = msg.TempID
	msg.Mentions = mentions(msg.Body, room.state.Roster())
	msg.Channel = Channel{Room: room.name, User: msg.User}
	room.state.PrependHistory(msg)
}

// handleMessage processes a live b frame: parse, apply the poster's
// premium/background/style side effects, and hand the provisional
// message to the reconciler. It only joins history once the matching u
// frame arrives and OnB reports the pair complete (per spec §4.G).
func handleMessage(ctx context.Context, room *Room, args []string) {
	msg, err := parseRoomMessage(args, room.registry, room.state.TimeCorrection())
	if err != nil {
		logging.Info(ctx, "b: dropping malformed message", zap.Error(err))
		return
	}
	msg.Mentions = mentions(msg.Body, room.state.Roster())
	msg.Channel = Channel{Room: room.name, User: msg.User}

	applyMessageSideEffects(room, msg)

	if complete, ready := room.reconciler.OnB(msg); ready {
		room.state.AddHistory(complete)
		room.bus.Emit(ctx, "message", complete)
	}
	recordPending(room)
}

// applyMessageSideEffects folds a message's flags back onto its poster's
// persisted style/premium record, matching original_source's _process.
func applyMessageSideEffects(room *Room, msg *Message) {
	premium := msg.Flags.Has(MsgPremium)
	if fresh := msg.User.setPremium(premium, unixTime(msg.Time)); fresh {
		room.bus.Emit(context.Background(), "premium_change", msg.User)
	}
	if msg.Flags.Has(MsgBgOn) && premium {
		msg.User.mergeStyles(Styles{UseBackground: true})
	}
	if msg.NameColor != "" || msg.FontColor != "" || msg.FontFace != "" || msg.FontSize != 0 {
		msg.User.mergeStyles(Styles{
			NameColor: msg.NameColor,
			FontColor: msg.FontColor,
			FontFace:  msg.FontFace,
			FontSize:  msg.FontSize,
		})
	}
}

// handleMessageUpdate binds a provisional message to its final id via a u
// frame. The message only joins history here if it arrived after its
// matching b frame (the OnU order-independence case from spec §8).
func handleMessageUpdate(ctx context.Context, room *Room, args []string) {
	if len(args) < 2 {
		return
	}
	if complete, ready := room.reconciler.OnU(args[0], args[1]); ready {
		room.state.AddHistory(complete)
		room.bus.Emit(ctx, "message", complete)
	}
	recordPending(room)
}

// handleUserCount updates the server-reported user count from an n
// frame's base-16 argument.
func handleUserCount(ctx context.Context, room *Room, args []string) {
	if len(args) < 1 {
		return
	}
	room.state.SetUserCount(args[0])
}

// handleParticipants rebuilds the roster wholesale from a
// g_participants/gparticipants response: a ';'-delimited list of
// ssid:contime:puid:name:tname records. Grounded on
// original_source's _rcmd_g_participants/_rcmd_gparticipants.
func handleParticipants(ctx context.Context, room *Room, args []string) {
	joined := strings.Join(args, ":")
	entries := make(map[string]Participant)
	for _, section := range strings.Split(joined, ";") {
		if section == "" {
			continue
		}
		fields := strings.Split(section, ":")
		if len(fields) < 5 {
			continue
		}
		ssid, contimeStr, puid, name, tname := fields[0], fields[1], fields[2], fields[3], fields[4]
		contime, _ := strconv.ParseFloat(contimeStr, 64)

		resolved := name
		if name == "" || name == "None" {
			if tname != "" && tname != "None" {
				resolved = tname
			} else {
				resolved = AnonName(contimeStr, puid)
			}
		}
		user := room.registry.Get(resolved)
		user.addSession(room.name, ssid)
		entries[ssid] = Participant{JoinedAt: contime, User: user}
	}
	room.state.RebuildRoster(entries)
}

// handleParticipant applies one roster delta (join/leave/login/logout)
// from a participant frame and emits the event RoomState.ApplyParticipant
// reports.
func handleParticipant(ctx context.Context, room *Room, args []string) {
	if len(args) < 7 {
		return
	}
	change, ssid, puid, name, tname, _ip := args[0], args[1], args[2], args[3], args[4], args[5]
	_ = _ip
	contime, _ := strconv.ParseFloat(args[6], 64)

	resolved := name
	if name == "" || name == "None" {
		if tname != "" && tname != "None" {
			resolved = tname
		} else {
			resolved = AnonName(args[6], puid)
		}
	}
	user := room.registry.Get(resolved)

	delta := room.state.ApplyParticipant(change, ssid, user, puid, contime)
	room.bus.Emit(ctx, delta.Event, delta)
}

// handleMods replaces the moderator map from a mods frame's
// comma-separated name,power entries and emits one event per added,
// removed, or changed moderator (spec §4.J).
func handleMods(ctx context.Context, room *Room, args []string) {
	next := make(map[*User]ModeratorFlags)
	for _, entry := range args {
		if entry == "" {
			continue
		}
		name, power, found := strings.Cut(entry, ",")
		if !found {
			continue
		}
		n, err := strconv.ParseUint(power, 10, 32)
		if err != nil {
			continue
		}
		next[room.registry.Get(name)] = ModeratorFlags(n)
	}
	for _, delta := range room.state.ApplyMods(next) {
		room.bus.Emit(ctx, delta.Event, delta)
	}
}

// handleBlocked records one ban and emits ban or anon_ban, resolving the
// target through history when the frame names no one (spec §4.I).
func handleBlocked(ctx context.Context, room *Room, args []string) {
	if len(args) < 5 {
		return
	}
	unid, ip, targetName, bannedByName := args[0], args[1], args[2], args[3]
	at, _ := strconv.ParseFloat(args[4], 64)
	target, bannedBy, anon := room.state.ApplyBlocked(unid, ip, targetName, bannedByName, at, room.registry)
	evt := BanEvent{By: bannedBy, Target: target}
	if anon {
		room.bus.Emit(ctx, "anon_ban", evt)
	} else {
		room.bus.Emit(ctx, "ban", evt)
	}
}

// handleBlocklist replaces the ban table wholesale and emits
// banlist_update.
func handleBlocklist(ctx context.Context, room *Room, args []string) {
	room.state.ApplyBlocklist(strings.Join(args, ":"), room.registry)
	room.bus.Emit(ctx, "banlist_update", room.state.BanList())
}

// handleUnblocked processes one unban and emits unban or anon_unban.
// Grounded on original_source's _rcmd_unblocked: the target name may
// carry a ';'-delimited suffix that is discarded, and the acting user and
// timestamp are always the last two arguments.
func handleUnblocked(ctx context.Context, room *Room, args []string) {
	if len(args) < 5 {
		return
	}
	unid, ip := args[0], args[1]
	targetName := strings.SplitN(args[2], ";", 2)[0]
	srcName := args[len(args)-2]
	at, _ := strconv.ParseFloat(args[len(args)-1], 64)

	target, src, anon := room.state.ApplyUnblocked(unid, ip, targetName, srcName, at, room.registry)
	evt := BanEvent{By: src, Target: target}
	if anon {
		room.bus.Emit(ctx, "anon_unban", evt)
	} else {
		room.bus.Emit(ctx, "unban", evt)
	}
}

// handleUnblocklist replays the recent unban log and emits
// unbanlist_update.
func handleUnblocklist(ctx context.Context, room *Room, args []string) {
	room.state.ApplyUnblocklist(strings.Join(args, ":"), room.registry)
	room.bus.Emit(ctx, "unbanlist_update", room.state.UnbanQueue())
}

// handleGroupFlagsUpdate replaces the room flag bitset and emits
// group_flags.
func handleGroupFlagsUpdate(ctx context.Context, room *Room, args []string) {
	if len(args) < 1 {
		return
	}
	v, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return
	}
	room.state.SetFlags(v)
	room.bus.Emit(ctx, "group_flags", room.state.Flags())
}

// handlePremium acknowledges a getpremium response. original_source uses
// this to schedule a premium-expiry callback; this client exposes premium
// state only via User.IsPremium and the b-frame flag, so the frame is
// logged and otherwise dropped.
func handlePremium(ctx context.Context, room *Room, args []string) {
	logging.Info(ctx, "premium status received", zap.Strings("args", args))
}

// handleDelete removes one message from history and, if history has
// dropped below the backfill threshold and the server hasn't said
// nomore, requests 20 more.
func handleDelete(ctx context.Context, room *Room, args []string) {
	if len(args) < 1 {
		return
	}
	msg, ok, needMore := room.state.DeleteMessage(args[0])
	if !ok {
		return
	}
	room.bus.Emit(ctx, "delete_message", msg)
	if needMore {
		_ = room.RequestMoreHistory()
	}
}

// handleDeleteAll removes every id named in a deleteall frame and emits
// delete_user once, with the full removed set.
func handleDeleteAll(ctx context.Context, room *Room, args []string) {
	removed := room.state.DeleteAll(args)
	if len(removed) == 0 {
		return
	}
	room.bus.Emit(ctx, "delete_user", removed)
}

// handleDenied marks the connection permanently refused: the listen loop
// must never reconnect after this, even though the transport closes the
// same way an ordinary drop would.
func handleDenied(ctx context.Context, room *Room, args []string) {
	room.denied.Store(true)
	room.bus.Emit(ctx, "room_denied", room)
	room.conn.Disconnect()
}

// handleShowFW emits flood_warning.
func handleShowFW(ctx context.Context, room *Room, args []string) {
	room.bus.Emit(ctx, "flood_warning", nil)
}

// handleTempBan emits temp_ban with the ban's duration in seconds.
func handleTempBan(ctx context.Context, room *Room, args []string) {
	var seconds int
	if len(args) > 0 {
		seconds, _ = strconv.Atoi(args[0])
	}
	room.bus.Emit(ctx, "temp_ban", seconds)
}

// handleProxyBanned emits proxy_banned.
func handleProxyBanned(ctx context.Context, room *Room, args []string) {
	room.bus.Emit(ctx, "proxy_banned", nil)
}

// handleShowTempBan emits show_temp_ban with the remaining ban duration.
func handleShowTempBan(ctx context.Context, room *Room, args []string) {
	var seconds int
	if len(args) > 0 {
		seconds, _ = strconv.Atoi(args[0])
	}
	room.bus.Emit(ctx, "show_temp_ban", seconds)
}

// handleLoginOk acknowledges a successful password login by re-requesting
// premium state, which the server only reports freshly post-login.
func handleLoginOk(ctx context.Context, room *Room, args []string) {
	_ = room.send("getpremium", "l")
}

// handleNoMore marks history backfill as exhausted.
func handleNoMore(ctx context.Context, room *Room, args []string) {
	room.state.SetNoMore()
}

// handleLogoutOk emits logout with the anonymous identity this session
// reverts to, derived the same way handleOk derives an anon self user.
func handleLogoutOk(ctx context.Context, room *Room, args []string) {
	corr := room.state.TimeCorrection()
	seed := strings.ReplaceAll(strconv.FormatFloat(corr, 'f', 0, 64), "-", "")
	anon := AnonName(seed, room.state.PUID())
	room.bus.Emit(ctx, "logout", room.registry.Get(anon))
}

// handleAnnc processes an unsolicited announcement push: enabled flag
// plus body, with the period left untouched (getannc is the only frame
// that carries it). Emits announcement_update before announcement when
// the body actually changed, per spec §4.E.
func handleAnnc(ctx context.Context, room *Room, args []string) {
	if len(args) < 2 {
		return
	}
	enabled := args[0] != "0"
	body := strings.Join(args[2:], ":")
	if room.state.UpdateAnnouncementBody(enabled, body) {
		room.bus.Emit(ctx, "announcement_update", enabled)
	}
	room.bus.Emit(ctx, "announcement", room.state.Announcement())
}

// handleGetAnnc processes the full getannouncement response: enabled,
// room name, an unused field, period, and body. Grounded on
// original_source's _rcmd_getannc, whose reserved _ancqueue continuation
// path is never populated by any real server response and is treated
// here as dead — no event is emitted for this frame, matching the
// original's silent assignment.
func handleGetAnnc(ctx context.Context, room *Room, args []string) {
	if len(args) < 4 || args[0] == "none" {
		return
	}
	enabled := args[0] != "0"
	period, _ := strconv.Atoi(args[3])
	body := strings.Join(args[4:], ":")
	room.state.ApplyAnnouncement(enabled, period, body)
}

// handleMsgLExceeded emits room_message_length_exceeded when an outbound
// send was rejected for length.
func handleMsgLExceeded(ctx context.Context, room *Room, args []string) {
	room.bus.Emit(ctx, "room_message_length_exceeded", nil)
}

// handleBw processes a getbannedwords response: two URL-encoded fields,
// partial-match words and whole-match words, and emits banned_words.
func handleBw(ctx context.Context, room *Room, args []string) {
	var part, whole string
	if len(args) > 0 {
		part, _ = url.QueryUnescape(args[0])
	}
	if len(args) > 1 {
		whole, _ = url.QueryUnescape(args[1])
	}
	room.bus.Emit(ctx, "banned_words", BannedWords{Part: part, Whole: whole})
}

// handleUbw acknowledges an updatebannedwords response. original_source
// stores the raw args and raises no event; this client does the same.
func handleUbw(ctx context.Context, room *Room, args []string) {
	logging.Info(ctx, "updated banned words acknowledged", zap.Strings("args", args))
}

// handleClearAll emits clearall with the clearing request's id, once the
// server confirms the history wipe.
func handleClearAll(ctx context.Context, room *Room, args []string) {
	var id string
	if len(args) > 0 {
		id = args[0]
	}
	room.bus.Emit(ctx, "clearall", id)
}

// handleUpdateModErr emits mod_update_error when a moderator action this
// session issued was rejected.
func handleUpdateModErr(ctx context.Context, room *Room, args []string) {
	if len(args) < 2 {
		return
	}
	room.bus.Emit(ctx, "mod_update_error", ModErrEvent{User: room.registry.Get(args[1]), Code: args[0]})
}

// handleMiu emits bg_reload for the named user, telling callers to
// re-fetch that user's background image.
func handleMiu(ctx context.Context, room *Room, args []string) {
	if len(args) < 1 {
		return
	}
	room.bus.Emit(ctx, "bg_reload", room.registry.Get(args[0]))
}

// handleUpdateProfile invalidates the named user's cached profile and
// emits profile_changes.
func handleUpdateProfile(ctx context.Context, room *Room, args []string) {
	if len(args) < 1 {
		return
	}
	user := room.registry.Get(args[0])
	user.clearProfile()
	room.bus.Emit(ctx, "profile_changes", user)
}

// handleReloadProfile invalidates the named user's cached profile and
// emits profile_reload — distinct from profile_changes so callers can
// tell a server-initiated refresh from a user-authored edit.
func handleReloadProfile(ctx context.Context, room *Room, args []string) {
	if len(args) < 1 {
		return
	}
	user := room.registry.Get(args[0])
	user.clearProfile()
	room.bus.Emit(ctx, "profile_reload", user)
}

// handleNoop drops a frame this client acknowledges but takes no action
// on: logoutfirst, getratelimit, climited.
func handleNoop(ctx context.Context, room *Room, args []string) {}
