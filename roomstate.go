package chatango

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"k8s.io/utils/set"
)

// roomNameRe is the validation regex every Room name must match before
// any Room operation proceeds.
var roomNameRe = regexp.MustCompile(`^[a-z0-9-]{1,20}$`)

// ValidateRoomName reports whether name is a legal Chatango room name.
func ValidateRoomName(name string) bool {
	return roomNameRe.MatchString(name)
}

// BanRecord is one entry in a room's ban table or unban log.
type BanRecord struct {
	UNID     string
	IP       string
	Target   *User
	Time     float64
	BannedBy *User
}

// Participant is one roster entry: the moment a session-id joined plus
// the user that session belongs to.
type Participant struct {
	JoinedAt float64
	User     *User
}

// ParticipantHistoryEntry records a recent roster departure or
// login/logout transition.
type ParticipantHistoryEntry struct {
	Time float64
	User *User
}

// Announcement is the room's persistent-banner state.
type Announcement struct {
	Enabled bool
	Period  int
	Body    string
}

const (
	historyCap  = 2900
	userHistCap = 10
	unbanCap    = 500
)

// RoomState is the authoritative in-memory model for one room: roster,
// message history, moderator map, ban tables, and announcement. Every
// mutating method here is called only from the owning Connection's
// receive-loop goroutine (see the concurrency model), so the mutex below
// guards readers on other goroutines (a user's own API calls, metrics
// scrapers) rather than concurrent writers.
type RoomState struct {
	mu sync.RWMutex

	name   string
	server string

	selfUser *User
	owner    *User
	puid     string
	loginMode string
	currentName string
	currentIP string

	mods map[*User]ModeratorFlags

	participants        map[string]Participant
	participantHistory  []ParticipantHistoryEntry

	messageHistory []*Message
	messagesByID   map[string]*Message

	banList    map[*User]BanRecord
	unbanQueue []BanRecord

	announcement Announcement
	flags        RoomFlags
	badge        int

	userCount      int
	timeCorrection float64
	timeCorrectionSet bool

	nomore bool
}

// NewRoomState validates name and returns an empty RoomState for it, or
// an InvalidRoomName error.
func NewRoomState(name, server string) (*RoomState, error) {
	if !ValidateRoomName(name) {
		return nil, newError(InvalidRoomName, "NewRoomState", nil)
	}
	return &RoomState{
		name:         name,
		server:       server,
		mods:         make(map[*User]ModeratorFlags),
		participants: make(map[string]Participant),
		messagesByID: make(map[string]*Message),
		banList:      make(map[*User]BanRecord),
	}, nil
}

func (r *RoomState) Name() string   { return r.name }
func (r *RoomState) Server() string { return r.server }

func (r *RoomState) SelfUser() *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfUser
}

func (r *RoomState) Owner() *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

func (r *RoomState) Flags() RoomFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags
}

func (r *RoomState) TimeCorrection() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeCorrection
}

// Badge returns the message flag bit the room's own mod/staff badge
// contributes to outbound sends: 0 none, SHOW_MOD_ICON, or
// SHOW_STAFF_ICON, per original_source's Room.badge property.
func (r *RoomState) Badge() MessageFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.badge {
	case 1:
		return MsgShowModIcon
	case 2:
		return MsgShowStaffIcon
	default:
		return 0
	}
}

// Level returns the moderation level of user in this room: 3 owner, 2
// admin-mod, 1 plain mod, 0 otherwise. Grounded on original_source's
// Room.get_level.
func (r *RoomState) Level(user *User) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user == nil {
		return 0
	}
	if user == r.owner {
		return 3
	}
	if flags, ok := r.mods[user]; ok {
		if flags.IsAdmin() {
			return 2
		}
		return 1
	}
	return 0
}

// Mods returns a snapshot of the moderator map.
func (r *RoomState) Mods() map[*User]ModeratorFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[*User]ModeratorFlags, len(r.mods))
	for u, f := range r.mods {
		out[u] = f
	}
	return out
}

// UserList returns the distinct non-anonymous users currently present.
func (r *RoomState) UserList() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*User]struct{})
	var out []*User
	for _, p := range r.participants {
		if p.User.IsAnon() {
			continue
		}
		if _, ok := seen[p.User]; ok {
			continue
		}
		seen[p.User] = struct{}{}
		out = append(out, p.User)
	}
	return out
}

// UserCount returns the server-reported user count, or the roster's live
// length when the room's NO_COUNTER flag is set.
func (r *RoomState) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.flags.Has(FlagNoCounter) {
		return len(r.participants)
	}
	return r.userCount
}

// History returns a snapshot of the bounded message history, oldest first.
func (r *RoomState) History() []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Message, len(r.messageHistory))
	copy(out, r.messageHistory)
	return out
}

// MessageByID looks up a message by its final id.
func (r *RoomState) MessageByID(id string) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messagesByID[id]
	return m, ok
}

// BanList returns a snapshot of the ban table.
func (r *RoomState) BanList() map[*User]BanRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[*User]BanRecord, len(r.banList))
	for u, rec := range r.banList {
		out[u] = rec
	}
	return out
}

// Announcement returns the current announcement triple.
func (r *RoomState) Announcement() Announcement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.announcement
}

// PUID returns the persistent user id the server assigned this session,
// set once by ApplyOk.
func (r *RoomState) PUID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.puid
}

// Roster returns a snapshot of the present participants keyed by
// lowercase user name, used by mention-extraction.
func (r *RoomState) Roster() map[string]*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*User, len(r.participants))
	for _, p := range r.participants {
		out[p.User.Name()] = p.User
	}
	return out
}

// BanEvent is the payload for the ban/anon_ban/unban/anon_unban events.
type BanEvent struct {
	By     *User
	Target *User
}

// BannedWords is the payload for the banned_words event.
type BannedWords struct {
	Part  string
	Whole string
}

// ModErrEvent is the payload for the mod_update_error event.
type ModErrEvent struct {
	User *User
	Code string
}

// --- ok frame bootstrap ---

// OkResult carries the parsed fields of an ok frame the caller needs to
// build the self user via the registry (AnonName needs the registry).
type OkResult struct {
	OwnerName   string
	PUID        string
	LoginMode   string
	CurrentName string
	ConnTime    float64
	CurrentIP   string
	ModsRaw     string
	Flags       RoomFlags
}

// ParseOk parses an ok frame's argument list.
func ParseOk(args []string) (OkResult, error) {
	if len(args) < 8 {
		return OkResult{}, newError(HandlerError, "ParseOk", nil)
	}
	connTime, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return OkResult{}, newError(HandlerError, "ParseOk", err)
	}
	flagsVal, err := strconv.ParseUint(args[7], 10, 32)
	if err != nil {
		return OkResult{}, newError(HandlerError, "ParseOk", err)
	}
	return OkResult{
		OwnerName:   args[0],
		PUID:        args[1],
		LoginMode:   args[2],
		CurrentName: args[3],
		ConnTime:    connTime,
		CurrentIP:   args[5],
		ModsRaw:     args[6],
		Flags:       RoomFlags(flagsVal),
	}, nil
}

// ApplyOk sets owner, puid, login state, time correction (once), current
// IP, the moderator map, and room flags from a parsed ok frame. now is
// the local wall-clock time (as seconds since epoch) at the moment the
// frame arrived, used to compute TimeCorrection per spec's "set exactly
// once per ok frame" invariant.
func (r *RoomState) ApplyOk(ok OkResult, now float64, registry *UserRegistry, selfUser *User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.owner = registry.Get(ok.OwnerName)
	r.puid = ok.PUID
	r.loginMode = ok.LoginMode
	r.currentName = ok.CurrentName
	r.currentIP = ok.CurrentIP
	r.flags = ok.Flags
	r.selfUser = selfUser

	if !r.timeCorrectionSet {
		r.timeCorrection = ok.ConnTime - now
		r.timeCorrectionSet = true
	}

	r.mods = make(map[*User]ModeratorFlags)
	if ok.ModsRaw != "" {
		for _, entry := range strings.Split(ok.ModsRaw, ";") {
			name, power, found := strings.Cut(entry, ",")
			if !found {
				continue
			}
			n, err := strconv.ParseUint(power, 10, 32)
			if err != nil {
				continue
			}
			r.mods[registry.Get(name)] = ModeratorFlags(n)
		}
	}
}

// SetUserCount parses the base-16 user count carried by an n frame.
func (r *RoomState) SetUserCount(hex string) {
	n, err := strconv.ParseInt(hex, 16, 64)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userCount = int(n)
}

// SetFlags replaces the room flag bitset (groupflagsupdate).
func (r *RoomState) SetFlags(v uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = RoomFlags(v)
}

// --- history ---

// AddHistory appends msg to the bounded message history, evicting the
// oldest entry once length 2900 is reached, and indexes it by id.
func (r *RoomState) AddHistory(msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messageHistory) >= historyCap {
		evicted := r.messageHistory[0]
		r.messageHistory = r.messageHistory[1:]
		delete(r.messagesByID, evicted.ID)
	}
	r.messageHistory = append(r.messageHistory, msg)
	if msg.ID != "" {
		r.messagesByID[msg.ID] = msg
	}
}

// PrependHistory inserts msg at the front of history (backfill via the i
// verb), up to the same capacity.
func (r *RoomState) PrependHistory(msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messageHistory) >= historyCap {
		return
	}
	r.messageHistory = append([]*Message{msg}, r.messageHistory...)
	if msg.ID != "" {
		r.messagesByID[msg.ID] = msg
	}
}

// SetNoMore records that the server has no more backfill to offer.
func (r *RoomState) SetNoMore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nomore = true
}

// NoMore reports whether the server has told us backfill is exhausted.
func (r *RoomState) NoMore() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nomore
}

// DeleteMessage removes a single message from history by id. It reports
// whether the message was present, and whether history has dropped low
// enough that the caller should request more backfill (< 20 entries and
// nomore not yet seen).
func (r *RoomState) DeleteMessage(id string) (msg *Message, ok bool, needMore bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok = r.messagesByID[id]
	if !ok {
		return nil, false, false
	}
	delete(r.messagesByID, id)
	for i, m := range r.messageHistory {
		if m == msg {
			r.messageHistory = append(r.messageHistory[:i], r.messageHistory[i+1:]...)
			break
		}
	}
	return msg, true, len(r.messageHistory) < 20 && !r.nomore
}

// DeleteAll removes every id in ids from history, returning the removed
// messages in the order given.
func (r *RoomState) DeleteAll(ids []string) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*Message
	for _, id := range ids {
		msg, ok := r.messagesByID[id]
		if !ok {
			continue
		}
		delete(r.messagesByID, id)
		for i, m := range r.messageHistory {
			if m == msg {
				r.messageHistory = append(r.messageHistory[:i], r.messageHistory[i+1:]...)
				break
			}
		}
		removed = append(removed, msg)
	}
	return removed
}

// MessageByUNID scans history for a message with the given unid, used to
// resolve the poster of an anonymous ban/unban target.
func (r *RoomState) MessageByUNID(unid string) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.messageHistory {
		if m.UNID == unid {
			return m, true
		}
	}
	return nil, false
}

// --- roster ---

// ParticipantDelta describes the effect of one participant frame.
type ParticipantDelta struct {
	Event string // anon_join, join, anon_leave, leave, user_login, anon_login, user_logout
	User  *User
	PUID  string
}

// ApplyParticipant applies one participant frame's delta and returns the
// event it should raise. change is args[0]: "0" leave, "1" join,
// otherwise a login/logout transition.
func (r *RoomState) ApplyParticipant(change, ssid string, user *User, puid string, contime float64) ParticipantDelta {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, hadPrev := r.participants[ssid]

	switch {
	case change == "0":
		user.removeSession(r.name, ssid)
		delete(r.participants, ssid)
		r.recordDeparture(contime, user)
		if user.IsAnon() {
			return ParticipantDelta{Event: "anon_leave", User: user, PUID: puid}
		}
		return ParticipantDelta{Event: "leave", User: user, PUID: puid}

	case change == "1" || !hadPrev:
		user.addSession(r.name, ssid)
		r.participants[ssid] = Participant{JoinedAt: contime, User: user}
		r.removeFromHistory(user)
		if user.IsAnon() {
			return ParticipantDelta{Event: "anon_join", User: user, PUID: puid}
		}
		return ParticipantDelta{Event: "join", User: user, PUID: puid}

	default:
		r.participants[ssid] = Participant{JoinedAt: contime, User: user}
		before := prev.User
		if before.IsAnon() {
			if user.IsAnon() {
				return ParticipantDelta{Event: "anon_login", User: user, PUID: puid}
			}
			return ParticipantDelta{Event: "user_login", User: user, PUID: puid}
		}
		r.recordDeparture(contime, before)
		return ParticipantDelta{Event: "user_logout", User: user, PUID: puid}
	}
}

// recordDeparture appends (contime, user) to participantHistory,
// deduplicating: any existing entry for the same user is removed first,
// so the bounded log stays a recency-ordered list without duplicates.
func (r *RoomState) recordDeparture(contime float64, user *User) {
	r.removeFromHistoryLocked(user)
	r.participantHistory = append(r.participantHistory, ParticipantHistoryEntry{Time: contime, User: user})
	if len(r.participantHistory) > userHistCap {
		r.participantHistory = r.participantHistory[len(r.participantHistory)-userHistCap:]
	}
}

func (r *RoomState) removeFromHistory(user *User) {
	r.removeFromHistoryLocked(user)
}

func (r *RoomState) removeFromHistoryLocked(user *User) {
	for i, e := range r.participantHistory {
		if e.User == user {
			r.participantHistory = append(r.participantHistory[:i], r.participantHistory[i+1:]...)
			return
		}
	}
}

// ParticipantHistory returns a snapshot of recent departures.
func (r *RoomState) ParticipantHistory() []ParticipantHistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ParticipantHistoryEntry, len(r.participantHistory))
	copy(out, r.participantHistory)
	return out
}

// RebuildRoster replaces the roster wholesale from a g_participants frame.
func (r *RoomState) RebuildRoster(entries map[string]Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = entries
}

// --- moderator diff ---

// ModDelta describes one moderator-map change.
type ModDelta struct {
	Event string // mod_added, mod_remove, mods_change
	User  *User
}

// ApplyMods replaces the moderator map and returns the added/removed/
// changed events per spec §4.J: added = new-previous, removed =
// previous-new, changed = intersection with differing flags.
func (r *RoomState) ApplyMods(next map[*User]ModeratorFlags) []ModDelta {
	r.mu.Lock()
	prev := r.mods
	r.mods = next
	r.mu.Unlock()

	prevSet := set.New[*User]()
	for u := range prev {
		prevSet.Insert(u)
	}
	nextSet := set.New[*User]()
	for u := range next {
		nextSet.Insert(u)
	}

	var deltas []ModDelta
	for _, u := range nextSet.Difference(prevSet).UnsortedList() {
		deltas = append(deltas, ModDelta{Event: "mod_added", User: u})
	}
	for _, u := range prevSet.Difference(nextSet).UnsortedList() {
		deltas = append(deltas, ModDelta{Event: "mod_remove", User: u})
	}
	for _, u := range prevSet.Intersection(nextSet).UnsortedList() {
		if prev[u] != next[u] {
			deltas = append(deltas, ModDelta{Event: "mods_change", User: u})
		}
	}
	return deltas
}

// --- bans ---

// ApplyBlocked records a ban and reports whether it targeted an
// anonymous user (resolved by scanning history for unid when the target
// name is empty, per original_source's _rcmd_blocked).
func (r *RoomState) ApplyBlocked(unid, ip, targetName, bannedByName string, at float64, registry *UserRegistry) (target *User, bannedBy *User, anon bool) {
	bannedBy = registry.Get(bannedByName)

	if targetName != "" {
		target = registry.Get(targetName)
		anon = false
	} else {
		anon = true
		if msg, ok := r.MessageByUNID(unid); ok {
			target = msg.User
		} else {
			target = registry.Get("anon")
		}
	}

	r.mu.Lock()
	r.banList[target] = BanRecord{UNID: unid, IP: ip, Target: target, Time: at, BannedBy: bannedBy}
	r.mu.Unlock()
	return target, bannedBy, anon
}

// ApplyBlocklist replaces the ban table wholesale from ';'-delimited,
// 5-field records.
func (r *RoomState) ApplyBlocklist(raw string, registry *UserRegistry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banList = make(map[*User]BanRecord)
	for _, section := range strings.Split(raw, ";") {
		fields := strings.Split(section, ":")
		if len(fields) != 5 || fields[2] == "" {
			continue
		}
		target := registry.Get(fields[2])
		at, _ := strconv.ParseFloat(fields[3], 64)
		r.banList[target] = BanRecord{
			UNID: fields[0], IP: fields[1], Target: target,
			Time: at, BannedBy: registry.Get(fields[4]),
		}
	}
}

// ApplyUnblocked processes one unblocked frame: append to the unban
// queue, remove from the ban table if named, and report whether the
// target was anonymous.
func (r *RoomState) ApplyUnblocked(unid, ip, targetName, srcName string, at float64, registry *UserRegistry) (target *User, src *User, anon bool) {
	src = registry.Get(srcName)

	if targetName == "" {
		anon = true
		if msg, ok := r.MessageByUNID(unid); ok {
			target = msg.User
		} else {
			target = registry.Get("anon")
		}
	} else {
		target = registry.Get(targetName)
	}

	r.mu.Lock()
	r.unbanQueue = append(r.unbanQueue, BanRecord{UNID: unid, IP: ip, Target: target, Time: at, BannedBy: src})
	if len(r.unbanQueue) > unbanCap {
		r.unbanQueue = r.unbanQueue[len(r.unbanQueue)-unbanCap:]
	}
	if !anon {
		delete(r.banList, target)
	}
	r.mu.Unlock()
	return target, src, anon
}

// ApplyUnblocklist replays ';'-delimited unban records in reverse order,
// matching original_source's _rcmd_unblocklist.
func (r *RoomState) ApplyUnblocklist(raw string, registry *UserRegistry) {
	sections := strings.Split(raw, ";")
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(sections) - 1; i >= 0; i-- {
		fields := strings.Split(sections[i], ":")
		if len(fields) != 5 {
			continue
		}
		targetName := fields[2]
		if targetName == "" {
			targetName = "anon"
		}
		at, _ := strconv.ParseFloat(fields[3], 64)
		r.unbanQueue = append(r.unbanQueue, BanRecord{
			UNID: fields[0], IP: fields[1], Target: registry.Get(targetName),
			Time: at, BannedBy: registry.Get(fields[4]),
		})
	}
	if len(r.unbanQueue) > unbanCap {
		r.unbanQueue = r.unbanQueue[len(r.unbanQueue)-unbanCap:]
	}
}

// UnbanQueue returns a snapshot of the bounded unban log.
func (r *RoomState) UnbanQueue() []BanRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BanRecord, len(r.unbanQueue))
	copy(out, r.unbanQueue)
	return out
}

// --- announcement ---

// ApplyAnnouncement replaces the full announcement record (enabled,
// period, body), as sent in response to a getannouncement request.
func (r *RoomState) ApplyAnnouncement(enabled bool, period int, body string) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed = body != r.announcement.Body
	r.announcement = Announcement{Enabled: enabled, Period: period, Body: body}
	return changed
}

// UpdateAnnouncementBody applies an unsolicited annc push, which carries
// enabled/body but not period, so the existing period is preserved. It
// reports whether the body changed, the caller's cue to also emit
// announcement_update before announcement, per spec §4.E.
func (r *RoomState) UpdateAnnouncementBody(enabled bool, body string) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed = body != r.announcement.Body
	r.announcement = Announcement{Enabled: enabled, Period: r.announcement.Period, Body: body}
	return changed
}
