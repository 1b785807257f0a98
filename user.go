package chatango

import (
	"strings"
	"sync"
	"time"
)

// Tri is a tri-state flag: unknown, true, or false. is_premium starts
// Unknown until the server confirms either way.
type Tri int

const (
	TriUnknown Tri = iota
	TriTrue
	TriFalse
)

// User is interned by lowercase name: every observation of the same name
// returns the same *User, so identity comparisons (mod-map membership,
// roster membership) reduce to pointer equality.
type User struct {
	mu sync.Mutex

	name     string // lowercase
	showName string // display case, first-seen casing wins

	isAnon bool

	// sessions maps room name to the set of session-ids this user
	// currently holds in that room (multi-tab support).
	sessions map[string]map[string]struct{}

	isPremium      Tri
	premiumSetAt   time.Time
	styles         Styles
}

// Name returns the lowercase interned name.
func (u *User) Name() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.name
}

// ShowName returns the first-observed display casing.
func (u *User) ShowName() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.showName
}

// IsAnon reports whether this identity has no authenticated account.
func (u *User) IsAnon() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.isAnon
}

// IsPremium reports the tri-state premium flag.
func (u *User) IsPremium() Tri {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.isPremium
}

// Styles returns a copy of the user's current style record.
func (u *User) Styles() Styles {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.styles
}

// addSession records session-id sid as held by this user in room.
func (u *User) addSession(room, sid string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sessions[room] == nil {
		u.sessions[room] = make(map[string]struct{})
	}
	u.sessions[room][sid] = struct{}{}
}

// removeSession drops session-id sid from room's session set.
func (u *User) removeSession(room, sid string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if set, ok := u.sessions[room]; ok {
		delete(set, sid)
		if len(set) == 0 {
			delete(u.sessions, room)
		}
	}
}

// hasSession reports whether sid is a member of room's session set.
func (u *User) hasSession(room, sid string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.sessions[room][sid]
	return ok
}

// setPremium transitions the tri-state premium flag. Returns true if the
// flag actually changed, the prior state was already known (not Unknown),
// and at falls within 5 seconds of the current wall clock — mirroring
// original_source's _process, which only fires premium_change for a
// message recent enough to reflect a live transition, not a historical one.
func (u *User) setPremium(premium bool, at time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	was := u.isPremium
	next := TriFalse
	if premium {
		next = TriTrue
	}
	fresh := was != next && was != TriUnknown && at.After(time.Now().Add(-5*time.Second))
	u.isPremium = next
	u.premiumSetAt = at
	return fresh
}

func (u *User) mergeStyles(s Styles) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.styles.merge(s)
}

// clearProfile drops the cached profile blob, forcing the next read to
// treat it as stale. Called on updateprofile/reload_profile pushes.
func (u *User) clearProfile() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.styles.Profile = nil
}

// UserRegistry is the process-wide interning table mapping lowercase
// name to a single shared *User. Get with a known name returns the
// existing record unchanged; Get takes no attributes besides the name,
// so it never merges field values into a record.
type UserRegistry struct {
	mu    sync.Mutex
	users map[string]*User
}

// NewUserRegistry returns an empty registry. Tests construct their own
// instance instead of relying on a package-level singleton, per the
// injection seam the design calls for.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[string]*User)}
}

// Get returns the interned User for name, creating it if unseen. An
// empty or "none" (case-insensitive) name returns a fresh anonymous
// placeholder that is not interned; callers computing an anon display
// name should pass the result of AnonName instead, which interns and is
// marked anonymous because of its anon#### shape.
func (r *UserRegistry) Get(name string) *User {
	lower := strings.ToLower(strings.TrimSpace(name))
	isAnon := lower == "" || lower == "none"
	generated := len(lower) == 8 && strings.HasPrefix(lower, "anon") && strings.Trim(lower[4:], "0123456789") == ""

	r.mu.Lock()
	defer r.mu.Unlock()

	if isAnon {
		lower = ""
	}
	if u, ok := r.users[lower]; ok && lower != "" {
		return u
	}
	u := &User{
		name:     lower,
		showName: name,
		isAnon:   isAnon || generated,
		sessions: make(map[string]map[string]struct{}),
		styles:   DefaultStyles(),
	}
	if lower != "" {
		r.users[lower] = u
	}
	return u
}

// Lookup returns the interned User for name without creating one.
func (r *UserRegistry) Lookup(name string) (*User, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[lower]
	return u, ok
}
