package chatango

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRoomName(t *testing.T) {
	require.True(t, ValidateRoomName("pythonrpg"))
	require.True(t, ValidateRoomName("my-room-1"))
	require.False(t, ValidateRoomName("Has-Upper"))
	require.False(t, ValidateRoomName(""))
	require.False(t, ValidateRoomName("has a space"))
	require.False(t, ValidateRoomName("this-room-name-is-way-too-long-to-be-valid"))
}

func TestNewRoomStateRejectsInvalidName(t *testing.T) {
	_, err := NewRoomState("Invalid Name", "s1.chatango.com")
	cerr, ok := As(err)
	require.True(t, ok)
	require.Equal(t, InvalidRoomName, cerr.Kind)
}

func TestHistoryBoundedAt2900(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)

	for i := 0; i < 3000; i++ {
		state.AddHistory(&Message{ID: "m" + strconv.Itoa(i)})
	}
	hist := state.History()
	require.Len(t, hist, 2900)
	require.Equal(t, "m100", hist[0].ID) // the oldest 100 were evicted from the front
	_, ok := state.MessageByID("m0")
	require.False(t, ok)
}

func TestPrependHistoryRespectsCapacity(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		state.PrependHistory(&Message{ID: strconv.Itoa(i), Body: strconv.Itoa(i)})
	}
	hist := state.History()
	require.Len(t, hist, 5)
	// Each prepend lands at the front, so the first insert ends up last.
	require.Equal(t, "4", hist[0].Body)
	require.Equal(t, "0", hist[4].Body)

	for i := 5; i < historyCap+5; i++ {
		state.PrependHistory(&Message{ID: strconv.Itoa(i)})
	}
	require.Len(t, state.History(), historyCap)
}

func TestDeleteMessageRequestsMoreWhenLow(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)

	msg := &Message{ID: "m1"}
	state.AddHistory(msg)

	_, ok, needMore := state.DeleteMessage("m1")
	require.True(t, ok)
	require.True(t, needMore) // history now has 0 entries, well under 20

	_, ok, _ = state.DeleteMessage("m1")
	require.False(t, ok)
}

func TestDeleteMessageNoMoreSuppressesRefetch(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	state.SetNoMore()

	state.AddHistory(&Message{ID: "m1"})
	_, ok, needMore := state.DeleteMessage("m1")
	require.True(t, ok)
	require.False(t, needMore)
}

func TestApplyParticipantJoinAndLeave(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()
	alice := registry.Get("alice")

	delta := state.ApplyParticipant("1", "ssid1", alice, "puid1", 100)
	require.Equal(t, "join", delta.Event)
	require.Len(t, state.UserList(), 1)

	delta = state.ApplyParticipant("0", "ssid1", alice, "puid1", 101)
	require.Equal(t, "leave", delta.Event)
	require.Empty(t, state.UserList())
}

func TestApplyParticipantAnonJoinLeave(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()
	anon := registry.Get("")

	delta := state.ApplyParticipant("1", "ssidA", anon, "puidA", 100)
	require.Equal(t, "anon_join", delta.Event)

	delta = state.ApplyParticipant("0", "ssidA", anon, "puidA", 101)
	require.Equal(t, "anon_leave", delta.Event)
}

func TestApplyParticipantLoginTransition(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()
	anon := registry.Get("")
	bob := registry.Get("bob")

	state.ApplyParticipant("1", "ssid1", anon, "puid1", 100)
	delta := state.ApplyParticipant("2", "ssid1", bob, "puid1", 101)
	require.Equal(t, "user_login", delta.Event)
}

func TestApplyModsDiff(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()
	alice := registry.Get("alice")
	bob := registry.Get("bob")

	deltas := state.ApplyMods(map[*User]ModeratorFlags{alice: 1})
	require.Len(t, deltas, 1)
	require.Equal(t, "mod_added", deltas[0].Event)
	require.Same(t, alice, deltas[0].User)

	deltas = state.ApplyMods(map[*User]ModeratorFlags{alice: 3, bob: 1})
	require.Len(t, deltas, 2)
	events := map[string]bool{}
	for _, d := range deltas {
		events[d.Event] = true
	}
	require.True(t, events["mods_change"])
	require.True(t, events["mod_added"])

	deltas = state.ApplyMods(map[*User]ModeratorFlags{})
	require.Len(t, deltas, 2)
	for _, d := range deltas {
		require.Equal(t, "mod_remove", d.Event)
	}
}

func TestApplyBlockedResolvesAnonFromHistory(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()
	poster := registry.Get("anon1234")

	state.AddHistory(&Message{ID: "m1", UNID: "unidX", User: poster})

	target, bannedBy, anon := state.ApplyBlocked("unidX", "1.2.3.4", "", "modname", 100, registry)
	require.True(t, anon)
	require.Same(t, poster, target)
	require.Equal(t, "modname", bannedBy.Name())

	_, ok := state.BanList()[poster]
	require.True(t, ok)
}

func TestApplyBlocklistReplacesTable(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()

	raw := "unid1:1.2.3.4:alice:100:mod1;unid2:5.6.7.8:bob:200:mod2"
	state.ApplyBlocklist(raw, registry)
	require.Len(t, state.BanList(), 2)
}

func TestApplyUnblockedRemovesFromBanList(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()

	state.ApplyBlocked("unid1", "1.2.3.4", "alice", "mod1", 100, registry)
	require.Len(t, state.BanList(), 1)

	_, _, anon := state.ApplyUnblocked("unid1", "1.2.3.4", "alice", "mod1", 200, registry)
	require.False(t, anon)
	require.Empty(t, state.BanList())
	require.Len(t, state.UnbanQueue(), 1)
}

func TestAnnouncementUpdateBodyPreservesPeriod(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)

	state.ApplyAnnouncement(true, 60, "hello")
	changed := state.UpdateAnnouncementBody(true, "hello world")
	require.True(t, changed)

	ann := state.Announcement()
	require.Equal(t, 60, ann.Period)
	require.Equal(t, "hello world", ann.Body)
}

func TestApplyOkSetsTimeCorrectionOnce(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()

	ok := OkResult{OwnerName: "owner1", PUID: "p1", LoginMode: "N", CurrentName: "", ConnTime: 1000, CurrentIP: "1.2.3.4", ModsRaw: "mod1,5", Flags: 0}
	state.ApplyOk(ok, 990, registry, nil)
	require.Equal(t, float64(10), state.TimeCorrection())

	// A second ok frame must not recompute time correction.
	ok2 := OkResult{OwnerName: "owner1", PUID: "p1", LoginMode: "N", ConnTime: 2000, Flags: 0}
	state.ApplyOk(ok2, 1000, registry, nil)
	require.Equal(t, float64(10), state.TimeCorrection())
}

func TestLevelReflectsOwnerAndMods(t *testing.T) {
	state, err := NewRoomState("room1", "s1.chatango.com")
	require.NoError(t, err)
	registry := NewUserRegistry()

	ok := OkResult{OwnerName: "owner1", PUID: "p1", LoginMode: "N", ConnTime: 0, Flags: 0, ModsRaw: "mod1,1;admin1,15"}
	state.ApplyOk(ok, 0, registry, nil)

	owner, _ := registry.Lookup("owner1")
	mod, _ := registry.Lookup("mod1")
	admin, _ := registry.Lookup("admin1")
	stranger := registry.Get("nobody")

	require.Equal(t, 3, state.Level(owner))
	require.Equal(t, 1, state.Level(mod))
	require.Equal(t, 0, state.Level(stranger))
	_ = admin
}
