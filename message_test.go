package chatango

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnonNameIsDeterministic(t *testing.T) {
	a := AnonName("1234567890", "5551234")
	b := AnonName("1234567890", "5551234")
	require.Equal(t, a, b)
	require.Len(t, a, 8) // "anon" + 4 digits
	require.Regexp(t, `^anon\d{4}$`, a)
}

func TestAnonNameShortTimestampDefaults(t *testing.T) {
	// A timestamp with fewer than 4 digits falls back to "3452", per
	// original_source's get_anon_name.
	short := AnonName("12", "00001234")
	withDefault := AnonName("3452", "00001234")
	require.Equal(t, withDefault, short)
}

func TestAnonNamePuidIsPaddedAndMiddleSliced(t *testing.T) {
	// puid shorter than 8 digits is zero-padded on the left before taking
	// its middle four digits.
	a := AnonName("1234", "42")
	b := AnonName("1234", "00000042")
	require.Equal(t, a, b)
}

func TestAnonNameProperty_AllDigitOutputs(t *testing.T) {
	for ts := 1000; ts < 1010; ts++ {
		for puid := 0; puid < 10; puid++ {
			name := AnonName(fmt.Sprint(ts), fmt.Sprint(puid))
			require.Regexp(t, `^anon\d{4}$`, name)
		}
	}
}

func TestCleanMessageStripsStyleTags(t *testing.T) {
	body, nameColor, fontColor, fontFace, fontSize := cleanMessage(`<nabc123/><f x12ff0000="Arial">hello<br/>world</f>`)
	require.Equal(t, "hello\nworld", body)
	require.Equal(t, "abc123", nameColor)
	require.Equal(t, "ff0000", fontColor)
	require.Equal(t, "Arial", fontFace)
	require.Equal(t, 12, fontSize)
}

func TestCleanMessageIdempotent(t *testing.T) {
	raw := `<nabc123/><f x12ff0000="Arial">hi &amp; bye<br/>ok</f>`
	body, _, _, _, _ := cleanMessage(raw)
	again, nameColor, fontColor, fontFace, fontSize := cleanMessage(body)
	require.Equal(t, body, again)
	require.Empty(t, nameColor)
	require.Empty(t, fontColor)
	require.Empty(t, fontFace)
	require.Zero(t, fontSize)
}

func TestParseRoomMessageBasic(t *testing.T) {
	registry := NewUserRegistry()
	args := []string{
		"1700000000", // walltime
		"alice",      // name
		"",           // tname
		"1111",       // puid
		"unid1",      // unid
		"temp123",    // temp id
		"1.2.3.4",    // ip
		"0",          // flags
		"reserved",   // unused position 8
		"hello", "world", // body (joined with ':')
	}
	msg, err := parseRoomMessage(args, registry, 0)
	require.NoError(t, err)
	require.Equal(t, "temp123", msg.TempID)
	require.Equal(t, "alice", msg.User.Name())
	require.Equal(t, "hello:world", msg.Body)
	require.Equal(t, "unid1", msg.UNID)
}

func TestParseRoomMessageRenamedAnonUsesTempName(t *testing.T) {
	// A temporarily-renamed anon (name empty, tname set) displays as
	// tname verbatim, not a computed anon#### — only a pure anon (both
	// empty) falls back to AnonName.
	registry := NewUserRegistry()
	args := []string{
		"1700000000", "", "sometname", "1111", "unid1", "temp123",
		"1.2.3.4", "0", "reserved", "hi",
	}
	msg, err := parseRoomMessage(args, registry, 0)
	require.NoError(t, err)
	require.Equal(t, "sometname", msg.User.Name())
}

func TestParseRoomMessagePureAnonSeedsFromNTag(t *testing.T) {
	// Both name and tname empty: the anon seed comes from the body's
	// <n…/> tag, not the temp id or connection timestamp.
	registry := NewUserRegistry()
	args := []string{
		"1700000000", "", "", "1111", "unid1", "temp123",
		"1.2.3.4", "0", "reserved", "<n2345/>hi",
	}
	msg, err := parseRoomMessage(args, registry, 0)
	require.NoError(t, err)
	require.True(t, msg.User.IsAnon())
	require.Equal(t, AnonName("2345", "1111"), msg.User.Name())
	require.Empty(t, msg.NameColor) // not set as a style color for an anon poster
}

func TestParseRoomMessagePureAnonWithoutNTagUsesDefaultSeed(t *testing.T) {
	registry := NewUserRegistry()
	args := []string{
		"1700000000", "", "", "1111", "unid1", "temp123",
		"1.2.3.4", "0", "reserved", "hi",
	}
	msg, err := parseRoomMessage(args, registry, 0)
	require.NoError(t, err)
	require.Equal(t, AnonName("", "1111"), msg.User.Name())
}

func TestParseRoomMessageTooShort(t *testing.T) {
	_, err := parseRoomMessage([]string{"1", "2"}, NewUserRegistry(), 0)
	require.Error(t, err)
}

func TestMentionsFindsRosterMembers(t *testing.T) {
	registry := NewUserRegistry()
	alice := registry.Get("alice")
	roster := map[string]*User{"alice": alice}

	found := mentions("hey @alice and @bob, how are you", roster)
	require.Len(t, found, 1)
	require.Same(t, alice, found[0])
}

func TestMentionsDedupes(t *testing.T) {
	registry := NewUserRegistry()
	alice := registry.Get("alice")
	roster := map[string]*User{"alice": alice}

	found := mentions("@alice @alice @alice", roster)
	require.Len(t, found, 1)
}
