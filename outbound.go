package chatango

import (
	"crypto/rand"
	"html"
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// maxMessageLength is the longest body Chatango accepts in a single bm
// frame; longer input is chunked by messageCut.
const maxMessageLength = 2700

const messageTagAlphabet = "abcdefghijklmnopqrstuvwxyz"

// genMessageTag returns a random 4-letter lowercase tag, the shape
// Chatango's protocol uses as a message's provisional id in a bm frame.
// Like genUID, this is deliberately not a UUID.
func genMessageTag() string {
	var sb [4]byte
	for i := range sb {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(messageTagAlphabet))))
		sb[i] = messageTagAlphabet[n.Int64()]
	}
	return string(sb[:])
}

// normalizeMessage applies NFC normalization and replaces invalid UTF-8
// with the replacement character, so two visually identical messages
// with different combining-character decompositions always produce the
// same bytes on the wire.
func normalizeMessage(body string) string {
	body = strings.ToValidUTF8(body, "�")
	return norm.NFC.String(body)
}

// messageCut splits body into chunks of at most maxLen grapheme
// clusters, never splitting a multi-rune cluster (emoji, combining
// marks, regional-indicator flag pairs) across a chunk boundary.
func messageCut(body string, maxLen int) []string {
	if body == "" {
		return []string{""}
	}

	var chunks []string
	var b strings.Builder
	count := 0

	g := uniseg.NewGraphemes(body)
	for g.Next() {
		if count == maxLen {
			chunks = append(chunks, b.String())
			b.Reset()
			count = 0
		}
		b.WriteString(g.Str())
		count++
	}
	if b.Len() > 0 || len(chunks) == 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// wrapMessageHTML wraps a cleaned message body with the font/name-color
// tags Chatango expects on outbound bm sends, escaping the body first so
// user text can never inject its own tags.
func wrapMessageHTML(body string, s Styles) string {
	escaped := html.EscapeString(body)
	escaped = strings.ReplaceAll(escaped, "\n", "<br/>")
	return "<n" + s.NameColor + "/><f x" + itoa(s.FontSize) + s.FontColor + "=\"" + s.FontFace + "\">" + escaped + "</f>"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// formatRelativeTime renders a Unix timestamp (as Chatango sends them,
// seconds with a fractional part) as a human-friendly relative string
// for ban/unban logs and participant history, e.g. "3 minutes ago".
func formatRelativeTime(unixSeconds float64, now int64) string {
	return humanize.RelTime(unixTime(unixSeconds), unixTimeFromInt(now), "ago", "from now")
}

// unixTime converts a Chatango wall-time value (seconds, possibly with a
// fractional part) into a time.Time.
func unixTime(unixSeconds float64) time.Time {
	sec := int64(unixSeconds)
	nsec := int64((unixSeconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// unixTimeFromInt converts a whole-seconds Unix timestamp into a time.Time.
func unixTimeFromInt(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0)
}
