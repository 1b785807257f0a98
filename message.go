package chatango

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Channel pairs a room and a user, the unit mentions() and channel-color
// flags are scoped to.
type Channel struct {
	Room string
	User *User
}

// Message is the room-message variant described by the data model: a
// provisional record identified by TempID until the reconciler binds it
// to a final ID.
type Message struct {
	ID     string // final id; empty until reconciled
	TempID string // provisional id carried by the b frame

	User  *User
	Time  float64 // corrected server time
	IP    string
	PUID  string
	UNID  string

	Body  string // cleaned body
	Raw   string // raw body before cleaning

	Flags MessageFlags

	NameColor string
	FontColor string
	FontFace  string
	FontSize  int

	Mentions []*User
	Channel  Channel
}

var (
	nTagRe = regexp.MustCompile(`(?i)<n(.*?)/>`)
	fTagRe = regexp.MustCompile(`(?i)<f x?(\d*)([0-9a-fA-F]{0,6})="([^"]*)">`)
	tagRe  = regexp.MustCompile(`(?i)</?[a-z][^>]*>`)
	brRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// cleanMessage extracts the n/f style tags embedded in a raw message body,
// returning the cleaned text plus the style fragment it found. Idempotent:
// feeding the cleaned text back through finds nothing further to strip.
func cleanMessage(raw string) (body, nameColor, fontColor, fontFace string, fontSize int) {
	body = raw

	if m := nTagRe.FindStringSubmatch(body); m != nil {
		nameColor = strings.ToLower(m[1])
		body = nTagRe.ReplaceAllString(body, "")
	}

	if m := fTagRe.FindStringSubmatch(body); m != nil {
		if m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil {
				fontSize = n
			}
		}
		fontColor = strings.ToLower(m[2])
		fontFace = m[3]
		body = fTagRe.ReplaceAllString(body, "")
		body = strings.Replace(body, "</f>", "", 1)
	}

	body = brRe.ReplaceAllString(body, "\n")
	body = tagRe.ReplaceAllString(body, "")
	body = html.UnescapeString(body)
	body = strings.TrimRight(body, "\r\n ")

	return body, nameColor, fontColor, fontFace, fontSize
}

// AnonName computes the display name Chatango assigns an anonymous poster
// from the connection timestamp and the poster's puid: the last four
// digits of ts and the middle four digits of puid (zero-padded to 8) are
// summed position-wise modulo 10 and prefixed with "anon".
func AnonName(ts, puid string) string {
	tsDigits := "3452"
	tsWhole := strings.SplitN(ts, ".", 2)[0]
	if len(tsWhole) >= 4 {
		tsDigits = tsWhole[len(tsWhole)-4:]
	}

	puidPadded := fmt.Sprintf("%08s", puid)
	if len(puidPadded) > 8 {
		puidPadded = puidPadded[len(puidPadded)-8:]
	}
	puidDigits := puidPadded[4:8]

	var sb strings.Builder
	for i := 0; i < 4; i++ {
		a := digitAt(tsDigits, i)
		b := digitAt(puidDigits, i)
		sb.WriteByte(byte('0' + (a+b)%10))
	}
	return "anon" + sb.String()
}

func digitAt(s string, i int) int {
	if i < 0 || i >= len(s) {
		return 0
	}
	c := s[i]
	if c < '0' || c > '9' {
		return 0
	}
	return int(c - '0')
}

// parseRoomMessage parses the b frame's argument list (everything after
// the verb) into a Message. The server interposes one unused field at
// position 8 before the body begins; the body itself may contain ':' and
// is rejoined from everything after it.
func parseRoomMessage(args []string, registry *UserRegistry, timeCorrection float64) (*Message, error) {
	if len(args) < 9 {
		return nil, fmt.Errorf("message: b frame has %d args, want >= 9", len(args))
	}

	walltime, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return nil, fmt.Errorf("message: bad walltime %q: %w", args[0], err)
	}

	name := args[1]
	tempName := args[2]
	puid := args[3]
	unid := args[4]
	tempID := args[5]
	ip := args[6]
	flagsVal, err := strconv.ParseUint(args[7], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("message: bad flags %q: %w", args[7], err)
	}

	rawBody := strings.Join(args[9:], ":")
	body, nSeed, fontColor, fontFace, fontSize := cleanMessage(rawBody)

	// name/nameColor derivation mirrors original_source's _process: a
	// renamed anon (tname set) displays as tname; only a pure anon falls
	// back to AnonName, seeded from the body's <n…/> tag rather than the
	// connection timestamp. The n-tag only doubles as a style name-color
	// when the poster isn't anonymous.
	var user *User
	var nameColor string
	switch {
	case name != "":
		user = registry.Get(name)
		nameColor = nSeed
	case tempName != "":
		user = registry.Get(tempName)
	default:
		seed := nSeed
		if seed == "None" {
			seed = ""
		}
		user = registry.Get(AnonName(seed, puid))
	}

	msg := &Message{
		TempID: tempID,
		User:   user,
		Time:   walltime - timeCorrection,
		IP:     ip,
		PUID:   puid,
		UNID:   unid,
		Body:   body,
		Raw:    rawBody,
		Flags:  MessageFlags(flagsVal),

		NameColor: nameColor,
		FontColor: fontColor,
		FontFace:  fontFace,
		FontSize:  fontSize,
	}
	return msg, nil
}

// mentions returns every user present in roster whose lowercase name is
// referenced by an @name token in body.
func mentions(body string, roster map[string]*User) []*User {
	var out []*User
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r != '@' && !isMentionRune(r)
	})
	seen := make(map[string]struct{})
	for _, f := range fields {
		if !strings.HasPrefix(f, "@") {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(f, "@"))
		if name == "" {
			continue
		}
		if u, ok := roster[name]; ok {
			if _, dup := seen[name]; !dup {
				out = append(out, u)
				seen[name] = struct{}{}
			}
		}
	}
	return out
}

func isMentionRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// messageCut, which splits an outbound body on grapheme-cluster
// boundaries, lives in outbound.go with the rest of the send path.
