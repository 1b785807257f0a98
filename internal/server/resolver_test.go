package server

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
)

var hostPattern = regexp.MustCompile(`^s(\d+)\.chatango\.com$`)

func TestResolveSpecialNames(t *testing.T) {
	for name, shard := range specials {
		got := Resolve(name)
		want := "s" + strconv.Itoa(shard) + ".chatango.com"
		if got != want {
			t.Errorf("Resolve(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestResolveTotality(t *testing.T) {
	names := []string{"pythonrpg", "a", "abcdefghij", "room-with-dashes", "room_with_underscores", "z9", "123456789"}
	for _, name := range names {
		got := Resolve(name)
		m := hostPattern.FindStringSubmatch(got)
		if m == nil {
			t.Fatalf("Resolve(%q) = %q, does not match host pattern", name, got)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			t.Fatalf("Resolve(%q) shard number unparseable: %v", name, got)
		}
		if _, isSpecial := specials[name]; isSpecial {
			continue
		}
		if n < 5 || n > 84 {
			t.Errorf("Resolve(%q) shard %d outside weight-table range [5,84]", name, n)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		if Resolve("pythonrpg") != Resolve("pythonrpg") {
			t.Fatal("Resolve is not deterministic for a fixed name")
		}
	}
}

func TestPrefixClampsLikePythonSlices(t *testing.T) {
	cases := []struct {
		s          string
		start, end int
		want       string
	}{
		{"abcdef", 0, 5, "abcde"},
		{"ab", 0, 5, "ab"},
		{"ab", 6, 9, ""},
		{"", 0, 5, ""},
	}
	for _, c := range cases {
		got := prefix(c.s, c.start, c.end)
		if got != c.want {
			t.Errorf("prefix(%q, %d, %d) = %q, want %q", c.s, c.start, c.end, got, c.want)
		}
	}
}

func TestWeightedFallbackNormalizesSeparators(t *testing.T) {
	a := Resolve("room_one")
	b := Resolve("room-one")
	if a != b {
		t.Errorf("Resolve(%q)=%q and Resolve(%q)=%q should match: both normalize separators to q", "room_one", a, "room-one", b)
	}
}

func TestResolveLowercaseOnly(t *testing.T) {
	if got := Resolve("pythonrpg"); got != strings.ToLower(got) {
		t.Fatal("resolved host should be all lowercase")
	}
}
