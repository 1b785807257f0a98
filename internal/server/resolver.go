// Package server resolves a Chatango room name to the shard host that
// serves it: a fixed table of historical exceptions, then a digest-table
// lookup seam, then a weighted hash fallback. Grounded directly on
// original_source/chatango/utils.py's get_server, reproduced with its
// exact tables.
package server

import (
	"strconv"
	"strings"

	"github.com/toddbirchard/chatangogo/internal/hasher"
)

// specials maps a small set of historical room names straight to a shard
// number, bypassing the hash entirely. Reproduced verbatim from the
// reference implementation.
var specials = map[string]int{
	"mitvcanal": 56, "animeultimacom": 34, "cricket365live": 21,
	"pokemonepisodeorg": 22, "animelinkz": 20, "sport24lt": 56,
	"narutowire": 10, "watchanimeonn": 22, "cricvid-hitcric-": 51,
	"narutochatt": 70, "leeplarp": 27, "stream2watch3": 56, "ttvsports": 56,
	"ver-anime": 8, "vipstand": 21, "eafangames": 56, "soccerjumbo": 21,
	"myfoxdfw": 67, "kiiiikiii": 21, "de-livechat": 5, "rgsmotrisport": 51,
	"dbzepisodeorg": 10, "watch-dragonball": 8, "peliculas-flv": 69,
	"tvanimefreak": 54, "tvtvanimefreak": 54,
}

// digestShards maps a NameDigest hex string to a shard number. The
// reference implementation never populates this table — it computes
// get_server purely from specials + the weighted fallback — so this is
// kept empty and extensible: a later observed name→digest→shard mapping
// can be added here without touching the resolution algorithm (see
// DESIGN.md's Open Questions ledger).
var digestShards = map[string]int{}

type weight struct {
	shard  int
	weight int
}

// weights is the ordered cumulative-frequency table; order matters for
// the tie-break walk below. Reproduced verbatim from tsweights.
var weights = []weight{
	{5, 75}, {6, 75}, {7, 75}, {8, 75}, {16, 75},
	{17, 75}, {18, 75}, {9, 95}, {11, 95}, {12, 95},
	{13, 95}, {14, 95}, {15, 95}, {19, 110}, {23, 110},
	{24, 110}, {25, 110}, {26, 110}, {28, 104}, {29, 104},
	{30, 104}, {31, 104}, {32, 104}, {33, 104}, {35, 101},
	{36, 101}, {37, 101}, {38, 101}, {39, 101}, {40, 101},
	{41, 101}, {42, 101}, {43, 101}, {44, 101}, {45, 101},
	{46, 101}, {47, 101}, {48, 101}, {49, 101}, {50, 101},
	{52, 110}, {53, 110}, {55, 110}, {57, 110},
	{58, 110}, {59, 110}, {60, 110}, {61, 110},
	{62, 110}, {63, 110}, {64, 110}, {65, 110},
	{66, 110}, {68, 95}, {71, 116}, {72, 116},
	{73, 116}, {74, 116}, {75, 116}, {76, 116},
	{77, 116}, {78, 116}, {79, 116}, {80, 116},
	{81, 116}, {82, 116}, {83, 116}, {84, 116},
}

var totalWeight = func() int {
	sum := 0
	for _, w := range weights {
		sum += w.weight
	}
	return sum
}()

// Resolve returns the shard hostname serving the given room name.
func Resolve(room string) string {
	if shard, ok := specials[room]; ok {
		return host(shard)
	}
	if shard, ok := digestShards[hasher.Sum(room)]; ok {
		return host(shard)
	}
	return host(weightedFallback(room))
}

func host(shard int) string {
	return "s" + strconv.Itoa(shard) + ".chatango.com"
}

// weightedFallback implements the fnv/lnv cumulative-frequency walk.
func weightedFallback(room string) int {
	normalized := strings.NewReplacer("_", "q", "-", "q").Replace(room)

	fnv := parseBase36(prefix(normalized, 0, 5))
	lnvStr := prefix(normalized, 6, 9)
	lnv := 1000
	if lnvStr != "" {
		lnv = parseBase36(lnvStr)
		if lnv < 1000 {
			lnv = 1000
		}
	}

	frac := float64(fnv%lnv) / float64(lnv)

	cumulative := 0.0
	shard := 0
	for _, w := range weights {
		cumulative += float64(w.weight) / float64(totalWeight)
		if frac <= cumulative {
			shard = w.shard
			break
		}
	}
	return shard
}

// prefix slices [start:end) of s, clamping to its length (Python slice
// semantics: out-of-range indices silently shrink the result instead of
// panicking).
func prefix(s string, start, end int) string {
	if start > len(s) {
		start = len(s)
	}
	if end > len(s) {
		end = len(s)
	}
	if start >= end {
		return ""
	}
	return s[start:end]
}

func parseBase36(s string) int {
	n, err := strconv.ParseInt(s, 36, 64)
	if err != nil {
		return 0
	}
	return int(n)
}
