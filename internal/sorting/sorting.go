// Package sorting orders record collections for display.
package sorting

import (
	"cmp"
	"slices"
	"strings"

	"github.com/BattermanZ/StaleFlix/internal/content"
)

// Key names a sortable record field.
type Key string

const (
	KeyTitle            Key = "title"
	KeyOriginalTitle    Key = "original_title"
	KeyCategory         Key = "type"
	KeyAddedAt          Key = "added_at"
	KeyRequester        Key = "requester"
	KeySize             Key = "size"
	KeyTotalEpisodes    Key = "total_episodes"
	KeyRequesterWatched Key = "requester_watched"
)

// Keys lists every sortable key in column order.
var Keys = []Key{
	KeyTitle, KeyOriginalTitle, KeyCategory, KeyAddedAt,
	KeyRequester, KeySize, KeyTotalEpisodes, KeyRequesterWatched,
}

// ParseKey validates a key received from a request or flag.
func ParseKey(s string) (Key, bool) {
	k := Key(strings.TrimSpace(s))
	return k, slices.Contains(Keys, k)
}

// Direction is the sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Config is the active sort. A nil *Config means no sort has been chosen.
type Config struct {
	Key       Key
	Direction Direction
}

// Next returns the configuration after the user picks key. Picking the key
// that is currently sorted ascending flips it to descending; every other
// pick sorts ascending by key.
func Next(current *Config, key Key) *Config {
	if current != nil && current.Key == key && current.Direction == Ascending {
		return &Config{Key: key, Direction: Descending}
	}
	return &Config{Key: key, Direction: Ascending}
}

// Sort returns a sorted copy of records. The input is never modified and a
// nil config keeps the input order. The sort is stable in both directions.
func Sort(records []content.Record, cfg *Config) []content.Record {
	out := slices.Clone(records)
	if cfg == nil {
		return out
	}
	compare := comparator(cfg.Key)
	if cfg.Direction == Descending {
		slices.SortStableFunc(out, func(a, b content.Record) int { return compare(b, a) })
	} else {
		slices.SortStableFunc(out, compare)
	}
	return out
}

func comparator(key Key) func(a, b content.Record) int {
	switch key {
	case KeyOriginalTitle:
		return func(a, b content.Record) int { return strings.Compare(a.OriginalTitle, b.OriginalTitle) }
	case KeyCategory:
		return func(a, b content.Record) int { return strings.Compare(string(a.Category), string(b.Category)) }
	case KeyAddedAt:
		return func(a, b content.Record) int { return strings.Compare(a.AddedAt, b.AddedAt) }
	case KeyRequester:
		return func(a, b content.Record) int { return strings.Compare(a.Requester, b.Requester) }
	case KeySize:
		// Stored text, so "100" sorts before "9".
		return func(a, b content.Record) int { return strings.Compare(a.SizeGiB, b.SizeGiB) }
	case KeyTotalEpisodes:
		return compareEpisodes
	case KeyRequesterWatched:
		return func(a, b content.Record) int { return compareBool(a.RequesterWatched, b.RequesterWatched) }
	default:
		return func(a, b content.Record) int { return strings.Compare(a.Title, b.Title) }
	}
}

// compareEpisodes puts records without an episode count first.
func compareEpisodes(a, b content.Record) int {
	switch {
	case a.TotalEpisodes == nil && b.TotalEpisodes == nil:
		return 0
	case a.TotalEpisodes == nil:
		return -1
	case b.TotalEpisodes == nil:
		return 1
	}
	return cmp.Compare(*a.TotalEpisodes, *b.TotalEpisodes)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
