// Package content defines the stale-media records exchanged with the backend.
package content

import (
	"math"
	"strconv"
	"strings"
)

// Category classifies a record as a movie or a show.
type Category string

const (
	Movie Category = "movie"
	Show  Category = "show"
)

// Unknown is the sentinel the backend sends for a missing requester or size.
const Unknown = "Unknown"

// Record is one stale-media entry.
type Record struct {
	ID               string            `json:"plex_id"`
	Title            string            `json:"title"`
	OriginalTitle    string            `json:"original_title"`
	Category         Category          `json:"type"`
	AddedAt          string            `json:"added_at"`
	Requester        string            `json:"requester"`
	SizeGiB          string            `json:"size"`
	WatchStatus      map[string]string `json:"watch_status"`
	TotalEpisodes    *int              `json:"total_episodes,omitempty"`
	RequesterWatched bool              `json:"requester_watched"`
	PosterURL        string            `json:"poster_url"`
	ContentURL       string            `json:"content_url"`
}

// Snapshot is one fetched, timestamped view of the full record collection.
type Snapshot struct {
	Timestamp string   `json:"timestamp"`
	Content   []Record `json:"content"`
}

// DisplayTitle returns the title, falling back to the original title.
func (r Record) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.OriginalTitle
}

// HasDistinctOriginalTitle reports whether the original title is worth
// showing next to the title.
func (r Record) HasDistinctOriginalTitle() bool {
	return r.OriginalTitle != "" && r.OriginalTitle != r.Title
}

// RequesterKnown reports whether the requester is a real name.
func (r Record) RequesterKnown() bool {
	return r.Requester != "" && r.Requester != Unknown
}

// Size parses SizeGiB. The sentinel and anything that is not a finite
// number report ok=false.
func (r Record) Size() (gib float64, ok bool) {
	s := strings.TrimSpace(r.SizeGiB)
	if s == "" || s == Unknown {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// IDs returns the ids of records in order.
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// Clone returns a copy of the snapshot whose content slice does not alias s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Timestamp: s.Timestamp}
	if s.Content != nil {
		out.Content = make([]Record, len(s.Content))
		copy(out.Content, s.Content)
	}
	return out
}

// DuplicateID returns the first id that appears more than once, if any.
func (s Snapshot) DuplicateID() (string, bool) {
	seen := make(map[string]struct{}, len(s.Content))
	for _, r := range s.Content {
		if _, ok := seen[r.ID]; ok {
			return r.ID, true
		}
		seen[r.ID] = struct{}{}
	}
	return "", false
}
