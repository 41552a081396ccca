package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSize(t *testing.T) {
	cases := []struct {
		size string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{" 5 ", 5, true},
		{"Unknown", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := Record{SizeGiB: c.size}.Size()
		assert.Equal(t, c.ok, ok, "size %q", c.size)
		assert.Equal(t, c.want, got, "size %q", c.size)
	}
}

func TestDistinctOriginalTitle(t *testing.T) {
	assert.False(t, Record{Title: "Amélie", OriginalTitle: "Amélie"}.HasDistinctOriginalTitle())
	assert.False(t, Record{Title: "Amélie"}.HasDistinctOriginalTitle())
	assert.True(t, Record{Title: "Amélie", OriginalTitle: "Le Fabuleux Destin d'Amélie Poulain"}.HasDistinctOriginalTitle())
}

func TestDisplayTitleFallback(t *testing.T) {
	assert.Equal(t, "Original", Record{OriginalTitle: "Original"}.DisplayTitle())
	assert.Equal(t, "Title", Record{Title: "Title", OriginalTitle: "Original"}.DisplayTitle())
}

func TestSnapshotDecodesBackendPayload(t *testing.T) {
	payload := `{"timestamp":"2026-10-01T10:00:00Z","content":[
		{"plex_id":"101","title":"Dune","original_title":"Dune","type":"movie","added_at":"2024-01-02",
		 "requester":"alice","size":"42.10","watch_status":{"bob":"Watched"},"requester_watched":true,
		 "poster_url":"https://img/101.jpg","content_url":"https://plex/101"},
		{"plex_id":"202","title":"Severance","type":"show","added_at":"2023-05-06","requester":"Unknown",
		 "size":"Unknown","watch_status":{},"total_episodes":19}
	]}`

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(payload), &snap))
	require.Len(t, snap.Content, 2)

	assert.Equal(t, Movie, snap.Content[0].Category)
	assert.True(t, snap.Content[0].RequesterWatched)
	assert.Nil(t, snap.Content[0].TotalEpisodes)
	require.NotNil(t, snap.Content[1].TotalEpisodes)
	assert.Equal(t, 19, *snap.Content[1].TotalEpisodes)
	assert.False(t, snap.Content[1].RequesterKnown())
	assert.Equal(t, []string{"101", "202"}, IDs(snap.Content))
}

func TestSnapshotCloneAndDuplicates(t *testing.T) {
	snap := Snapshot{Content: []Record{{ID: "a"}, {ID: "b"}}}
	clone := snap.Clone()
	clone.Content[0].ID = "z"
	assert.Equal(t, "a", snap.Content[0].ID)

	_, dup := snap.DuplicateID()
	assert.False(t, dup)

	snap.Content = append(snap.Content, Record{ID: "a"})
	id, dup := snap.DuplicateID()
	assert.True(t, dup)
	assert.Equal(t, "a", id)
}
