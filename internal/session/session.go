// Package session is the single owner of the displayed snapshot, the
// operator's selection and the active sort. Presentation layers read views
// from it and subscribe to change events.
package session

import (
	"context"
	"sync"

	"github.com/BattermanZ/StaleFlix/internal/content"
	"github.com/BattermanZ/StaleFlix/internal/selection"
	"github.com/BattermanZ/StaleFlix/internal/sorting"
	"github.com/BattermanZ/StaleFlix/internal/store"
)

// Event identifies what changed.
type Event int

const (
	SnapshotChanged Event = iota
	SelectionChanged
	SortChanged
)

func (e Event) String() string {
	switch e {
	case SnapshotChanged:
		return "snapshot"
	case SelectionChanged:
		return "selection"
	case SortChanged:
		return "sort"
	}
	return "unknown"
}

// View is a consistent read of the session for rendering.
type View struct {
	Timestamp   string
	Loaded      bool
	Busy        bool
	Rows        []content.Record
	Selected    map[string]bool
	AllSelected bool
	Stats       selection.Stats
	Sort        *sorting.Config
}

// Draft is the input of a newsletter: a message and the chosen records in
// snapshot order.
type Draft struct {
	Message string
	Records []content.Record
}

// Session ties the store, the selection and the sort together.
type Session struct {
	store *store.Store

	mu        sync.Mutex
	selection *selection.Model
	sort      *sorting.Config
	subs      []func(Event)
}

// New creates a session around st.
func New(st *store.Store) *Session {
	s := &Session{store: st, selection: selection.New()}
	st.OnChange(func(content.Snapshot) { s.notify(SnapshotChanged) })
	return s
}

// Subscribe registers fn for change events.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Session) notify(e Event) {
	s.mu.Lock()
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

// Refresh refreshes the snapshot. Selections carry over by id; ids missing
// from the new snapshot are kept but have no effect.
func (s *Session) Refresh(ctx context.Context, forceRefresh bool) (content.Snapshot, error) {
	return s.store.Refresh(ctx, forceRefresh)
}

// Snapshot returns a copy of the current snapshot.
func (s *Session) Snapshot() content.Snapshot {
	return s.store.Snapshot()
}

// Toggle flips the selection of id.
func (s *Session) Toggle(id string) {
	s.mu.Lock()
	s.selection.Toggle(id)
	s.mu.Unlock()
	s.notify(SelectionChanged)
}

// SelectAll sets every record of the current snapshot to checked.
func (s *Session) SelectAll(checked bool) {
	ids := content.IDs(s.store.Snapshot().Content)
	s.mu.Lock()
	s.selection.SelectAll(checked, ids)
	s.mu.Unlock()
	s.notify(SelectionChanged)
}

// SortBy applies the sort toggle for key and returns the new configuration.
func (s *Session) SortBy(key sorting.Key) sorting.Config {
	s.mu.Lock()
	s.sort = sorting.Next(s.sort, key)
	cfg := *s.sort
	s.mu.Unlock()
	s.notify(SortChanged)
	return cfg
}

// SelectedIDs returns every selected id, including inert ones.
func (s *Session) SelectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.SelectedIDs()
}

// SelectedRecords returns the selected records of the current snapshot in
// snapshot order.
func (s *Session) SelectedRecords() []content.Record {
	records := s.store.Snapshot().Content
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Selected(records)
}

// Draft builds a newsletter draft from the current selection.
func (s *Session) Draft(message string) Draft {
	return Draft{Message: message, Records: s.SelectedRecords()}
}

// View returns the current state for rendering. Rows are sorted by the
// active configuration.
func (s *Session) View() View {
	snap := s.store.Snapshot()
	ids := content.IDs(snap.Content)

	s.mu.Lock()
	defer s.mu.Unlock()

	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		if s.selection.IsSelected(id) {
			selected[id] = true
		}
	}

	var sortCfg *sorting.Config
	if s.sort != nil {
		c := *s.sort
		sortCfg = &c
	}

	return View{
		Timestamp:   snap.Timestamp,
		Loaded:      s.store.Loaded(),
		Busy:        s.store.Busy(),
		Rows:        sorting.Sort(snap.Content, s.sort),
		Selected:    selected,
		AllSelected: s.selection.IsAllSelected(ids),
		Stats:       s.selection.Stats(snap.Content),
		Sort:        sortCfg,
	}
}
