// Package selection tracks which records the operator has chosen.
package selection

import (
	"sort"

	"github.com/BattermanZ/StaleFlix/internal/content"
)

// Model maps record ids to a selected flag. A missing id is unselected.
// Model is not safe for concurrent use; the owning session serializes access.
type Model struct {
	selected map[string]bool
}

// Stats summarizes the selection against a record collection.
type Stats struct {
	Count    int
	TotalGiB float64
}

// New returns an empty selection.
func New() *Model {
	return &Model{selected: make(map[string]bool)}
}

// Toggle flips the flag for id.
func (m *Model) Toggle(id string) {
	m.selected[id] = !m.selected[id]
}

// Set sets the flag for id.
func (m *Model) Set(id string, checked bool) {
	m.selected[id] = checked
}

// IsSelected reports the flag for id.
func (m *Model) IsSelected(id string) bool {
	return m.selected[id]
}

// SelectAll sets every id in currentIDs to checked. Other ids keep their flag.
func (m *Model) SelectAll(checked bool, currentIDs []string) {
	for _, id := range currentIDs {
		m.selected[id] = checked
	}
}

// IsAllSelected reports whether currentIDs is non-empty and fully selected.
func (m *Model) IsAllSelected(currentIDs []string) bool {
	if len(currentIDs) == 0 {
		return false
	}
	for _, id := range currentIDs {
		if !m.selected[id] {
			return false
		}
	}
	return true
}

// SelectedIDs returns the selected ids in lexical order. Ids that are no
// longer part of the current snapshot are still reported.
func (m *Model) SelectedIDs() []string {
	var ids []string
	for id, ok := range m.selected {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Selected returns the selected records in collection order.
func (m *Model) Selected(records []content.Record) []content.Record {
	var out []content.Record
	for _, r := range records {
		if m.selected[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// TotalSize sums the size of selected records. Records whose size is the
// sentinel or not a finite number count as zero.
func (m *Model) TotalSize(records []content.Record) float64 {
	var total float64
	for _, r := range records {
		if !m.selected[r.ID] {
			continue
		}
		if gib, ok := r.Size(); ok {
			total += gib
		}
	}
	return total
}

// Stats returns the count and total size of selected records.
func (m *Model) Stats(records []content.Record) Stats {
	var s Stats
	for _, r := range records {
		if m.selected[r.ID] {
			s.Count++
		}
	}
	s.TotalGiB = m.TotalSize(records)
	return s
}
