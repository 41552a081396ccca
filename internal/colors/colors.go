// Package colors maps requester names to display colors.
//
// Both profiles derive from Hash, which reproduces the rolling hash the
// StaleFlix web client has always used so that a requester keeps the same
// color across the table, the preview and the mailed newsletter.
package colors

import (
	"fmt"
	"unicode/utf16"
)

// Palette is the fixed set of badge colors used in newsletter documents.
// The first color appears twice; dropping it would reassign existing
// requesters.
var Palette = []string{
	"#E5A00C", "#8BA023", "#39924F", "#007D6C", "#006370", "#2F4858",
	"#E5A00C", "#504538", "#B6A99A", "#00CDB2", "#00947D",
}

// Hash folds name into hash = code + ((hash << 5) - hash) over its UTF-16
// code units, starting from 0. The shift operates on the low 32 bits of the
// accumulator while the subtraction and addition do not, so the result can
// leave the int32 range.
func Hash(name string) int64 {
	var acc int64
	for _, c := range utf16.Encode([]rune(name)) {
		shifted := int64(int32(acc) << 5)
		acc = int64(c) + (shifted - acc)
	}
	return acc
}

// Hue returns Hash(name) % 360 shifted into [0, 360).
func Hue(name string) int {
	h := int(Hash(name) % 360)
	if h < 0 {
		h += 360
	}
	return h
}

// HSL returns the interactive-view color for name.
func HSL(name string) string {
	return fmt.Sprintf("hsl(%d, 70%%, 80%%)", Hue(name))
}

// PaletteColor returns the newsletter badge color for name.
func PaletteColor(name string) string {
	h := Hash(name)
	if h < 0 {
		h = -h
	}
	return Palette[h%int64(len(Palette))]
}

// Memo caches palette colors for the lifetime of one document.
type Memo struct {
	colors map[string]string
}

// NewMemo returns an empty Memo.
func NewMemo() *Memo {
	return &Memo{colors: make(map[string]string)}
}

// Color returns the palette color for name, computing it at most once.
func (m *Memo) Color(name string) string {
	if c, ok := m.colors[name]; ok {
		return c
	}
	c := PaletteColor(name)
	m.colors[name] = c
	return c
}

// Len returns the number of distinct names seen.
func (m *Memo) Len() int {
	return len(m.colors)
}
