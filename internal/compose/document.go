package compose

import (
	"html/template"
	"time"

	"github.com/BattermanZ/StaleFlix/internal/content"
)

// Document is a composed newsletter as typed nodes. Renderers turn it into
// preview markup, delivery markup or plain text.
type Document struct {
	Brand       Brand
	Intro       Intro
	Sections    []Section
	Footer      Footer
	GeneratedAt time.Time
}

type Brand struct {
	Stale   string
	Flix    string
	Tagline string
}

type Intro struct {
	Heading string
	Month   string
	// Message is trusted rich content and is emitted without escaping.
	Message template.HTML
}

// Section groups the cards of one category. Sections are only present when
// they have cards.
type Section struct {
	Category content.Category
	Heading  string
	Cards    []Card
}

type Card struct {
	ID            string
	Title         string
	OriginalTitle string // empty unless it differs from Title
	CategoryLabel string
	AddedAt       string
	PosterURL     string
	ContentURL    string
	Requester     Badge
	Watched       bool // the requester has watched it
}

// Badge is the colored requester tag on a card.
type Badge struct {
	Name    string
	Color   string
	Unknown bool
}

type Footer struct {
	Year      int
	Copyright string
}

// Section returns the section for category, or nil.
func (d *Document) Section(category content.Category) *Section {
	for i := range d.Sections {
		if d.Sections[i].Category == category {
			return &d.Sections[i]
		}
	}
	return nil
}

// Counts returns the number of movie and show cards.
func (d *Document) Counts() (movies, shows int) {
	if s := d.Section(content.Movie); s != nil {
		movies = len(s.Cards)
	}
	if s := d.Section(content.Show); s != nil {
		shows = len(s.Cards)
	}
	return movies, shows
}

// MonthKey returns the YYYY-MM the document was generated in.
func (d *Document) MonthKey() string {
	return d.GeneratedAt.Format("2006-01")
}

// Filename returns the download name for the delivery rendering.
func (d *Document) Filename(prefix string) string {
	if prefix == "" {
		prefix = "staleflix-newsletter"
	}
	return prefix + "-" + d.MonthKey() + ".html"
}

// Subject returns a mail subject line for the document.
func (d *Document) Subject(prefix string) string {
	if prefix == "" {
		prefix = "StaleFlix"
	}
	return prefix + ": what's stale in " + d.Intro.Month + " " + d.GeneratedAt.Format("2006")
}
