package compose

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/BattermanZ/StaleFlix/internal/colors"
	"github.com/BattermanZ/StaleFlix/internal/content"
)

// ComposeError reports a record that cannot be placed in a document. No
// document is produced when it occurs.
type ComposeError struct {
	Index    int
	RecordID string
	Field    string
}

func (e *ComposeError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("composing newsletter: record %d is missing %s", e.Index, e.Field)
	}
	return fmt.Sprintf("composing newsletter: record %d (%s) is missing %s", e.Index, e.RecordID, e.Field)
}

// Composer builds newsletter documents.
type Composer struct {
	now      func() time.Time
	markdown goldmark.Markdown
}

// Option configures a Composer.
type Option func(*Composer)

// WithClock sets the clock used for the month and year.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// WithMarkdownMessage renders the personal message as Markdown instead of
// inserting it as-is.
func WithMarkdownMessage() Option {
	return func(c *Composer) { c.markdown = goldmark.New() }
}

// NewComposer creates a composer.
func NewComposer(opts ...Option) *Composer {
	c := &Composer{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var sectionOrder = []struct {
	category content.Category
	heading  string
	label    string
}{
	{content.Movie, "Movies", "Movie"},
	{content.Show, "TV Shows", "TV Show"},
}

// Compose builds a document from message and records. Movies and shows get
// their own section, in that order, when non-empty; records of any other
// category are left out. A movie or show without an id or title aborts
// composition with a *ComposeError.
func (c *Composer) Compose(message string, records []content.Record) (*Document, error) {
	now := c.now()

	body, err := c.renderMessage(message)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Brand: Brand{Stale: "Stale", Flix: "Flix", Tagline: "Nobody likes stale content"},
		Intro: Intro{
			Heading: "What's stale in this month of " + now.Month().String(),
			Month:   now.Month().String(),
			Message: body,
		},
		Footer:      Footer{Year: now.Year(), Copyright: fmt.Sprintf("StaleFlix/BatterCloud © %d", now.Year())},
		GeneratedAt: now,
	}

	memo := colors.NewMemo()
	var skipped int
	for _, sec := range sectionOrder {
		var cards []Card
		for i, r := range records {
			if r.Category != sec.category {
				continue
			}
			if err := validateRecord(i, r); err != nil {
				return nil, err
			}
			cards = append(cards, newCard(r, sec.label, memo))
		}
		if len(cards) > 0 {
			doc.Sections = append(doc.Sections, Section{Category: sec.category, Heading: sec.heading, Cards: cards})
		}
	}
	for _, r := range records {
		if r.Category != content.Movie && r.Category != content.Show {
			skipped++
		}
	}
	if skipped > 0 {
		log.Printf("Left %d unclassified records out of the newsletter", skipped)
	}

	return doc, nil
}

func (c *Composer) renderMessage(message string) (template.HTML, error) {
	if c.markdown != nil {
		var buf bytes.Buffer
		if err := c.markdown.Convert([]byte(message), &buf); err != nil {
			return "", fmt.Errorf("rendering message: %w", err)
		}
		message = buf.String()
	}
	out, err := normalizeMessage(message)
	if err != nil {
		return "", err
	}
	return template.HTML(out), nil //nolint: gosec
}

// normalizeMessage parses message as the content of a <div> and renders it
// back, closing every element the markup leaves implied.
func normalizeMessage(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return message, nil
	}
	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(message), parent)
	if err != nil {
		return "", fmt.Errorf("parsing message: %w", err)
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("rendering message: %w", err)
		}
	}
	return buf.String(), nil
}

func validateRecord(i int, r content.Record) error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return &ComposeError{Index: i, Field: "id"}
	case strings.TrimSpace(r.Title) == "":
		return &ComposeError{Index: i, RecordID: r.ID, Field: "title"}
	}
	return nil
}

func newCard(r content.Record, label string, memo *colors.Memo) Card {
	card := Card{
		ID:            r.ID,
		Title:         r.Title,
		CategoryLabel: label,
		AddedAt:       addedDate(r.AddedAt),
		PosterURL:     r.PosterURL,
		ContentURL:    r.ContentURL,
		Watched:       r.RequesterWatched,
	}
	if r.HasDistinctOriginalTitle() {
		card.OriginalTitle = r.OriginalTitle
	}

	name := r.Requester
	if name == "" {
		name = content.Unknown
	}
	card.Requester = Badge{Name: name, Color: memo.Color(name), Unknown: !r.RequesterKnown()}
	return card
}

// addedDate trims timestamps to their date. Anything else is kept as sent.
func addedDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10]
		}
	}
	return s
}
