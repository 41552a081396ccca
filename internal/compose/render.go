package compose

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/BattermanZ/StaleFlix/internal/inline"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"css":   cssValue,
	"pairs": pairs,
}).ParseFS(templateFS, "templates/*.html"))

// RenderPreview renders doc as a standalone page styled through classes and
// an embedded stylesheet, for viewing in a browser.
func RenderPreview(doc *Document) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "preview.html", doc); err != nil {
		return "", fmt.Errorf("rendering preview: %w", err)
	}
	return buf.String(), nil
}

// RenderEmail renders doc in the table layout used for mail clients and
// moves every stylesheet rule onto the elements it matches.
func RenderEmail(doc *Document) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "email.html", doc); err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	out, err := inline.Inline(buf.String())
	if err != nil {
		return "", fmt.Errorf("inlining email styles: %w", err)
	}
	return out, nil
}

// PlainText renders doc as a text alternative for mail clients without
// markup support.
func PlainText(doc *Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s - %s\n\n", doc.Brand.Stale, doc.Brand.Flix, doc.Brand.Tagline)
	fmt.Fprintf(&b, "%s\n\n", doc.Intro.Heading)
	if msg := messageText(doc.Intro.Message); msg != "" {
		fmt.Fprintf(&b, "%s\n\n", msg)
	}
	for _, sec := range doc.Sections {
		fmt.Fprintf(&b, "%s\n", sec.Heading)
		for _, c := range sec.Cards {
			title := c.Title
			if c.OriginalTitle != "" {
				title += " (" + c.OriginalTitle + ")"
			}
			fmt.Fprintf(&b, "- %s | Added on: %s | Requested by %s", title, c.AddedAt, c.Requester.Name)
			if c.Watched {
				b.WriteString(" (watched)")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(doc.Footer.Copyright)
	b.WriteString("\n")
	return b.String()
}

func messageText(msg template.HTML) string {
	if msg == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(msg)))
	if err != nil {
		return strings.TrimSpace(string(msg))
	}
	return strings.TrimSpace(doc.Text())
}

// cssValue marks a badge color as a safe style value. Colors come from the
// fixed palette, never from user input.
func cssValue(s string) template.CSS {
	return template.CSS(s) //nolint: gosec
}

// pairs splits cards into rows of two for the table layout.
func pairs(cards []Card) [][]Card {
	var rows [][]Card
	for i := 0; i < len(cards); i += 2 {
		end := min(i+2, len(cards))
		rows = append(rows, cards[i:end])
	}
	return rows
}
