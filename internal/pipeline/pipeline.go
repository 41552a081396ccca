// Package pipeline turns a message and a selection into an archived,
// delivered newsletter issue.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/BattermanZ/StaleFlix/internal/compose"
	"github.com/BattermanZ/StaleFlix/internal/config"
	"github.com/BattermanZ/StaleFlix/internal/content"
	"github.com/BattermanZ/StaleFlix/internal/database"
	"github.com/BattermanZ/StaleFlix/internal/delivery"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a pipeline run.
type Result struct {
	MonthKey string
	Document *compose.Document
	HTML     string
	Issue    *database.Issue // nil when archiving was skipped or failed
	Steps    []StepResult
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(s.Name), s.Err)
		}
	}
	return nil
}

// Pipeline runs compose, render, archive and deliver for one issue.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	senders  []delivery.Sender
	composer *compose.Composer
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for the issue month.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. db may be nil, in which case issues are not
// archived.
func New(cfg *config.Config, db *database.DB, senders []delivery.Sender, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, db: db, senders: senders, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}

	composeOpts := []compose.Option{compose.WithClock(p.now)}
	if cfg.Newsletter.MessageFormat == config.MessageMarkdown {
		composeOpts = append(composeOpts, compose.WithMarkdownMessage())
	}
	p.composer = compose.NewComposer(composeOpts...)
	return p
}

// Compose builds the document without rendering or archiving it.
func (p *Pipeline) Compose(message string, records []content.Record) (*compose.Document, error) {
	return p.composer.Compose(message, records)
}

// Preview composes and renders the browser preview.
func (p *Pipeline) Preview(message string, records []content.Record) (string, error) {
	doc, err := p.composer.Compose(message, records)
	if err != nil {
		return "", err
	}
	return compose.RenderPreview(doc)
}

// Run composes, renders and archives an issue, then hands it to every
// configured sender when deliver is set. Compose and render failures stop
// the run; archive and delivery failures are reported per step.
func (p *Pipeline) Run(ctx context.Context, message string, records []content.Record, deliver bool) *Result {
	r := &Result{MonthKey: database.MonthKey(p.now())}
	total := 3
	if deliver {
		total = 4
	}

	// Step 1: Compose
	log.Printf("Step 1/%d: Composing newsletter...", total)
	doc, err := p.composer.Compose(message, records)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Compose", Err: err})
		return r
	}
	r.Document = doc
	movies, shows := doc.Counts()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Compose",
		Summary: fmt.Sprintf("Composed %d movies and %d shows", movies, shows),
	})

	// Step 2: Render
	log.Printf("Step 2/%d: Rendering and inlining styles...", total)
	html, err := compose.RenderEmail(doc)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Render", Err: err})
		return r
	}
	r.HTML = html
	r.Steps = append(r.Steps, StepResult{
		Name:    "Render",
		Summary: fmt.Sprintf("Rendered %s of inlined HTML", humanize.Bytes(uint64(len(html)))),
	})

	// Step 3: Archive
	log.Printf("Step 3/%d: Archiving issue...", total)
	r.Steps = append(r.Steps, p.runArchive(r, message, movies, shows))

	if !deliver {
		return r
	}

	// Step 4: Deliver
	log.Printf("Step 4/%d: Delivering newsletter...", total)
	n := delivery.Newsletter{
		Subject:     doc.Subject(p.cfg.Newsletter.SubjectPrefix),
		HTML:        html,
		PlainText:   compose.PlainText(doc),
		Message:     message,
		Records:     records,
		AssetFolder: delivery.AssetFolder(p.cfg.Newsletter.Namespace, p.now()),
	}
	for _, s := range p.senders {
		r.Steps = append(r.Steps, p.runDeliver(ctx, s, n, r.Issue))
	}
	if len(p.senders) == 0 {
		r.Steps = append(r.Steps, StepResult{Name: "Deliver", Summary: "No delivery targets configured"})
	}

	return r
}

// DryRun reports what Run would do without archiving or delivering.
func (p *Pipeline) DryRun(message string, records []content.Record) *Result {
	r := &Result{MonthKey: database.MonthKey(p.now())}

	doc, err := p.composer.Compose(message, records)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Compose", Err: err})
		return r
	}
	r.Document = doc
	movies, shows := doc.Counts()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Compose",
		Summary: fmt.Sprintf("[dry-run] Would compose %d movies and %d shows", movies, shows),
	})
	r.Steps = append(r.Steps, StepResult{
		Name:    "Render",
		Summary: fmt.Sprintf("[dry-run] Would write %s", doc.Filename(p.cfg.Newsletter.FilenamePrefix)),
	})

	if p.db != nil {
		existing, _ := p.db.GetIssuesForMonth(r.MonthKey)
		r.Steps = append(r.Steps, StepResult{
			Name:    "Archive",
			Summary: fmt.Sprintf("[dry-run] Would archive issue for %s (%d already archived)", database.FormatMonthDisplay(r.MonthKey), len(existing)),
		})
	}

	names := make([]string, 0, len(p.senders))
	for _, s := range p.senders {
		names = append(names, s.Name())
	}
	if len(names) == 0 {
		names = append(names, "nobody")
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Deliver",
		Summary: "[dry-run] Would deliver to " + strings.Join(names, ", "),
	})

	return r
}

func (p *Pipeline) runArchive(r *Result, message string, movies, shows int) StepResult {
	if p.db == nil {
		return StepResult{Name: "Archive", Summary: "Archive disabled"}
	}
	issue, err := p.db.InsertIssue(r.MonthKey, message, r.HTML, movies, shows)
	if err != nil {
		return StepResult{Name: "Archive", Err: err}
	}
	r.Issue = issue
	return StepResult{
		Name:    "Archive",
		Summary: fmt.Sprintf("Archived issue %s for %s", issue.PublicID, database.FormatMonthDisplay(issue.MonthKey)),
	}
}

func (p *Pipeline) runDeliver(ctx context.Context, s delivery.Sender, n delivery.Newsletter, issue *database.Issue) StepResult {
	name := "Deliver (" + s.Name() + ")"
	msg, err := s.Send(ctx, n)
	if issue != nil {
		note := msg
		if err != nil {
			note = err.Error()
		}
		if _, dbErr := p.db.InsertDelivery(issue.ID, s.Name(), err == nil, note); dbErr != nil {
			log.Printf("Warning: could not record delivery to %s: %v", s.Name(), dbErr)
		}
	}
	if err != nil {
		log.Printf("Delivery to %s failed: %v", s.Name(), err)
		return StepResult{Name: name, Err: err}
	}
	return StepResult{Name: name, Summary: msg}
}
