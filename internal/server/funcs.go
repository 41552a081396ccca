package server

import (
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/BattermanZ/StaleFlix/internal/colors"
	"github.com/BattermanZ/StaleFlix/internal/content"
	"github.com/BattermanZ/StaleFlix/internal/database"
	"github.com/BattermanZ/StaleFlix/internal/sorting"
)

var funcMap = template.FuncMap{
	"requesterColor": requesterColor,
	"lastUpdated":    lastUpdated,
	"gib":            formatGiB,
	"sizeLabel":      sizeLabel,
	"sortMark":       sortMark,
	"formatMonth":    database.FormatMonthDisplay,
	"bytes":          func(s string) string { return humanize.Bytes(uint64(len(s))) },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"episodes": func(n *int) string {
		if n == nil {
			return ""
		}
		return fmt.Sprint(*n)
	},
	"categoryLabel": func(c content.Category) string {
		switch c {
		case content.Movie:
			return "Movie"
		case content.Show:
			return "TV Show"
		}
		return string(c)
	},
}

// requesterColor is the table badge background for a requester. The value
// is generated, so it is safe as a style value.
func requesterColor(name string) template.CSS {
	return template.CSS(colors.HSL(name)) //nolint: gosec
}

// lastUpdated renders a snapshot timestamp as relative time when it parses.
func lastUpdated(ts string) string {
	if ts == "" {
		return "never"
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return fmt.Sprintf("%s (%s)", humanize.Time(t), ts)
		}
	}
	return ts
}

func formatGiB(gib float64) string {
	return humanize.FormatFloat("#,###.##", gib) + " GiB"
}

// sizeLabel renders a record size, or "" for the Unknown sentinel.
func sizeLabel(r content.Record) string {
	gib, ok := r.Size()
	if !ok {
		return ""
	}
	return formatGiB(gib)
}

func sortMark(cfg *sorting.Config, key sorting.Key) string {
	if cfg == nil || cfg.Key != key {
		return ""
	}
	if cfg.Direction == sorting.Descending {
		return "▼"
	}
	return "▲"
}
