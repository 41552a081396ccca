// Package delivery hands a finished newsletter to its recipients: the
// backend mailing-list and media-collection workflows, or an SMTP server.
package delivery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/BattermanZ/StaleFlix/internal/config"
	"github.com/BattermanZ/StaleFlix/internal/content"
)

// Target names accepted in newsletter.deliver.
const (
	TargetMailingList      = "mailing_list"
	TargetMediaCollections = "media_collections"
	TargetSMTP             = "smtp"
)

// Newsletter is one rendered issue ready for delivery.
type Newsletter struct {
	Subject     string
	HTML        string // inlined markup
	PlainText   string
	Message     string // the personal message as typed
	Records     []content.Record
	AssetFolder string
}

// Sender delivers a newsletter and returns the receiver's confirmation.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Newsletter) (string, error)
}

// Backend is the subset of the backend client used for delivery.
type Backend interface {
	SendToMailingList(ctx context.Context, message string, records []content.Record, assetFolder string) (string, error)
	SendToMediaCollections(ctx context.Context, records []content.Record, assetFolder string) (string, error)
}

// AssetFolder returns the folder name delivery services store posters and
// artifacts under: <namespace>/YYYY-MM.
func AssetFolder(namespace string, now time.Time) string {
	if namespace == "" {
		namespace = "staleflix"
	}
	return namespace + "/" + now.Format("2006-01")
}

// MailingList sends the newsletter through the backend mailing-list workflow.
type MailingList struct {
	backend Backend
}

func NewMailingList(b Backend) *MailingList {
	return &MailingList{backend: b}
}

func (m *MailingList) Name() string { return TargetMailingList }

func (m *MailingList) Send(ctx context.Context, n Newsletter) (string, error) {
	return m.backend.SendToMailingList(ctx, n.Message, n.Records, n.AssetFolder)
}

// MediaCollections adds the newsletter's records to the media server
// collections through the backend.
type MediaCollections struct {
	backend Backend
}

func NewMediaCollections(b Backend) *MediaCollections {
	return &MediaCollections{backend: b}
}

func (m *MediaCollections) Name() string { return TargetMediaCollections }

func (m *MediaCollections) Send(ctx context.Context, n Newsletter) (string, error) {
	return m.backend.SendToMediaCollections(ctx, n.Records, n.AssetFolder)
}

// NewSenders builds the senders named in targets, in order.
func NewSenders(targets []string, b Backend, mail config.Mail) ([]Sender, error) {
	senders := make([]Sender, 0, len(targets))
	for _, t := range targets {
		switch t {
		case TargetMailingList:
			senders = append(senders, NewMailingList(b))
		case TargetMediaCollections:
			senders = append(senders, NewMediaCollections(b))
		case TargetSMTP:
			senders = append(senders, NewSMTP(mail))
		default:
			return nil, fmt.Errorf("unknown delivery target: %s", t)
		}
	}
	if len(senders) == 0 {
		log.Println("No delivery targets configured")
	}
	return senders, nil
}
