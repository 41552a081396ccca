package delivery

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/mail.v2"

	"github.com/BattermanZ/StaleFlix/internal/backend"
	"github.com/BattermanZ/StaleFlix/internal/config"
	"github.com/BattermanZ/StaleFlix/internal/content"
)

type fakeBackend struct {
	message     string
	records     []content.Record
	assetFolder string
	calls       []string
	err         error
}

func (f *fakeBackend) SendToMailingList(_ context.Context, message string, records []content.Record, assetFolder string) (string, error) {
	f.calls = append(f.calls, TargetMailingList)
	f.message, f.records, f.assetFolder = message, records, assetFolder
	return "queued for mailing", f.err
}

func (f *fakeBackend) SendToMediaCollections(_ context.Context, records []content.Record, assetFolder string) (string, error) {
	f.calls = append(f.calls, TargetMediaCollections)
	f.records, f.assetFolder = records, assetFolder
	return "collections updated", f.err
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func testNewsletter() Newsletter {
	return Newsletter{
		Subject:     "StaleFlix: what's stale in October 2026",
		HTML:        `<html><body><p style="color: red">Hi</p></body></html>`,
		PlainText:   "Hi",
		Message:     "<p>Hi</p>",
		Records:     []content.Record{{ID: "1", Title: "Dune", Category: content.Movie}},
		AssetFolder: "staleflix/2026-10",
	}
}

func TestAssetFolder(t *testing.T) {
	now := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "staleflix/2026-03", AssetFolder("", now))
	assert.Equal(t, "family/2026-03", AssetFolder("family", now))
}

func TestMailingListSender(t *testing.T) {
	b := &fakeBackend{}
	msg, err := NewMailingList(b).Send(context.Background(), testNewsletter())
	require.NoError(t, err)

	assert.Equal(t, "queued for mailing", msg)
	assert.Equal(t, "<p>Hi</p>", b.message)
	assert.Equal(t, "staleflix/2026-10", b.assetFolder)
	assert.Len(t, b.records, 1)
}

func TestMediaCollectionsSender(t *testing.T) {
	b := &fakeBackend{}
	_, err := NewMediaCollections(b).Send(context.Background(), testNewsletter())
	require.NoError(t, err)
	assert.Equal(t, []string{TargetMediaCollections}, b.calls)
}

func TestNewSenders(t *testing.T) {
	b := &fakeBackend{}
	senders, err := NewSenders([]string{"media_collections", "mailing_list", "smtp"}, b, config.Mail{})
	require.NoError(t, err)

	var names []string
	for _, s := range senders {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{TargetMediaCollections, TargetMailingList, TargetSMTP}, names)

	_, err = NewSenders([]string{"carrier_pigeon"}, b, config.Mail{})
	assert.Error(t, err)
}

func TestSMTPSend(t *testing.T) {
	d := &fakeDialer{}
	s := NewSMTPWithDialer(config.Mail{From: "staleflix@example.com", To: []string{"a@example.com", "b@example.com"}}, d)

	msg, err := s.Send(context.Background(), testNewsletter())
	require.NoError(t, err)
	assert.Contains(t, msg, "a@example.com, b@example.com")

	require.Len(t, d.sent, 1)
	m := d.sent[0]
	assert.Equal(t, []string{"staleflix@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, m.GetHeader("To"))

	var raw strings.Builder
	_, err = m.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "text/plain")
	assert.Contains(t, raw.String(), "text/html")
}

func TestSMTPSendFailure(t *testing.T) {
	d := &fakeDialer{err: io.ErrUnexpectedEOF}
	s := NewSMTPWithDialer(config.Mail{From: "x@example.com", To: []string{"a@example.com"}}, d)

	_, err := s.Send(context.Background(), testNewsletter())
	var se *backend.SubmitError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, TargetSMTP, se.Endpoint)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSMTPSendWithoutRecipients(t *testing.T) {
	d := &fakeDialer{}
	_, err := NewSMTPWithDialer(config.Mail{From: "x@example.com"}, d).Send(context.Background(), testNewsletter())
	assert.Error(t, err)
	assert.Empty(t, d.sent)
}
