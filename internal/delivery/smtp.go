package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	gomail "gopkg.in/mail.v2"

	"github.com/BattermanZ/StaleFlix/internal/backend"
	"github.com/BattermanZ/StaleFlix/internal/config"
)

// Dialer sends prepared messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP mails the inlined newsletter with a plain-text alternative.
type SMTP struct {
	from   string
	to     []string
	dialer Dialer
}

// NewSMTP creates an SMTP sender from the mail config.
func NewSMTP(cfg config.Mail) *SMTP {
	return NewSMTPWithDialer(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password))
}

// NewSMTPWithDialer creates an SMTP sender that sends through d.
func NewSMTPWithDialer(cfg config.Mail, d Dialer) *SMTP {
	return &SMTP{from: cfg.From, to: cfg.To, dialer: d}
}

func (s *SMTP) Name() string { return TargetSMTP }

func (s *SMTP) Send(ctx context.Context, n Newsletter) (string, error) {
	if len(s.to) == 0 {
		return "", &backend.SubmitError{Endpoint: TargetSMTP, Err: errors.New("no recipients configured")}
	}
	if err := ctx.Err(); err != nil {
		return "", &backend.SubmitError{Endpoint: TargetSMTP, Err: err}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/plain", n.PlainText)
	m.AddAlternative("text/html", n.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", &backend.SubmitError{Endpoint: TargetSMTP, Err: fmt.Errorf("sending mail: %w", err)}
	}

	log.Printf("Newsletter mailed to %d recipient(s)", len(s.to))
	return fmt.Sprintf("Newsletter mailed to %s", strings.Join(s.to, ", ")), nil
}
