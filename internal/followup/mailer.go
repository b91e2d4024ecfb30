package followup

import (
	"context"
	"fmt"
	"strings"

	"github.com/badoux/checkmail"
	"gopkg.in/gomail.v2"
)

// Email is one plain-text follow-up message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers follow-up emails.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPMailer sends through an SMTP relay with gomail. gomail has no context
// support; ctx is only checked before dialing.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateAddress(e.To); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)
	msg.SetBody("text/plain", e.Body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// ValidateAddress checks the address syntax only; no MX or SMTP probing.
func ValidateAddress(addr string) error {
	if err := checkmail.ValidateFormat(strings.TrimSpace(addr)); err != nil {
		return fmt.Errorf("invalid email %q: %w", addr, err)
	}
	return nil
}
