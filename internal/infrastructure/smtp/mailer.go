package smtp

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/gradpath-api/internal/config"
)

// Mailer delivers verification emails over SMTP.
type Mailer struct {
	host        string
	port        string
	from        string
	username    string
	password    string
	frontendURL string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:        cfg.SMTPHost,
		port:        cfg.SMTPPort,
		from:        cfg.SMTPFrom,
		username:    cfg.SMTPUsername,
		password:    cfg.SMTPPassword,
		frontendURL: cfg.FrontendURL,
	}
}

// SendVerification emails the verification link carrying the raw
// token. net/smtp has no context support, so the caller's deadline is
// honored per send via a goroutine race; the connection itself is
// abandoned on timeout.
func (m *Mailer) SendVerification(ctx context.Context, email, fullName, rawToken string) error {
	link := fmt.Sprintf("%s/verify-email/%s", m.frontendURL, rawToken)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nWelcome to GradPath! Please confirm your email address by opening the link below within 24 hours:\r\n\r\n%s\r\n\r\nIf you did not sign up, you can ignore this message.\r\n",
		fullName, link,
	)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Verify your email\r\n\r\n%s", m.from, email, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.from, []string{email}, []byte(msg))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
