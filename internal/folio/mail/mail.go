// Package mail delivers invitation links.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/aussiebroadwan/folio/pkg/idx"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// LogMailer writes invitation links to the log instead of sending them. It
// is meant for development, where the operator copies the link by hand.
type LogMailer struct{}

func (LogMailer) SendInvitation(ctx context.Context, to, link string) error {
	slogx.FromContext(ctx).Info("invitation link (not emailed)",
		slog.String("to", to),
		slog.String("link", link),
	)
	return nil
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SiteName appears in the subject line.
	SiteName string
}

// SMTPMailer sends plain-text invitations through an SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
	now func() time.Time

	// send is smtp.SendMail, replaced in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail: from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "Folio"
	}
	return &SMTPMailer{cfg: cfg, now: time.Now, send: smtp.SendMail}, nil
}

func (m *SMTPMailer) SendInvitation(ctx context.Context, to, link string) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("mail: invalid recipient %q", to)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.send(addr, auth, m.cfg.From, []string{to}, m.message(to, link))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mail: send invitation: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SMTPMailer) message(to, link string) []byte {
	var b bytes.Buffer
	subject := mime.QEncoding.Encode("utf-8", "You have been invited to "+m.cfg.SiteName)

	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", idx.New(), m.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "You have been invited to join %s.\r\n\r\n", m.cfg.SiteName)
	b.WriteString("Open the link below to choose a password and activate your account:\r\n\r\n")
	b.WriteString(link + "\r\n\r\n")
	b.WriteString("The link can be used once and expires in a few days. If you did not expect\r\n")
	b.WriteString("this message you can ignore it.\r\n")
	return b.Bytes()
}
