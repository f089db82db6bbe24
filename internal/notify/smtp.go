package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/pskwatch/internal/util"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends plain-text email.
type SMTP struct {
	cfg      util.SMTPConfig
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(cfg util.SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

// Send delivers one email to all recipients.
func (s *SMTP) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}
	msg := s.compose(from, recipients, subject, body)
	if err := s.sendMail(addr, auth, from, recipients, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	util.Debug("alert email sent", "to", recipients, "subject", subject)
	return nil
}

func (s *SMTP) compose(from string, to []string, subject, body string) []byte {
	host := s.cfg.Host
	if i := strings.LastIndex(from, "@"); i >= 0 {
		host = from[i+1:]
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}
