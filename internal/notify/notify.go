// Package notify delivers alert messages over email, MQTT or the log.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/pskwatch/internal/util"
)

// Notifier delivers one message to recipients.
type Notifier interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// ErrNoRecipients is returned by channels that need at least one address.
var ErrNoRecipients = errors.New("no recipients")

// Log writes alerts to the application log.
type Log struct{}

// Send logs the message.
func (Log) Send(_ context.Context, recipients []string, subject, body string) error {
	util.Info("alert", "subject", subject, "recipients", recipients, "body", body)
	return nil
}

// Multi fans a message out to several notifiers. It fails only when every
// notifier fails.
type Multi []Notifier

// Send delivers to every notifier in order.
func (m Multi) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(m) == 0 {
		return nil
	}
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, recipients, subject, body); err != nil {
			util.Warn("notifier failed", "notifier", fmt.Sprintf("%T", n), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m) {
		return fmt.Errorf("all notifiers failed: %w", errors.Join(errs...))
	}
	return nil
}

// Logged writes every alert to the log, then delivers it through Next.
// Only Next decides whether the send succeeded.
type Logged struct {
	Next Notifier
}

// Send logs the message and forwards it.
func (l Logged) Send(ctx context.Context, recipients []string, subject, body string) error {
	Log{}.Send(ctx, recipients, subject, body)
	return l.Next.Send(ctx, recipients, subject, body)
}

// FromConfig builds the configured delivery channels. Alerts are always
// logged; with no delivery channel the log is the only sink. The returned
// close function releases network clients.
func FromConfig(cfg *util.Config) (Notifier, func(), error) {
	var channels Multi
	closers := []func(){}

	if cfg.SMTP.Host != "" {
		channels = append(channels, NewSMTP(cfg.SMTP))
	}
	if cfg.MQTT.Broker != "" {
		m, err := NewMQTT(cfg.MQTT)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, m)
		closers = append(closers, m.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(channels) == 0 {
		return Log{}, closeAll, nil
	}
	return Logged{Next: channels}, closeAll, nil
}
