package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/user/pskwatch/internal/util"
)

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Send(context.Context, []string, string, string) error {
	r.calls++
	return r.err
}

func TestMultiSucceedsWhenOneChannelWorks(t *testing.T) {
	bad := &recordingNotifier{err: errors.New("smtp down")}
	good := &recordingNotifier{}

	if err := (Multi{bad, good}).Send(context.Background(), nil, "s", "b"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", bad.calls, good.calls)
	}
}

func TestMultiFailsWhenAllChannelsFail(t *testing.T) {
	first := &recordingNotifier{err: errors.New("smtp down")}
	second := &recordingNotifier{err: errors.New("broker down")}

	err := (Multi{first, second}).Send(context.Background(), nil, "s", "b")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "smtp down") || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("error should carry both causes: %v", err)
	}
}

func TestSMTPComposesMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewSMTP(util.SMTPConfig{Host: "mail.example.org", Port: 587, Username: "alerts@example.org", Password: "secret"})
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		if a == nil {
			t.Error("auth expected when username is set")
		}
		return nil
	}

	err := s.Send(context.Background(), []string{"op@example.org"}, "PSKReporter Alert: K2ABC", "line one\nline two")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "mail.example.org:587" || gotFrom != "alerts@example.org" || len(gotTo) != 1 {
		t.Fatalf("envelope = %s %s %v", gotAddr, gotFrom, gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{
		"Subject: PSKReporter Alert: K2ABC\r\n",
		"To: op@example.org\r\n",
		"Message-ID: <",
		"@example.org>\r\n",
		"\r\n\r\nline one\r\nline two",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSMTPRequiresRecipients(t *testing.T) {
	s := NewSMTP(util.SMTPConfig{Host: "localhost", Port: 25})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail should not be called")
		return nil
	}
	if err := s.Send(context.Background(), nil, "s", "b"); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestSMTPWrapsSendError(t *testing.T) {
	s := NewSMTP(util.SMTPConfig{Host: "localhost", Port: 25, From: "a@b"})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := s.Send(context.Background(), []string{"x@y"}, "s", "b")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("got %v", err)
	}
}

// fakeToken is a completed mqtt.Token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.payload, _ = payload.([]byte)
	return newFakeToken(p.err)
}

func TestMQTTPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	m := &MQTT{client: pub, topic: "pskwatch/alerts"}

	if err := m.Send(context.Background(), []string{"op@example.org"}, "PSKReporter Alert: N4QRS", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if pub.topic != "pskwatch/alerts" {
		t.Errorf("topic = %s", pub.topic)
	}
	var doc alertPayload
	if err := json.Unmarshal(pub.payload, &doc); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if doc.Subject != "PSKReporter Alert: N4QRS" || doc.Body != "body" || doc.ID == "" {
		t.Errorf("payload = %+v", doc)
	}
}

func TestMQTTPublishError(t *testing.T) {
	m := &MQTT{client: &fakePublisher{err: errors.New("not connected")}, topic: "t"}
	if err := m.Send(context.Background(), nil, "s", "b"); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestFromConfigChannels(t *testing.T) {
	cfg := util.DefaultConfig()
	n, closeFn, err := FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := n.(Log); !ok {
		t.Fatalf("expected only the log channel, got %#v", n)
	}

	cfg.SMTP.Host = "mail.example.org"
	n, _, err = FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	logged, ok := n.(Logged)
	if !ok {
		t.Fatalf("expected logged delivery, got %#v", n)
	}
	if multi, ok := logged.Next.(Multi); !ok || len(multi) != 1 {
		t.Fatalf("expected one delivery channel, got %#v", logged.Next)
	}
}

func TestLoggedReturnsDeliveryError(t *testing.T) {
	down := &recordingNotifier{err: errors.New("smtp down")}
	err := Logged{Next: Multi{down}}.Send(context.Background(), []string{"op@example.org"}, "s", "b")
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if down.calls != 1 {
		t.Fatalf("calls = %d, want 1", down.calls)
	}
}

func TestFromConfigUnreachableSMTPFails(t *testing.T) {
	cfg := util.DefaultConfig()
	cfg.SMTP.Host = "127.0.0.1"
	cfg.SMTP.Port = 1

	n, closeFn, err := FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	if err := n.Send(context.Background(), []string{"op@example.org"}, "s", "b"); err == nil {
		t.Fatal("expected an error when the only delivery channel is unreachable")
	}
}
