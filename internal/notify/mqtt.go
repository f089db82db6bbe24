package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/user/pskwatch/internal/util"
)

const publishTimeout = 5 * time.Second

// publisher is the part of mqtt.Client the notifier uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// alertPayload is the JSON document published per alert.
type alertPayload struct {
	ID         string   `json:"id"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients,omitempty"`
	SentAt     string   `json:"sent_at"`
}

// MQTT publishes alerts as JSON to a topic.
type MQTT struct {
	client publisher
	topic  string
	close  func()
}

// NewMQTT connects to the configured broker.
func NewMQTT(cfg util.MQTTConfig) (*MQTT, error) {
	clientID := fmt.Sprintf("%s-%d", cfg.ClientID, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts = opts.SetOrderMatters(false).SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("timed out connecting to broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", cfg.Broker, err)
	}
	util.Info("connected to MQTT broker", "broker", cfg.Broker, "client_id", clientID)

	return &MQTT{
		client: client,
		topic:  cfg.Topic,
		close:  func() { client.Disconnect(250) },
	}, nil
}

// Send publishes one alert document.
func (m *MQTT) Send(ctx context.Context, recipients []string, subject, body string) error {
	data, err := json.Marshal(alertPayload{
		ID:         uuid.NewString(),
		Subject:    subject,
		Body:       body,
		Recipients: recipients,
		SentAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	token := m.client.Publish(m.topic, 1, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if m.close != nil {
		m.close()
	}
}
