// Package mqtt publishes confirmed discoveries to an MQTT topic for
// downstream consumers.
package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/errors"
	"github.com/jkivela/packwatch/internal/logging"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// Publisher is a thin MQTT client publishing one message per confirmed
// discovery.
type Publisher struct {
	client pahomqtt.Client
	topic  string
	logger *slog.Logger
}

// message is the published payload.
type message struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// NewPublisher connects to the broker and returns a ready Publisher.
func NewPublisher(cfg *conf.MQTTSettings) (*Publisher, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("packwatch-" + uuid.NewString()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Newf("mqtt connect timed out").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("broker", cfg.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return nil, errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("broker", cfg.Broker).
			Build()
	}

	return &Publisher{
		client: client,
		topic:  cfg.Topic,
		logger: logging.ForService("mqtt"),
	}, nil
}

// ConfirmedGood publishes one confirmed-discovery message. Implements the
// reconciler's Announcer contract.
func (p *Publisher) ConfirmedGood(_ context.Context, title string) error {
	payload, err := json.Marshal(message{
		ID:          uuid.NewString(),
		Title:       title,
		ConfirmedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Newf("mqtt publish timed out").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("topic", p.topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", p.topic).
			Build()
	}

	p.logger.Debug("published confirmed discovery", "topic", p.topic, "title", title)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
