// Package mqttbridge bridges the chat platform over an MQTT broker:
// inbound updates arrive on one topic, outbound frames are published on
// another.
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HerbHall/botforge/internal/transport"
	"github.com/HerbHall/botforge/pkg/models"
	"github.com/HerbHall/botforge/pkg/plugin"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.Messenger = (*Bridge)(nil)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
)

// Options configures the bridge connection.
type Options struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string
	Inbound  string // topic carrying transport.Inbound frames
	Outbound string // topic carrying transport.Outbound frames
}

// Bridge is the MQTT transport adapter.
type Bridge struct {
	client mqtt.Client
	opts   Options
	sink   transport.Sink
	ids    *transport.IDSequence
	logger *zap.Logger
}

// New creates a Bridge. Connect must be called before use.
func New(opts Options, sink transport.Sink, logger *zap.Logger) *Bridge {
	if opts.ClientID == "" {
		opts.ClientID = "botforge"
	}
	return &Bridge{
		opts:   opts,
		sink:   sink,
		ids:    &transport.IDSequence{},
		logger: logger,
	}
}

// Connect dials the broker and subscribes to the inbound topic.
func (b *Bridge) Connect() error {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(b.opts.Broker).
		SetClientID(b.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	b.client = mqtt.NewClient(clientOpts)
	if token := b.client.Connect(); !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		return fmt.Errorf("connect mqtt broker %q: %w", b.opts.Broker, token.Error())
	}

	token := b.client.Subscribe(b.opts.Inbound, 1, b.onInbound)
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		return fmt.Errorf("subscribe %q: %w", b.opts.Inbound, token.Error())
	}

	b.logger.Info("mqtt bridge connected",
		zap.String("broker", b.opts.Broker),
		zap.String("inbound", b.opts.Inbound),
	)
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) onInbound(_ mqtt.Client, msg mqtt.Message) {
	var in transport.Inbound
	if err := json.Unmarshal(msg.Payload(), &in); err != nil {
		b.logger.Error("malformed inbound frame", zap.Error(err))
		return
	}

	u := in.Update
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	b.sink.Dispatch(context.Background(), &u)
}

// SendMessage publishes a message frame and returns the framework-side
// view of the sent message.
func (b *Bridge) SendMessage(ctx context.Context, chatID int64, text string) (*models.Message, error) {
	id := b.ids.Next()
	err := b.publish(transport.Outbound{
		Kind:      transport.KindMessage,
		ChatID:    chatID,
		MessageID: id,
		Text:      text,
	})
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:     id,
		Chat:   models.Chat{ID: chatID},
		Text:   text,
		SentAt: time.Now().UTC(),
	}, nil
}

// DeleteMessage publishes a delete frame.
func (b *Bridge) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return b.publish(transport.Outbound{
		Kind:      transport.KindDelete,
		ChatID:    chatID,
		MessageID: messageID,
	})
}

// SendAction publishes a chat-action frame.
func (b *Bridge) SendAction(ctx context.Context, chatID int64, action string) error {
	return b.publish(transport.Outbound{
		Kind:   transport.KindAction,
		ChatID: chatID,
		Action: action,
	})
}

func (b *Bridge) publish(out transport.Outbound) error {
	if b.client == nil {
		return fmt.Errorf("mqtt bridge not connected")
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outbound frame: %w", err)
	}

	token := b.client.Publish(b.opts.Outbound, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %q: timeout", b.opts.Outbound)
	}
	return token.Error()
}
