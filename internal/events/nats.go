// Package events publishes gateway state changes to NATS JetStream so
// other consumers can follow the chat store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/driftline/chatsync/internal/model"
	"github.com/driftline/chatsync/pkg/logger"
)

const (
	// StreamName is the JetStream stream holding chat events.
	StreamName = "CHAT_EVENTS"

	subjectMessageCreated  = "chat.messages.created"
	subjectReactionUpdated = "chat.reactions.updated"
)

// Publisher emits chat store events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishMessageCreated(ctx context.Context, msg model.Message) error
	PublishReactionUpdated(ctx context.Context, messageID string, counts model.ReactionCounts) error
	IsConnected() bool
}

// Config holds NATS connection configuration.
type Config struct {
	URL   string
	Token string
}

// NATSPublisher publishes events to a JetStream stream.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect establishes the NATS connection and ensures the event
// stream exists.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NATSPublisher{conn: nc, js: js, logger: log.Component("events")}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) ensureStream(ctx context.Context) error {
	_, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{"chat.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Chat message and reaction events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

type messageCreatedEvent struct {
	MessageID string        `json:"message_id"`
	Message   model.Message `json:"message"`
	EmittedAt time.Time     `json:"emitted_at"`
}

type reactionUpdatedEvent struct {
	MessageID string               `json:"message_id"`
	Reactions model.ReactionCounts `json:"reactions"`
	EmittedAt time.Time            `json:"emitted_at"`
}

// PublishMessageCreated emits a message-created event.
func (p *NATSPublisher) PublishMessageCreated(ctx context.Context, msg model.Message) error {
	return p.publish(ctx, subjectMessageCreated, messageCreatedEvent{
		MessageID: msg.ID(),
		Message:   msg,
		EmittedAt: time.Now().UTC(),
	})
}

// PublishReactionUpdated emits a reaction-updated event.
func (p *NATSPublisher) PublishReactionUpdated(ctx context.Context, messageID string, counts model.ReactionCounts) error {
	return p.publish(ctx, subjectReactionUpdated, reactionUpdatedEvent{
		MessageID: messageID,
		Reactions: counts,
		EmittedAt: time.Now().UTC(),
	})
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject))
	return nil
}

// IsConnected reports NATS connectivity.
func (p *NATSPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
