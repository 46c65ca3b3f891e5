package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"quiz-attempt-service/internal/app"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

const (
	EventAttemptFinished = "attempt.finished"

	DefaultTopic = "quiz.attempts"

	source  = "quiz-attempt-service"
	version = "1"
)

// Envelope wraps every payload published by the service.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
}

// Config selects the broker. Without Kafka brokers events stay in process.
type Config struct {
	KafkaBrokers []string
	Topic        string
	Logger       *slog.Logger
}

// Publisher implements app.EventPublisher on a watermill publisher.
type Publisher struct {
	publisher message.Publisher
	logger    *slog.Logger
	topic     string
}

var _ app.EventPublisher = (*Publisher)(nil)

// NewPublisher returns the publisher and, for the in-process broker, the
// subscriber side of the same channel. The subscriber is nil for Kafka.
func NewPublisher(cfg Config) (*Publisher, message.Subscriber, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	wmLogger := watermill.NewSlogLogger(cfg.Logger)

	if len(cfg.KafkaBrokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return &Publisher{publisher: ch, logger: cfg.Logger, topic: cfg.Topic}, ch, nil
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}
	return &Publisher{publisher: pub, logger: cfg.Logger, topic: cfg.Topic}, nil, nil
}

func (p *Publisher) PublishAttemptFinished(ctx context.Context, event app.AttemptFinishedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal attempt finished: %w", err)
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      EventAttemptFinished,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   version,
		Data:      data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := message.NewMessage(env.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", env.Type)
	msg.Metadata.Set("source", env.Source)
	msg.Metadata.Set("version", env.Version)
	msg.Metadata.Set("timestamp", env.Timestamp.Format(time.RFC3339))
	// partition key for Kafka: all events of one attempt stay ordered
	msg.Metadata.Set("attempt_id", event.AttemptID)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	p.logger.DebugContext(ctx, "event published", "event_id", env.ID, "event_type", env.Type, "topic", p.topic)
	return nil
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) Close() error {
	return p.publisher.Close()
}
