package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"quiz-attempt-service/internal/app"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Handler receives decoded attempt.finished events.
type Handler func(ctx context.Context, event app.AttemptFinishedEvent) error

// Consume subscribes to topic and feeds attempt.finished events to handle
// until ctx is cancelled. Malformed messages are acked and dropped.
func Consume(ctx context.Context, sub message.Subscriber, topic string, logger *slog.Logger, handle Handler) error {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	for msg := range messages {
		var env Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil || env.Type != EventAttemptFinished {
			logger.WarnContext(ctx, "dropping event", "message_uuid", msg.UUID, "error", err)
			msg.Ack()
			continue
		}
		var event app.AttemptFinishedEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			logger.WarnContext(ctx, "dropping event", "message_uuid", msg.UUID, "error", err)
			msg.Ack()
			continue
		}
		if err := handle(ctx, event); err != nil {
			msg.Nack()
			continue
		}
		msg.Ack()
	}
	return nil
}

// LogHandler records finished attempts in the service log.
func LogHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, event app.AttemptFinishedEvent) error {
		logger.InfoContext(ctx, "attempt finished event",
			"attempt_id", event.AttemptID,
			"quiz_id", event.QuizID,
			"score", event.Score,
			"total", event.TotalQuestions)
		return nil
	}
}
