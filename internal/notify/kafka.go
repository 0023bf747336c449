package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/safar/tapcart/internal/kafka"
	segkafka "github.com/segmentio/kafka-go"
)

const EventType = "notify.sms"

type publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...segkafka.Header) error
}

// KafkaNotifier hands messages to the notifier worker through a topic.
type KafkaNotifier struct {
	producer publisher
}

func NewKafkaNotifier(p publisher) *KafkaNotifier {
	return &KafkaNotifier{producer: p}
}

func (n *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	env, err := kafka.NewEnvelope(EventType, msg)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return n.producer.Publish(ctx, []byte(msg.To), value,
		segkafka.Header{Key: "event_id", Value: []byte(env.EventID)})
}

// Deduper remembers which events were already delivered. FirstSeen claims
// an event id; Forget releases the claim when delivery failed.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Handler decodes envelopes from the topic and delivers them through
// sender. Redelivered events are skipped when dedup is set; an event whose
// delivery failed is released so the redelivered copy is sent.
func Handler(sender Notifier, dedup Deduper) kafka.Handler {
	return func(ctx context.Context, m segkafka.Message) error {
		env, err := kafka.UnmarshalEnvelope(m.Value)
		if err != nil {
			slog.ErrorContext(ctx, "dropping undecodable message", slog.Int64("offset", m.Offset), slog.Any("error", err))
			return nil
		}
		if env.Type != EventType {
			return nil
		}

		msg, err := kafka.UnwrapPayload[Message](env.Payload)
		if err != nil {
			slog.ErrorContext(ctx, "dropping bad payload", slog.String("event_id", env.EventID), slog.Any("error", err))
			return nil
		}

		if dedup != nil {
			first, err := dedup.FirstSeen(ctx, env.EventID)
			if err != nil {
				return fmt.Errorf("dedup %s: %w", env.EventID, err)
			}
			if !first {
				return nil
			}
		}

		if err := sender.Send(ctx, msg); err != nil {
			if dedup != nil {
				if ferr := dedup.Forget(ctx, env.EventID); ferr != nil {
					slog.ErrorContext(ctx, "release dedup claim failed",
						slog.String("event_id", env.EventID), slog.Any("error", ferr))
				}
			}
			return fmt.Errorf("send %s: %w", env.EventID, err)
		}
		return nil
	}
}
