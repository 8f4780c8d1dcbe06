package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Novip1906/tasks-live/internal/config"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/segmentio/kafka-go"
)

// EventMessage is the record mirrored to the events topic. Event holds the
// same JSON a live connection receives.
type EventMessage struct {
	Username   string          `json:"username"`
	Type       string          `json:"type"`
	Event      json.RawMessage `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventsProducer mirrors task change events to Kafka, keyed by username so
// one user's events stay in order on a single partition.
type EventsProducer struct {
	producer    *producer
	eventsTopic string
	now         func() time.Time
}

func NewEventsProducer(kafkaCfg *config.Kafka) *EventsProducer {
	return &EventsProducer{
		producer:    newProducer(kafkaCfg),
		eventsTopic: kafkaCfg.EventsTopic,
		now:         time.Now,
	}
}

func (e *EventsProducer) HandleEvent(ctx context.Context, owner string, ev models.ChangeEvent) error {
	payload, err := models.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	message := EventMessage{
		Username:   owner,
		Type:       models.EventType(ev),
		Event:      payload,
		OccurredAt: e.now().UTC(),
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal events message: %w", err)
	}

	err = e.producer.SendMessage(
		ctx,
		e.eventsTopic,
		[]byte(owner),
		jsonData,
		kafka.Header{Key: "type", Value: []byte(message.Type)},
	)
	if err != nil {
		return fmt.Errorf("failed to send events message: %w", err)
	}

	return nil
}

func (e *EventsProducer) Close() error {
	return e.producer.Close()
}
