package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"marketplace-settlement/internal/domain/event"
)

// EventMessage is the wire form of a settlement domain event
type EventMessage struct {
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Version     int             `json:"version"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// EventPublisher forwards domain events to a topic, keyed by aggregate id so events of one
// aggregate keep their order
type EventPublisher struct {
	writer messageWriter
	topic  string
}

// NewEventPublisher creates a publisher writing to topic
func NewEventPublisher(brokers []string, topic string) (*EventPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &EventPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			RequiredAcks: kafkago.RequireAll,
			Balancer:     &kafkago.Hash{},
		},
		topic: topic,
	}, nil
}

// Handle lets the publisher subscribe to the event bus
func (p *EventPublisher) Handle(ctx context.Context, evt event.DomainEvent) error {
	msg, err := encodeEvent(p.topic, evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", evt.EventType(), err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

func encodeEvent(topic string, evt event.DomainEvent) (kafkago.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode %s payload: %w", evt.EventType(), err)
	}
	value, err := json.Marshal(EventMessage{
		EventType:   evt.EventType(),
		AggregateID: evt.AggregateID(),
		Version:     evt.Version(),
		OccurredAt:  evt.OccurredAt().UTC(),
		Payload:     payload,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(evt.AggregateID()),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(evt.EventType())},
		},
	}, nil
}
