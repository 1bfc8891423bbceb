package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventHandler receives one decoded reservation event. A returned error
// stops the consumer before the offset is committed, so the event is
// redelivered after a restart.
type EventHandler func(ctx context.Context, event ReservationEvent) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads reservation events with at-least-once delivery.
type Consumer struct {
	reader messageReader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume hands every event to handler and commits its offset once the
// handler returns nil. Records that do not decode are logged and committed.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		event, err := DecodeReservationEvent(msg)
		if err != nil {
			log.Printf("skip record key=%s: %v", msg.Key, err)
		} else if err := handler(ctx, event); err != nil {
			return fmt.Errorf("handle %s pnr=%s offset=%d: %w", event.Type, event.PNR, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func DecodeReservationEvent(msg kafka.Message) (ReservationEvent, error) {
	var event ReservationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return ReservationEvent{}, fmt.Errorf("decode reservation event at offset %d: %w", msg.Offset, err)
	}
	if event.Type == "" {
		return ReservationEvent{}, fmt.Errorf("reservation event at offset %d has no type", msg.Offset)
	}
	return event, nil
}
