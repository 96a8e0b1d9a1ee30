// Package events publishes shipment status changes for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

type Publisher interface {
	PublishStatusChange(ctx context.Context, change model.StatusChange) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// PublishStatusChange keys messages by shipment id so one shipment's changes
// land on the same partition in order.
func (p *KafkaPublisher) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	b, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.ShipmentID.String()),
		Value: b,
		Time:  change.At,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("shipment.status_changed")},
		},
	})
	if err != nil {
		return fmt.Errorf("publish status change for shipment %s: %w", change.ShipmentID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event; used when no brokers are configured.
type Nop struct{}

func (Nop) PublishStatusChange(context.Context, model.StatusChange) error { return nil }
func (Nop) Close() error { return nil }
