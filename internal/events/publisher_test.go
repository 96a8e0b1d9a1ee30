package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/LeventeLantos/delivery-confirmation/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_PublishStatusChange(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	change := model.StatusChange{
		ShipmentID: uuid.New(),
		CustomerID: uuid.New(),
		From:       model.Pending,
		To:         model.Confirmed,
		Source:     "reply",
		At:         time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	if err := p.PublishStatusChange(context.Background(), change); err != nil {
		t.Fatalf("PublishStatusChange() error: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != change.ShipmentID.String() {
		t.Fatalf("expected key %q, got %q", change.ShipmentID, msg.Key)
	}

	var got model.StatusChange
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("failed to decode value: %v", err)
	}
	if got.To != model.Confirmed || got.From != model.Pending || got.ShipmentID != change.ShipmentID {
		t.Fatalf("unexpected payload: %+v", got)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !w.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestKafkaPublisher_WriteErrorIsWrapped(t *testing.T) {
	t.Parallel()

	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker unavailable")}}

	err := p.PublishStatusChange(context.Background(), model.StatusChange{ShipmentID: uuid.New()})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "broker unavailable") {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
