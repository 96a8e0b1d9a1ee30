package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageCache remembers the provider id of the prompt sent for a shipment.
type MessageCache interface {
	StoreSent(ctx context.Context, shipmentID uuid.UUID, remoteMessageID string, sentAt time.Time) error
}

// ReplyCache maps an inbound provider message id to the text we answered with,
// so a redelivered webhook gets the same answer without being processed twice.
type ReplyCache interface {
	GetReply(ctx context.Context, messageSID string) (text string, ok bool, err error)
	StoreReply(ctx context.Context, messageSID, text string) error
}
