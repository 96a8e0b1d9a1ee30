package model

import (
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type Channel string

const (
	WhatsApp Channel = "whatsapp"
	SMS      Channel = "sms"
)

// Response codes stored on interactions. Inbound replies that transition a
// shipment carry the new status instead.
const (
	CodeUnknown              = "unknown"
	CodeNotFound             = "not_found"
	CodeConfirmationSent     = "confirmation_sent"
	CodeAlternativeRequested = "alternative_requested"
)

// DeliveryInteraction is an append-only log row. ShipmentID and CustomerID are
// nil when an inbound reply could not be matched.
type DeliveryInteraction struct {
	ID           uuid.UUID  `json:"id"`
	ShipmentID   *uuid.UUID `json:"shipment_id"`
	CustomerID   *uuid.UUID `json:"customer_id"`
	Contact      string     `json:"contact"`
	Channel      Channel    `json:"channel"`
	Direction    Direction  `json:"direction"`
	Content      string     `json:"content"`
	ResponseCode *string    `json:"response_code"`
	CreatedAt    time.Time  `json:"created_at"`
}

func Code(s string) *string {
	return &s
}
