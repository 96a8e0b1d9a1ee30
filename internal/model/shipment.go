package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	Pending     Status = "pending"
	Confirmed   Status = "confirmed"
	Rejected    Status = "rejected"
	Rescheduled Status = "rescheduled"
	Delivered   Status = "delivered"
	Failed      Status = "failed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the allowed edges of the shipment state machine.
// Replies only ever drive pending -> confirmed|rejected.
var transitions = map[Status][]Status{
	Pending:     {Confirmed, Rejected},
	Rejected:    {Rescheduled, Delivered, Failed},
	Confirmed:   {Delivered, Failed},
	Rescheduled: {Delivered, Failed},
}

func (s Status) Valid() bool {
	switch s {
	case Pending, Confirmed, Rejected, Rescheduled, Delivered, Failed:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition returns to when the edge from s is allowed.
func (s Status) Transition(to Status) (Status, error) {
	if !to.Valid() {
		return s, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(s, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}

type Shipment struct {
	ID                  uuid.UUID `json:"id"`
	CustomerID          uuid.UUID `json:"customer_id"`
	Description         string    `json:"description"`
	PlannedDeliveryTime time.Time `json:"planned_delivery_time"`
	Status              Status    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewShipment builds a pending shipment with the planned time moved into loc.
func NewShipment(customerID uuid.UUID, description string, planned time.Time, loc *time.Location, now time.Time) Shipment {
	return Shipment{
		ID:                  uuid.New(),
		CustomerID:          customerID,
		Description:         description,
		PlannedDeliveryTime: planned.In(loc),
		Status:              Pending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// StatusChange is emitted after a committed status update.
type StatusChange struct {
	ShipmentID uuid.UUID `json:"shipment_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Source     string    `json:"source"`
	At         time.Time `json:"at"`
}
