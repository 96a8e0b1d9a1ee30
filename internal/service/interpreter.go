package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/events"
	"github.com/LeventeLantos/delivery-confirmation/internal/metrics"
	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/reply"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
)

// InboundReply is one message received from a customer.
type InboundReply struct {
	From       string
	Body       string
	MessageSID string
}

// ReplyResult describes what happened to a reply. Not finding a customer or a
// pending shipment is reported through Outcome, not as an error.
type ReplyResult struct {
	Outcome  Outcome
	Intent   reply.Intent
	Contact  string
	Text     string
	Customer *model.Customer
	// Shipment carries the status after the reply was applied.
	Shipment *model.Shipment
}

func (r ReplyResult) Transitioned() bool {
	return r.Outcome == OutcomeConfirmed || r.Outcome == OutcomeRejected
}

type Interpreter struct {
	store     repo.Store
	composer  *Composer
	publisher events.Publisher
	now       func() time.Time
}

func NewInterpreter(store repo.Store, composer *Composer, publisher events.Publisher) *Interpreter {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Interpreter{
		store:     store,
		composer:  composer,
		publisher: publisher,
		now:       time.Now,
	}
}

func (in *Interpreter) WithClock(now func() time.Time) *Interpreter {
	in.now = now
	return in
}

// HandleReply interprets one inbound reply. Every write for the reply happens
// in a single transaction: one inbound interaction always, plus the status
// update and the outbound follow-up when the shipment transitions.
func (in *Interpreter) HandleReply(ctx context.Context, msg InboundReply) (ReplyResult, error) {
	contact, channel := reply.CanonicalContact(msg.From)
	intent := reply.Interpret(msg.Body)
	now := in.now()

	var res ReplyResult
	err := in.store.InTx(ctx, func(tx repo.Tx) error {
		res = ReplyResult{Intent: intent, Contact: contact}
		rec := replyRecorder{
			tx:      tx,
			contact: contact,
			channel: model.Channel(channel),
			now:     now,
		}

		cust, err := tx.FindCustomerByPhone(ctx, contact)
		if errors.Is(err, repo.ErrNotFound) {
			res.Outcome = OutcomeCustomerNotFound
			res.Text = in.composer.Reply(res.Outcome, nil, nil)
			return rec.inbound(ctx, nil, nil, msg.Body, model.CodeNotFound)
		}
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}
		res.Customer = &cust

		sh, err := tx.FindMostRecentPendingShipment(ctx, cust.ID)
		if errors.Is(err, repo.ErrNotFound) {
			res.Outcome = OutcomeNoPendingShipment
			res.Text = in.composer.Reply(res.Outcome, &cust, nil)
			return rec.inbound(ctx, &cust.ID, nil, msg.Body, model.CodeNotFound)
		}
		if err != nil {
			return fmt.Errorf("resolve pending shipment: %w", err)
		}

		return in.applyIntent(ctx, tx, rec, &res, cust, sh, msg.Body)
	})
	if err != nil {
		return ReplyResult{}, fmt.Errorf("handle reply from %s: %w", contact, err)
	}

	metrics.RepliesTotal.WithLabelValues(string(res.Outcome)).Inc()
	slog.Info("reply processed",
		"contact", contact,
		"intent", string(intent),
		"outcome", string(res.Outcome),
	)

	if res.Transitioned() {
		change := model.StatusChange{
			ShipmentID: res.Shipment.ID,
			CustomerID: res.Shipment.CustomerID,
			From:       model.Pending,
			To:         res.Shipment.Status,
			Source:     "reply",
			At:         now,
		}
		if err := in.publisher.PublishStatusChange(ctx, change); err != nil {
			slog.Warn("status change event not published", "shipment_id", change.ShipmentID.String(), "err", err)
		}
	}

	return res, nil
}

func (in *Interpreter) applyIntent(
	ctx context.Context,
	tx repo.Tx,
	rec replyRecorder,
	res *ReplyResult,
	cust model.Customer,
	sh model.Shipment,
	body string,
) error {
	var (
		target       model.Status
		followUpCode string
	)
	switch res.Intent {
	case reply.Confirm:
		target, followUpCode, res.Outcome = model.Confirmed, model.CodeConfirmationSent, OutcomeConfirmed
	case reply.Reject:
		target, followUpCode, res.Outcome = model.Rejected, model.CodeAlternativeRequested, OutcomeRejected
	default:
		res.Outcome = OutcomeUnknownIntent
		res.Shipment = &sh
		res.Text = in.composer.Reply(res.Outcome, &cust, &sh)
		return rec.inbound(ctx, &cust.ID, &sh.ID, body, model.CodeUnknown)
	}

	next, err := sh.Status.Transition(target)
	if err != nil {
		return err
	}
	if err := tx.UpdateShipmentStatus(ctx, sh.ID, sh.Status, next, rec.now); err != nil {
		return fmt.Errorf("transition shipment: %w", err)
	}
	sh.Status = next
	sh.UpdatedAt = rec.now
	res.Shipment = &sh

	if err := rec.inbound(ctx, &cust.ID, &sh.ID, body, string(next)); err != nil {
		return err
	}

	res.Text = in.composer.Reply(res.Outcome, &cust, &sh)
	return rec.outbound(ctx, &cust.ID, &sh.ID, res.Text, followUpCode)
}

type replyRecorder struct {
	tx      repo.Tx
	contact string
	channel model.Channel
	now     time.Time
}

func (r replyRecorder) inbound(ctx context.Context, customerID, shipmentID *uuid.UUID, content, code string) error {
	return r.append(ctx, customerID, shipmentID, model.Inbound, content, code)
}

func (r replyRecorder) outbound(ctx context.Context, customerID, shipmentID *uuid.UUID, content, code string) error {
	return r.append(ctx, customerID, shipmentID, model.Outbound, content, code)
}

func (r replyRecorder) append(
	ctx context.Context,
	customerID, shipmentID *uuid.UUID,
	dir model.Direction,
	content, code string,
) error {
	err := r.tx.AppendInteraction(ctx, model.DeliveryInteraction{
		ID:           uuid.New(),
		ShipmentID:   shipmentID,
		CustomerID:   customerID,
		Contact:      r.contact,
		Channel:      r.channel,
		Direction:    dir,
		Content:      content,
		ResponseCode: model.Code(code),
		CreatedAt:    r.now,
	})
	if err != nil {
		return fmt.Errorf("append %s interaction: %w", dir, err)
	}
	return nil
}
