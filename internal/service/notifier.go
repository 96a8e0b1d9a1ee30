package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/LeventeLantos/delivery-confirmation/internal/metrics"
	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
)

type SendClient interface {
	Send(ctx context.Context, phoneNumber, message string) (remoteMessageID string, err error)
}

// Notifier sends confirmation prompts. A nil client means sending is
// disabled and every send returns ErrMessagingDisabled.
type Notifier struct {
	client       SendClient
	contentMax   int
	composer     *Composer
	interactions repo.InteractionRepository
	now          func() time.Time

	onSent   func(ctx context.Context, shipmentID uuid.UUID, remoteMessageID string) error
	onFailed func(ctx context.Context, shipmentID uuid.UUID, reason string) error
}

func NewNotifier(client SendClient, contentMax int, composer *Composer, interactions repo.InteractionRepository) *Notifier {
	return &Notifier{
		client:       client,
		contentMax:   contentMax,
		composer:     composer,
		interactions: interactions,
		now:          time.Now,
	}
}

func (n *Notifier) WithHooks(
	onSent func(ctx context.Context, shipmentID uuid.UUID, remoteMessageID string) error,
	onFailed func(ctx context.Context, shipmentID uuid.UUID, reason string) error,
) *Notifier {
	n.onSent = onSent
	n.onFailed = onFailed
	return n
}

func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.client != nil
}

// SendPrompt asks the customer to confirm the shipment and logs the prompt as
// an outbound interaction. Failures are reported, never retried.
func (n *Notifier) SendPrompt(ctx context.Context, cust model.Customer, s model.Shipment) (string, error) {
	if !n.Enabled() {
		return "", ErrMessagingDisabled
	}

	body := n.composer.Prompt(cust, s)
	if utf8.RuneCountInString(body) > n.contentMax {
		err := fmt.Errorf("%w: exceeds %d chars", ErrContentTooLong, n.contentMax)
		n.fail(ctx, s.ID, err.Error())
		return "", err
	}

	remoteID, err := n.client.Send(ctx, cust.Phone, body)
	if err != nil {
		n.fail(ctx, s.ID, err.Error())
		return "", fmt.Errorf("send prompt for shipment %s: %w", s.ID, err)
	}

	metrics.PromptsTotal.WithLabelValues("sent").Inc()

	err = n.interactions.AppendInteraction(ctx, model.DeliveryInteraction{
		ID:         uuid.New(),
		ShipmentID: &s.ID,
		CustomerID: &cust.ID,
		Contact:    cust.Phone,
		Channel:    model.WhatsApp,
		Direction:  model.Outbound,
		Content:    body,
		CreatedAt:  n.now(),
	})
	if err != nil {
		slog.Error("prompt sent but interaction not recorded",
			"shipment_id", s.ID.String(), "remote_id", remoteID, "err", err)
	}

	if n.onSent != nil {
		if err := n.onSent(ctx, s.ID, remoteID); err != nil {
			slog.Warn("prompt sent hook failed", "shipment_id", s.ID.String(), "err", err)
		}
	}

	slog.Info("prompt sent", "shipment_id", s.ID.String(), "to", cust.Phone, "remote_id", remoteID)
	return remoteID, nil
}

// SendTest sends a fixed probe message to check the provider setup.
func (n *Notifier) SendTest(ctx context.Context, phone string) (to string, remoteID string, err error) {
	if !n.Enabled() {
		return "", "", ErrMessagingDisabled
	}
	to = strings.TrimSpace(phone)
	if to == "" {
		return "", "", fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}

	remoteID, err = n.client.Send(ctx, to, TestMessage)
	if err != nil {
		return to, "", fmt.Errorf("send test message: %w", err)
	}
	return to, remoteID, nil
}

func (n *Notifier) fail(ctx context.Context, shipmentID uuid.UUID, reason string) {
	metrics.PromptsTotal.WithLabelValues("failed").Inc()
	slog.Warn("prompt not sent", "shipment_id", shipmentID.String(), "reason", reason)
	if n.onFailed != nil {
		_ = n.onFailed(ctx, shipmentID, reason)
	}
}
