package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/twilio/twilio-go/twiml"

	"github.com/LeventeLantos/delivery-confirmation/internal/cache"
	"github.com/LeventeLantos/delivery-confirmation/internal/importer"
	"github.com/LeventeLantos/delivery-confirmation/internal/model"
	"github.com/LeventeLantos/delivery-confirmation/internal/repo"
	"github.com/LeventeLantos/delivery-confirmation/internal/scheduler"
	"github.com/LeventeLantos/delivery-confirmation/internal/service"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 32 << 20
)

// WebhookAuth controls X-Twilio-Signature checking on the inbound webhook.
type WebhookAuth struct {
	Validate  bool
	AuthToken string
	PublicURL string
}

type Deps struct {
	Store       repo.Store
	Shipments   *service.Shipments
	Interpreter *service.Interpreter
	Notifier    *service.Notifier
	Importer    *importer.Importer
	// Scheduler is nil when no import source is configured.
	Scheduler *scheduler.Scheduler
	// Replies is optional; without it redelivered webhooks are processed again.
	Replies cache.ReplyCache
	Webhook WebhookAuth
}

type Handler struct {
	Deps
	validate *validator.Validate

	// signatures is nil when webhook signature checking is off.
	signatures *twilioSignatureCheck
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		Deps:     d,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if d.Webhook.Validate {
		h.signatures = newTwilioSignatureCheck(d.Webhook.AuthToken, d.Webhook.PublicURL)
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		slog.Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"database": "ok",
		"whatsapp": h.Notifier.Enabled(),
	})
}

// ---- customers ----

type customerRequest struct {
	Name               string           `json:"name" validate:"required,max=200"`
	Phone              string           `json:"phone" validate:"required,max=40"`
	DeliveryHoursOpen  *model.TimeOfDay `json:"delivery_hours_open"`
	DeliveryHoursClose *model.TimeOfDay `json:"delivery_hours_close"`
	Timezone           string           `json:"timezone" validate:"omitempty,timezone"`
}

type customerUpdateRequest struct {
	Name               *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Phone              *string          `json:"phone" validate:"omitempty,min=1,max=40"`
	DeliveryHoursOpen  *model.TimeOfDay `json:"delivery_hours_open"`
	DeliveryHoursClose *model.TimeOfDay `json:"delivery_hours_close"`
	Timezone           *string          `json:"timezone" validate:"omitempty,timezone"`
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Shipments.CreateCustomer(r.Context(), service.CustomerInput{
		Name:               req.Name,
		Phone:              req.Phone,
		DeliveryHoursOpen:  req.DeliveryHoursOpen,
		DeliveryHoursClose: req.DeliveryHoursClose,
		Timezone:           req.Timezone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.Shipments.ListCustomers(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.Shipments.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req customerUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Shipments.UpdateCustomer(r.Context(), id, service.CustomerPatch{
		Name:               req.Name,
		Phone:              req.Phone,
		DeliveryHoursOpen:  req.DeliveryHoursOpen,
		DeliveryHoursClose: req.DeliveryHoursClose,
		Timezone:           req.Timezone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Shipments.DeactivateCustomer(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- shipments ----

type shipmentRequest struct {
	CustomerID          string `json:"customer_id" validate:"required,uuid"`
	Description         string `json:"description" validate:"required,max=500"`
	PlannedDeliveryTime string `json:"planned_delivery_time" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed rejected rescheduled delivered failed"`
}

func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req shipmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	planned, err := model.ParsePlanned(req.PlannedDeliveryTime, h.Shipments.Location())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	sh, err := h.Shipments.CreateShipment(r.Context(), service.ShipmentInput{
		CustomerID:          uuid.MustParse(req.CustomerID),
		Description:         req.Description,
		PlannedDeliveryTime: planned,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var customerID *uuid.UUID
	if raw := q.Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid customer_id"})
			return
		}
		customerID = &id
	}

	items, err := h.Shipments.ListShipments(r.Context(), customerID, parseInt(q.Get("limit"), 50), parseInt(q.Get("offset"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sh, err := h.Shipments.GetShipment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *Handler) ChangeShipmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}

	sh, err := h.Shipments.ChangeStatus(r.Context(), id, model.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *Handler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := h.Shipments.ListInteractions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ---- import ----

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.uploadedRows(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Importer.Import(r.Context(), rows))
}

func (h *Handler) ImportPreview(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.uploadedRows(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "rows": rows})
}

func (h *Handler) uploadedRows(w http.ResponseWriter, r *http.Request) ([]importer.Row, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "expected multipart form with a file field"})
		return nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing file field"})
		return nil, false
	}
	defer file.Close()

	rows, err := importer.Parse(header.Filename, file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return nil, false
	}
	return rows, true
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	h.Scheduler.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.Scheduler.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	h.Scheduler.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.Scheduler.IsRunning()})
}

func (h *Handler) requireScheduler(w http.ResponseWriter) bool {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "import scheduler not configured"})
		return false
	}
	return true
}

// ---- messaging ----

func (h *Handler) TestWhatsApp(w http.ResponseWriter, r *http.Request) {
	phone := r.FormValue("phone")

	to, sid, err := h.Notifier.SendTest(r.Context(), phone)
	switch {
	case errors.Is(err, service.ErrMessagingDisabled), errors.Is(err, service.ErrInvalidInput):
		writeError(w, err)
	case err != nil:
		slog.Warn("test message failed", "to", to, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status": "error",
			"to":     to,
			"error":  err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "success",
			"message":     "WhatsApp enviado correctamente",
			"to":          to,
			"message_sid": sid,
		})
	}
}

const unreadableMessage = "Error: No se pudo procesar su mensaje. Por favor, contacte con el servicio."

// TwilioIncoming answers an inbound WhatsApp message with TwiML. It is not
// behind the API key; Twilio authenticates with its request signature.
func (h *Handler) TwilioIncoming(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	if h.signatures != nil && !h.signatures.valid(r.PostForm, r.Header.Get("X-Twilio-Signature")) {
		slog.Warn("rejected webhook with invalid signature", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := r.PostForm.Get("Body")
	sid := r.PostForm.Get("MessageSid")

	if from == "" {
		writeTwiML(w, unreadableMessage)
		return
	}

	if h.Replies != nil && sid != "" {
		text, ok, err := h.Replies.GetReply(r.Context(), sid)
		if err != nil {
			slog.Warn("reply cache lookup failed", "message_sid", sid, "err", err)
		} else if ok {
			slog.Info("duplicate webhook delivery answered from cache", "message_sid", sid)
			writeTwiML(w, text)
			return
		}
	}

	res, err := h.Interpreter.HandleReply(r.Context(), service.InboundReply{From: from, Body: body, MessageSID: sid})
	if err != nil {
		slog.Error("reply processing failed", "message_sid", sid, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.Replies != nil && sid != "" {
		if err := h.Replies.StoreReply(r.Context(), sid, res.Text); err != nil {
			slog.Warn("reply cache store failed", "message_sid", sid, "err", err)
		}
	}
	writeTwiML(w, res.Text)
}

func writeTwiML(w http.ResponseWriter, messages ...string) {
	verbs := make([]twiml.Element, 0, len(messages))
	for _, m := range messages {
		verbs = append(verbs, &twiml.MessagingMessage{Body: m})
	}
	doc, err := twiml.Messages(verbs)
	if err != nil {
		slog.Error("render twiml failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// ---- helpers ----

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid json: %v", err)})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid id"})
		return uuid.UUID{}, false
	}
	return id, true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrMessagingDisabled):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	case errors.Is(err, repo.ErrConflict),
		errors.Is(err, repo.ErrStatusConflict),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, service.ErrCustomerInactive):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		slog.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
