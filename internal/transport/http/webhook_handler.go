package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	apierrors "seatsync/internal/errors"
	"seatsync/internal/infrastructure"
	"seatsync/internal/paddle"
	"seatsync/internal/services"
)

// WebhookHandler handles inbound webhook HTTP requests from both partners
type WebhookHandler struct {
	reconciler services.ReconcilerService
	logger     *slog.Logger
	metrics    *infrastructure.RelayMetrics
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler services.ReconcilerService, logger *slog.Logger) *WebhookHandler {
	if reconciler == nil {
		panic("reconciler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger.With(slog.String("handler", "webhook")),
	}
}

// SetMetrics sets the relay metrics for the handler
func (h *WebhookHandler) SetMetrics(metrics *infrastructure.RelayMetrics) {
	h.metrics = metrics
}

// PaddleWebhook handles POST /paddle-webhooks
func (h *WebhookHandler) PaddleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	tracer := otel.Tracer("webhook-handler")
	ctx, span := tracer.Start(ctx, "webhook_handler.paddle_webhook")
	defer span.End()

	fields, err := paddle.ParseWebhookRequest(r)
	if err != nil {
		span.SetStatus(codes.Error, "unparseable payload")
		h.logger.WarnContext(ctx, "unparseable billing webhook",
			slog.String("error", err.Error()),
			slog.String("content_type", r.Header.Get("Content-Type")),
		)
		h.observe(ctx, "paddle", "", http.StatusBadRequest, start)
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	alertName := fields["alert_name"]
	span.SetAttributes(
		attribute.String("webhook.source", "paddle"),
		attribute.String("webhook.alert_name", alertName),
	)

	outcome := h.reconciler.HandleBillingEvent(ctx, fields)

	span.SetAttributes(attribute.Int("http.status_code", outcome.Status))
	h.observe(ctx, "paddle", alertName, outcome.Status, start)
	h.respond(w, r, outcome.Status)

	// The sender has its answer; now tell the operators
	if outcome.Alarm != nil {
		span.SetStatus(codes.Error, outcome.Alarm.Error())
		h.raiseAlarm(ctx, "paddle", alertName, outcome.Alarm)
	}
}

// directoryNotification is the envelope Keygen posts to webhook endpoints.
// Only the id is trusted; everything else is re-fetched.
type directoryNotification struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// KeygenWebhook handles POST /keygen-webhooks
func (h *WebhookHandler) KeygenWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	tracer := otel.Tracer("webhook-handler")
	ctx, span := tracer.Start(ctx, "webhook_handler.keygen_webhook")
	defer span.End()

	var notification directoryNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil || notification.Data.ID == "" {
		span.SetStatus(codes.Error, "unparseable payload")
		h.logger.WarnContext(ctx, "unparseable directory webhook")
		h.observe(ctx, "keygen", "", http.StatusBadRequest, start)
		render.Render(w, r, apierrors.ErrInvalidRequest)
		return
	}

	span.SetAttributes(
		attribute.String("webhook.source", "keygen"),
		attribute.String("webhook.event_id", notification.Data.ID),
	)

	outcome := h.reconciler.HandleDirectoryEvent(ctx, notification.Data.ID)

	span.SetAttributes(attribute.Int("http.status_code", outcome.Status))
	h.observe(ctx, "keygen", "", outcome.Status, start)
	h.respond(w, r, outcome.Status)

	if outcome.Alarm != nil {
		span.SetStatus(codes.Error, outcome.Alarm.Error())
		h.raiseAlarm(ctx, "keygen", notification.Data.ID, outcome.Alarm)
	}
}

func (h *WebhookHandler) respond(w http.ResponseWriter, r *http.Request, status int) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{
		"status": http.StatusText(status),
	})
}

func (h *WebhookHandler) observe(ctx context.Context, source, event string, status int, start time.Time) {
	if h.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("event", event),
		attribute.String("status", strconv.Itoa(status)),
	)
	h.metrics.WebhooksTotal.Add(ctx, 1, attrs)
	h.metrics.WebhookDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// raiseAlarm surfaces a partner failure to operators. This fires after the
// HTTP response is written so the webhook sender is never kept waiting on
// operator plumbing.
func (h *WebhookHandler) raiseAlarm(ctx context.Context, source, event string, alarm error) {
	h.logger.ErrorContext(ctx, "partner systems may have diverged",
		slog.String("source", source),
		slog.String("event", event),
		slog.String("error", alarm.Error()),
	)
	if h.metrics != nil {
		h.metrics.AlarmsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source),
		))
	}
}
