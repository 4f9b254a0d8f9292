package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"forum-bot-service/internal/metrics"
	"forum-bot-service/internal/models"

	"github.com/gofiber/fiber/v3"
)

// EventHeader carries the notification type of a webhook delivery
const EventHeader = "Webhook-Event"

// NotificationRouter handles one parsed notification
type NotificationRouter interface {
	Handle(ctx context.Context, n models.Notification) (bool, error)
}

type WebhookHandler struct {
	router  NotificationRouter
	timeout time.Duration
	logger  *log.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(router NotificationRouter, timeout time.Duration, logger *log.Logger) *WebhookHandler {
	return &WebhookHandler{
		router:  router,
		timeout: timeout,
		logger:  logger,
	}
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/webhook", h.Receive)
}

// Receive always acknowledges the delivery; failures are logged only
func (h *WebhookHandler) Receive(c fiber.Ctx) error {
	start := time.Now()
	eventType := c.Get(EventHeader)
	// fiber reuses the request buffer once the handler returns
	body := append([]byte(nil), c.Body()...)

	kind, outcome := h.process(eventType, body)

	metrics.WebhookEvents.WithLabelValues(kind, outcome).Inc()
	metrics.WebhookDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	return c.JSON(fiber.Map{
		"status": "success",
	})
}

// process returns the notification kind ("unknown" when unparsed) and the outcome label
func (h *WebhookHandler) process(eventType string, body []byte) (string, string) {
	n, err := models.ParseNotification(eventType, body)
	if errors.Is(err, models.ErrUnknownEvent) {
		h.logger.Printf("Ignoring webhook: %v", err)
		return "unknown", "ignored"
	}
	if err != nil {
		h.logger.Printf("Error processing notification: %v", err)
		return "unknown", "error"
	}
	kind := string(n.Kind())

	// The sender may hang up; the reply still has to be produced
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	handled, err := h.router.Handle(ctx, n)
	if err != nil {
		h.logger.Printf("Error processing %s notification for topic %s: %v", kind, n.Envelope().TopicID, err)
		return kind, "error"
	}
	if !handled {
		return kind, "ignored"
	}
	return kind, "handled"
}
