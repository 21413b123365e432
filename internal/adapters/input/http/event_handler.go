package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/internal/ports/input"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultProcessTimeout = 3 * time.Minute

// EventHandler struct - Primary/Driving adapter for platform webhook deliveries
type EventHandler struct {
	service        input.EventService
	async          bool
	processTimeout time.Duration

	inflight sync.WaitGroup
}

// NewEventHandler func - Creates new event callback handler. With async set,
// messages are processed after the delivery is acknowledged.
func NewEventHandler(service input.EventService, async bool, processTimeout time.Duration) *EventHandler {
	if processTimeout <= 0 {
		processTimeout = defaultProcessTimeout
	}
	return &EventHandler{
		service:        service,
		async:          async,
		processTimeout: processTimeout,
	}
}

// HandleEvent func - Handles incoming platform webhook requests
// @Summary Event callback
// @Description Receives signed bot events. Answers the URL verification challenge, acknowledges everything else.
// @Tags Events
// @Accept application/json
// @Produce json
// @Param X-Kso-AppId header string false "application id"
// @Param X-Kso-Signature header string false "WPS-3 signature"
// @Param X-Kso-Timestamp header string false "milliseconds since epoch"
// @Param X-Kso-Nonce header string false "nonce"
// @Success 200 {object} EventAck
// @Failure 401 {object} EventAck
// @Router /event/callback [post]
func (h *EventHandler) HandleEvent(c *fiber.Ctx) error {
	// fiber reuses the request buffer once the handler returns
	body := append([]byte(nil), c.Body()...)

	requestID := c.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	event := domain.InboundEvent{
		Body: body,
		Headers: domain.InboundHeaders{
			AppID:     c.Get(HeaderAppID),
			Signature: c.Get(HeaderSignature),
			Timestamp: c.Get(HeaderTimestamp),
			Nonce:     c.Get(HeaderNonce),
		},
		ArrivedAt: time.Now(),
		RequestID: requestID,
	}

	ingestion, err := h.service.Ingest(c.UserContext(), event)
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			return c.Status(fiber.StatusUnauthorized).JSON(AckUnauthorized)
		}
		logrus.WithField("request_id", requestID).Errorf("Failed to ingest event: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(AckInternalError)
	}

	switch ingestion.Kind {
	case domain.IngestionHandshake:
		return c.Status(fiber.StatusOK).JSON(ChallengeResponse{Challenge: ingestion.Challenge})
	case domain.IngestionMessage:
		if h.async {
			h.processAsync(requestID, *ingestion.Message)
		} else {
			h.service.Process(c.UserContext(), *ingestion.Message)
		}
	}

	return c.Status(fiber.StatusOK).JSON(AckSuccess)
}

// processAsync runs a message on a context detached from the HTTP request
func (h *EventHandler) processAsync(requestID string, msg domain.NormalizedMessage) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("request_id", requestID).Errorf("Recovered from panic while processing message %s: %v", msg.ID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
		defer cancel()
		h.service.Process(ctx, msg)
	}()
}

// Wait blocks until every in-flight message finishes or ctx is done
func (h *EventHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
