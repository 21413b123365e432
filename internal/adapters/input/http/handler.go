package http

import (
	"context"
	"errors"
	"time"

	"wps-bot-bridge/internal/application"
	"wps-bot-bridge/internal/ports/input"
	"wps-bot-bridge/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ServiceName is reported by the index route
const ServiceName = "WPS Bot"

const healthCheckTimeout = 2 * time.Second

// HealthCheckFunc reports whether one backing dependency is reachable
type HealthCheckFunc func(ctx context.Context) error

// HTTPHandler struct - Primary/Driving adapter for HTTP
type HTTPHandler struct {
	messageLogs input.MessageLogService
	checks      map[string]HealthCheckFunc
	validator   validator.Validator
	version     string
}

// New func - Creates new HTTP handler. messageLogs may be nil when no
// message log is configured.
func New(messageLogs input.MessageLogService, version string, checks map[string]HealthCheckFunc) *HTTPHandler {
	if checks == nil {
		checks = map[string]HealthCheckFunc{}
	}
	return &HTTPHandler{
		messageLogs: messageLogs,
		checks:      checks,
		validator:   validator.New(),
		version:     version,
	}
}

// Index godoc
// @Summary Service info
// @Description Service name and version
// @Tags System
// @Produce json
// @Success 200 {object} IndexResponse
// @Router / [get]
func (hdl *HTTPHandler) Index(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(IndexResponse{
		Status:  "ok",
		Service: ServiceName,
		Version: hdl.version,
	})
}

// HealthCheck godoc
// @Summary Health check
// @Description Reports healthy when every configured backing store answers
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (hdl *HTTPHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, check := range hdl.checks {
		if err := check(ctx); err != nil {
			logrus.Errorf("Health check %s failed: %v", name, err)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "unhealthy", Checks: failed})
	}
	return c.Status(fiber.StatusOK).JSON(HealthResponse{Status: "healthy"})
}

// GetConversationMessages godoc
// @Summary List logged exchanges
// @Description Latest processed messages of one conversation, newest first
// @Tags Messages
// @Produce json
// @Param id path string true "conversation id"
// @Param limit query int false "limit"
// @Success 200 {object} ResponseBody
// @Failure 400 {object} ResponseBody
// @Failure 404 {object} ResponseBody
// @Router /v1/api/conversations/{id}/messages [get]
func (hdl *HTTPHandler) GetConversationMessages(c *fiber.Ctx) error {
	if hdl.messageLogs == nil {
		return c.Status(fiber.StatusNotFound).JSON(ResponseBody{Status: NotFound})
	}

	condition := QueryMessageLogRequest{}
	if err := c.QueryParser(&condition); err != nil {
		logrus.Errorln(err)
		return c.Status(fiber.StatusBadRequest).JSON(ResponseBody{Status: BadRequest})
	}
	if err := hdl.validator.ValidateStruct(condition); err != nil {
		msg := ResponseBody{
			Status: BadRequest,
		}
		msg.Status.Message = []string{
			err.Error(),
		}
		return c.Status(fiber.StatusBadRequest).JSON(msg)
	}

	limit := 0
	if condition.Limit != nil {
		limit = *condition.Limit
	}

	entries, err := hdl.messageLogs.ListMessages(c.Params("id"), limit)
	if err != nil {
		if errors.Is(err, application.ErrConversationRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(ResponseBody{Status: BadRequest})
		}
		logrus.Errorln(err)
		return c.Status(fiber.StatusInternalServerError).JSON(ResponseBody{Status: InternalServerError})
	}

	data := make([]MessageLogResponse, 0, len(entries))
	for _, entry := range entries {
		data = append(data, toMessageLogResponse(entry))
	}
	total := int64(len(data))

	return c.Status(fiber.StatusOK).JSON(ResponseBody{
		Status:    Success,
		Data:      data,
		PerPage:   condition.Limit,
		TotalItem: &total,
	})
}
