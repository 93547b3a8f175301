package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"github.com/kursadbilgin/sms-dispatch/internal/repository"
	"github.com/kursadbilgin/sms-dispatch/internal/wire"
)

const (
	defaultFailureLimit = 500
	maxFailureLimit     = 5000
)

type DispatchService interface {
	SubmitBatch(ctx context.Context, rows []domain.Row, selectedIndices []int) (*domain.DispatchResult, error)
	ManualSend(ctx context.Context, numbers string, message string) (*domain.DispatchResult, error)
	ListFailures(ctx context.Context, params repository.FailedMessageListParams) ([]domain.FailedMessage, error)
	ResendFailures(ctx context.Context, ids []int64) (*domain.DispatchResult, error)
	GetBatch(ctx context.Context, id string) (*domain.BatchRecord, []domain.DeliveryAttempt, error)
}

type DispatchHandler struct {
	service DispatchService
}

func NewDispatchHandler(service DispatchService) (*DispatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &DispatchHandler{service: service}, nil
}

func RegisterDispatchRoutes(router fiber.Router, service DispatchService) error {
	h, err := NewDispatchHandler(service)
	if err != nil {
		return err
	}

	router.Post("/send-sms", h.SubmitBatch)
	router.Post("/send-manual", h.ManualSend)
	router.Get("/failed-sms", h.ListFailures)
	router.Post("/failed-sms/resend", h.ResendFailures)
	router.Get("/batches/:id", h.GetBatch)

	return nil
}

func (h *DispatchHandler) SubmitBatch(c *fiber.Ctx) error {
	var req wire.SubmitBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.SubmitBatch(requestContext(c), req.Rows, req.SelectedIndices)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(wire.FromDispatchResult(*result))
}

func (h *DispatchHandler) ManualSend(c *fiber.Ctx) error {
	var req wire.ManualSendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.ManualSend(requestContext(c), req.Numbers, req.Message)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(wire.FromDispatchResult(*result))
}

func (h *DispatchHandler) ListFailures(c *fiber.Ctx) error {
	params, err := parseFailureListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, err := h.service.ListFailures(requestContext(c), params)
	if err != nil {
		return toHTTPError(err)
	}

	entries := make([]wire.FailedMessageEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, wire.FromFailedMessage(record))
	}
	return c.Status(fiber.StatusOK).JSON(entries)
}

func (h *DispatchHandler) ResendFailures(c *fiber.Ctx) error {
	var req wire.ResendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.ResendFailures(requestContext(c), req.IDs)
	if err != nil {
		var resolvedErr *domain.AlreadyResolvedError
		if errors.As(err, &resolvedErr) {
			return c.Status(fiber.StatusConflict).JSON(wire.ErrorResponse{
				Error: resolvedErr.Error(),
				IDs:   resolvedErr.IDs,
			})
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(wire.FromDispatchResult(*result))
}

func (h *DispatchHandler) GetBatch(c *fiber.Ctx) error {
	batch, attempts, err := h.service.GetBatch(requestContext(c), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(wire.FromBatch(*batch, attempts))
}

func parseFailureListParams(c *fiber.Ctx) (repository.FailedMessageListParams, error) {
	params := repository.FailedMessageListParams{
		Limit: c.QueryInt("limit", defaultFailureLimit),
	}
	if params.Limit < 1 || params.Limit > maxFailureLimit {
		return repository.FailedMessageListParams{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxFailureLimit)
	}

	if raw := strings.TrimSpace(c.Query("resolved")); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			return repository.FailedMessageListParams{}, fmt.Errorf("%w: resolved must be a boolean", domain.ErrValidation)
		}
		params.Resolved = &resolved
	}

	return params, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
