package handler

import (
	"context"
	"fmt"
	"mime"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/service"
	"github.com/kursadbilgin/sms-dispatch/internal/wire"
)

type ExportService interface {
	Workbook(partition service.ExportPartition, outcomes []domain.RecipientOutcome) (*service.ExportArtifact, error)
}

type PreviewFormatter interface {
	Format(examType service.ExamType, rows []domain.Row) ([]domain.Row, error)
}

type BalanceSource interface {
	Balance(ctx context.Context) (string, error)
}

// ArtifactHandler serves the endpoints that do not touch the failure queue.
type ArtifactHandler struct {
	exports  ExportService
	previews PreviewFormatter
	balance  BalanceSource
}

func NewArtifactHandler(exports ExportService, previews PreviewFormatter, balance BalanceSource) (*ArtifactHandler, error) {
	if exports == nil {
		return nil, fmt.Errorf("export service is required")
	}
	if previews == nil {
		return nil, fmt.Errorf("preview formatter is required")
	}
	if balance == nil {
		return nil, fmt.Errorf("balance source is required")
	}
	return &ArtifactHandler{exports: exports, previews: previews, balance: balance}, nil
}

func RegisterArtifactRoutes(router fiber.Router, exports ExportService, previews PreviewFormatter, balance BalanceSource) error {
	h, err := NewArtifactHandler(exports, previews, balance)
	if err != nil {
		return err
	}

	router.Post("/export", h.Export)
	router.Post("/templates/preview", h.Preview)
	router.Get("/balance", h.Balance)

	return nil
}

func (h *ArtifactHandler) Export(c *fiber.Ctx) error {
	var req wire.ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var (
		partition service.ExportPartition
		entries   []wire.RecipientEntry
	)
	switch {
	case len(req.Successful) > 0 && len(req.Failed) > 0:
		return fiber.NewError(fiber.StatusBadRequest, "export exactly one partition per request")
	case len(req.Successful) > 0:
		partition, entries = service.PartitionSuccessful, req.Successful
	case len(req.Failed) > 0:
		partition, entries = service.PartitionFailed, req.Failed
	default:
		return toHTTPError(domain.ErrNothingToExport)
	}

	outcomes := make([]domain.RecipientOutcome, 0, len(entries))
	for _, entry := range entries {
		outcome, err := entry.Outcome()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		outcomes = append(outcomes, outcome)
	}

	artifact, err := h.exports.Workbook(partition, outcomes)
	if err != nil {
		return toHTTPError(err)
	}

	c.Set(fiber.HeaderContentType, artifact.ContentType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{
		"filename": artifact.Filename,
	}))
	return c.Status(fiber.StatusOK).Send(artifact.Data)
}

func (h *ArtifactHandler) Preview(c *fiber.Ctx) error {
	var req wire.PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	examType, err := service.ParseExamType(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	rows, err := h.previews.Format(examType, req.Data)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(wire.PreviewResponse{Preview: rows})
}

func (h *ArtifactHandler) Balance(c *fiber.Ctx) error {
	balance, err := h.balance.Balance(requestContext(c))
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("failed to fetch balance: %v", err))
	}
	return c.Status(fiber.StatusOK).JSON(wire.BalanceResponse{Balance: balance})
}
