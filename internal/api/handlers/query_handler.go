package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/middleware/validation"
	"github.com/farmora/backend/internal/query"
	"github.com/farmora/backend/pkg/logger"
)

// Asker runs one question through the pipeline.
type Asker interface {
	AskQuery(ctx context.Context, req query.Request) (*domain.Answer, error)
}

type QueryHandler struct {
	asker    Asker
	maxBytes int
}

func NewQueryHandler(asker Asker, maxQuestionBytes int) *QueryHandler {
	return &QueryHandler{
		asker:    asker,
		maxBytes: maxQuestionBytes,
	}
}

type answerResponse struct {
	*domain.Answer
	LatencyMS int64 `json:"latency_ms"`
}

func (h *QueryHandler) HandleAsk(c *fiber.Ctx) error {
	body, ok := validation.Body(c)
	if !ok {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			logger.Debug("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(errorBody(domain.NewInputError("request", "Invalid request body")))
		}
		if msg := validation.Check(&body, h.maxBytes); msg != "" {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody(domain.NewInputError("request", msg)))
		}
	}

	req := toRequest(body, c.Get("X-User-ID"))

	start := time.Now()
	answer, err := h.asker.AskQuery(c.UserContext(), req)
	if err != nil {
		status, payload := errorResponse(err)
		return c.Status(status).JSON(payload)
	}

	return c.JSON(answerResponse{Answer: answer, LatencyMS: time.Since(start).Milliseconds()})
}

// toRequest builds the pipeline request. The X-User-ID header wins over the
// body's user_id.
func toRequest(body validation.AskBody, headerUserID string) query.Request {
	req := query.Request{
		Question:     body.Question,
		UserLanguage: body.Language,
		UserID:       body.UserID,
	}
	if headerUserID != "" {
		req.UserID = headerUserID
	}
	if loc := body.Location; loc != nil {
		l := domain.Location{District: loc.District, State: loc.State}
		if loc.Lat != nil && loc.Lon != nil {
			l.Lat, l.Lon, l.HasCoords = *loc.Lat, *loc.Lon, true
		}
		if !l.IsZero() {
			req.Location = &l
		}
	}
	return req
}

// kindRateLimited matches the rate limiter's HTTP error body.
const kindRateLimited domain.ErrorKind = "RATE_LIMITED"

// StatusFor maps a pipeline error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case kindRateLimited:
		return fiber.StatusTooManyRequests
	case domain.KindInput:
		return fiber.StatusBadRequest
	case domain.KindSynthesisQuality, domain.KindTranslationDegraded:
		return fiber.StatusBadGateway
	case domain.KindAllToolsFailed, domain.KindToolUnavailable:
		return fiber.StatusServiceUnavailable
	case domain.KindDeadlineExceeded:
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

func errorResponse(err error) (int, fiber.Map) {
	var perr *domain.PipelineError
	if errors.As(err, &perr) {
		return StatusFor(perr.Kind), errorBody(perr)
	}
	logger.Error("Unexpected error from pipeline", zap.Error(err))
	return fiber.StatusInternalServerError, fiber.Map{
		"error": fiber.Map{"kind": "INTERNAL", "message": "Failed to process question"},
	}
}

func errorBody(perr *domain.PipelineError) fiber.Map {
	return fiber.Map{"error": perr}
}
