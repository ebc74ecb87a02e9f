package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/middleware/ratelimit"
	"github.com/farmora/backend/internal/middleware/validation"
	"github.com/farmora/backend/internal/query"
	"github.com/farmora/backend/pkg/logger"
)

// Limiter spends one token from key's bucket, reporting whether one was left.
type Limiter interface {
	Allow(key string) bool
}

type WebSocketHandler struct {
	asker    Asker
	limiter  Limiter
	maxBytes int
}

// NewWebSocketHandler streams answers over a socket. limiter may be nil; when
// set, every ask draws from the same bucket as the HTTP routes.
func NewWebSocketHandler(asker Asker, limiter Limiter, maxQuestionBytes int) *WebSocketHandler {
	return &WebSocketHandler{
		asker:    asker,
		limiter:  limiter,
		maxBytes: maxQuestionBytes,
	}
}

type wsMessage struct {
	Type string `json:"type"`
	validation.AskBody
}

// Upgrade admits only WebSocket handshakes and records who is connecting.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("user_id", c.Get("X-User-ID"))
	c.Locals("rate_key", ratelimit.Key(c))
	return c.Next()
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	headerUserID, _ := c.Locals("user_id").(string)
	rateKey, _ := c.Locals("rate_key").(string)

	// ctx ends when the client goes away, abandoning any question in flight.
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan wsMessage)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		defer close(msgs)
		defer cancel()
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("Failed to read WebSocket message", zap.Error(err))
				}
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer func() {
		cancel()
		c.Close()
		<-readerDone
		logger.Info("WebSocket connection closed")
	}()

	for msg := range msgs {
		if msg.Type != "ask" {
			continue
		}

		if h.limiter != nil && !h.limiter.Allow(rateKey) {
			if err := h.sendError(c, &domain.PipelineError{Kind: kindRateLimited, Stage: "request", Message: "Rate limit exceeded. Please try again later."}); err != nil {
				return
			}
			continue
		}

		if problem := validation.Check(&msg.AskBody, h.maxBytes); problem != "" {
			if err := h.sendError(c, domain.NewInputError("request", problem)); err != nil {
				return
			}
			continue
		}

		if err := h.streamAnswer(ctx, c, toRequest(msg.AskBody, headerUserID)); err != nil {
			logger.Warn("Failed to stream answer", zap.Error(err))
			return
		}
	}
}

// streamAnswer runs the pipeline, then sends the finished answer word by word
// followed by a completion frame. Only write failures are returned.
func (h *WebSocketHandler) streamAnswer(ctx context.Context, c *websocket.Conn, req query.Request) error {
	if err := h.send(c, map[string]any{"type": "status", "content": "Processing question..."}); err != nil {
		return err
	}

	answer, err := h.asker.AskQuery(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var perr *domain.PipelineError
		if !errors.As(err, &perr) {
			perr = &domain.PipelineError{Kind: "INTERNAL", Message: "Failed to process question"}
		}
		return h.sendError(c, perr)
	}

	words := splitIntoWords(answer.Text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.send(c, map[string]any{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	return h.send(c, map[string]any{
		"type":          "complete",
		"query_id":      answer.QueryID,
		"sources":       answer.Sources,
		"confidence":    answer.Confidence,
		"language_used": answer.LanguageUsed,
		"degraded":      answer.Degraded,
		"warnings":      answer.Warnings,
		"intent":        answer.Intent.Label,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]any) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, perr *domain.PipelineError) error {
	return c.WriteJSON(map[string]any{
		"type":   "error",
		"status": StatusFor(perr.Kind),
		"error":  perr,
	})
}

// splitIntoWords splits on spaces and keeps each newline as its own word.
func splitIntoWords(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch r {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}
