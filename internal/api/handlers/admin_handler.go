package handlers

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/storage/models"
	"github.com/farmora/backend/pkg/logger"
)

// LocalPurger drops in-process cache entries by key prefix.
type LocalPurger interface {
	Purge(prefix string) int
}

// SharedInvalidator drops entries from the shared second-level store.
type SharedInvalidator interface {
	Invalidate(ctx context.Context, prefix string) (int, error)
}

type PriorContextInvalidator interface {
	InvalidatePriorContext(prefix string) int
}

type TraceLister interface {
	RecentTraces(ctx context.Context, limit int) ([]models.TraceRecord, error)
}

type AdminHandler struct {
	tools  LocalPurger
	shared SharedInvalidator
	prior  PriorContextInvalidator
	traces TraceLister
}

// NewAdminHandler wires the cache and trace endpoints. shared and traces may be nil.
func NewAdminHandler(tools LocalPurger, shared SharedInvalidator, prior PriorContextInvalidator, traces TraceLister) *AdminHandler {
	return &AdminHandler{
		tools:  tools,
		shared: shared,
		prior:  prior,
		traces: traces,
	}
}

// AdminAuth guards the operator routes with a static bearer token. An empty
// token rejects every request.
func AdminAuth(token string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if token == "" || subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
				return false, keyauth.ErrMissingOrMalformedAPIKey
			}
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			logger.Warn("Rejected admin request", zap.String("path", c.Path()), zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": fiber.Map{"kind": "UNAUTHORIZED", "message": "Admin token required"},
			})
		},
	})
}

type invalidateRequest struct {
	Scope  string `json:"scope"`
	Prefix string `json:"prefix"`
}

// HandleInvalidate clears cached tool results ("tools"), remembered contexts
// ("prior") or both ("all", the default). prefix narrows the purge to one
// tool kind or intent label, for example "weather".
func (h *AdminHandler) HandleInvalidate(c *fiber.Ctx) error {
	var req invalidateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fiber.Map{"kind": "INPUT_ERROR", "message": "Invalid request body"},
			})
		}
	}

	scope := strings.ToLower(strings.TrimSpace(req.Scope))
	if scope == "" {
		scope = "all"
	}
	if scope != "all" && scope != "tools" && scope != "prior" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fiber.Map{"kind": "INPUT_ERROR", "message": "Scope must be tools, prior or all"},
		})
	}
	prefix := strings.ToLower(strings.TrimSpace(req.Prefix))

	removed := fiber.Map{}
	if scope != "prior" {
		removed["tools_local"] = h.tools.Purge(prefix)
		if h.shared != nil {
			n, err := h.shared.Invalidate(c.UserContext(), prefix)
			if err != nil {
				logger.Error("Failed to invalidate shared tool cache", zap.Error(err))
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error":   fiber.Map{"kind": "CACHE_ERROR", "message": "Failed to invalidate shared cache"},
					"removed": removed,
				})
			}
			removed["tools_shared"] = n
		}
	}
	if scope != "tools" {
		removed["prior"] = h.prior.InvalidatePriorContext(prefix)
	}

	logger.Info("Cache invalidated", zap.String("scope", scope), zap.String("prefix", prefix))
	return c.JSON(fiber.Map{"scope": scope, "removed": removed})
}

func (h *AdminHandler) HandleRecentTraces(c *fiber.Ctx) error {
	if h.traces == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fiber.Map{"kind": "NOT_FOUND", "message": "Trace export is disabled"},
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	traces, err := h.traces.RecentTraces(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to load traces", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"kind": "INTERNAL", "message": "Failed to load traces"},
		})
	}

	return c.JSON(fiber.Map{"traces": traces, "count": len(traces)})
}
