package validation

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const bodyKey = "ask_body"

var (
	xssPattern      = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
	languagePattern = regexp.MustCompile(`^(?i:auto|[a-z]{2,3}(?:[-_][a-z]{2,4})?)$`)
)

// LocationBody is the optional caller location. Coordinates must be sent
// together.
type LocationBody struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	District string   `json:"district"`
	State    string   `json:"state"`
}

type AskBody struct {
	Question string        `json:"question"`
	Language string        `json:"language"`
	Location *LocationBody `json:"location"`
	UserID   string        `json:"user_id"`
}

type Config struct {
	// MaxQuestionBytes rejects bodies far beyond what the classifier reads.
	// The classifier truncates anything between its own limit and this one.
	MaxQuestionBytes    int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionBytes == 0 {
		cfg.MaxQuestionBytes = 8 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return reject(c, fiber.StatusUnsupportedMediaType, "Unsupported content type")
				}
			}
		}

		if c.Method() != fiber.MethodPost || !strings.HasSuffix(c.Path(), "/api/v1/ask") {
			return c.Next()
		}

		var body AskBody
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
		}

		if msg := Check(&body, cfg.MaxQuestionBytes); msg != "" {
			return reject(c, fiber.StatusBadRequest, msg)
		}

		if containsXSS(body.Question) {
			cfg.Logger.Warn("Potential XSS attempt",
				zap.String("ip", c.IP()),
				zap.Int("length", len(body.Question)),
			)
			return reject(c, fiber.StatusBadRequest, "Invalid question content")
		}

		c.Locals(bodyKey, body)
		return c.Next()
	}
}

// Check validates and sanitizes body in place. It returns a message for the
// caller, or "" when the body is acceptable.
func Check(body *AskBody, maxBytes int) string {
	if !utf8.ValidString(body.Question) {
		return "Question must be valid UTF-8"
	}
	body.Question = sanitizeString(body.Question)
	if body.Question == "" {
		return "Question is required"
	}
	if maxBytes > 0 && len(body.Question) > maxBytes {
		return "Question exceeds maximum length"
	}

	body.Language = strings.TrimSpace(body.Language)
	if body.Language != "" && !languagePattern.MatchString(body.Language) {
		return "Language must be an ISO 639 code"
	}

	if loc := body.Location; loc != nil {
		if (loc.Lat == nil) != (loc.Lon == nil) {
			return "Location needs both lat and lon"
		}
		if loc.Lat != nil && (*loc.Lat < -90 || *loc.Lat > 90 || *loc.Lon < -180 || *loc.Lon > 180) {
			return "Location coordinates out of range"
		}
		loc.District = sanitizeString(loc.District)
		loc.State = sanitizeString(loc.State)
	}

	body.UserID = strings.TrimSpace(body.UserID)
	return ""
}

// Body returns the request body the middleware validated, if any.
func Body(c *fiber.Ctx) (AskBody, bool) {
	b, ok := c.Locals(bodyKey).(AskBody)
	return b, ok
}

func reject(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"kind": "INPUT_ERROR", "message": msg},
	})
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

// sanitizeString trims and drops control characters other than newlines and tabs.
func sanitizeString(input string) string {
	input = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(input)
}
