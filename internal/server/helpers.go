package server

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"marketplace/internal/middleware"
	"marketplace/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// respond writes err with the status its AppError code maps to.
func respond(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	if status == fiber.StatusInternalServerError {
		var appErr *models.AppError
		if !errors.As(err, &appErr) {
			err = models.NewInternalError(err)
		}
	}
	return models.RespondWithError(c, status, err)
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parseContentType reads the :type parameter, which must name a content collection.
func parseContentType(c *fiber.Ctx) (models.PostType, error) {
	p, err := models.ParsePostType(c.Params("type"))
	if err == nil && !p.IsContent() {
		err = models.NewValidationError(fmt.Sprintf("%s is not a content type", p))
	}
	if err != nil {
		_ = respond(c, err)
		return "", errResponseWritten
	}
	return p, nil
}

// parseTarget reads the :type and :id parameters of a content route.
func parseTarget(c *fiber.Ctx) (models.PostType, uint, error) {
	p, err := parseContentType(c)
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return "", 0, err
	}
	return p, id, nil
}

// parseBody decodes the JSON body into v, writing a 400 on failure.
func parseBody(c *fiber.Ctx, v interface{}) error {
	if err := c.BodyParser(v); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// visitorKey identifies a viewer for view dedup: the user when authenticated, the IP otherwise.
func visitorKey(c *fiber.Ctx) string {
	if uid := middleware.UserID(c); uid != 0 {
		return fmt.Sprintf("user:%d", uid)
	}
	return "ip:" + c.IP()
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "commentId" -> "comment ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

func websocketUpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
