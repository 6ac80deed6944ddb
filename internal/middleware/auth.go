// Package middleware provides authentication, logging and tracing middleware for the application.
package middleware

import (
	"errors"
	"strconv"
	"strings"

	"marketplace/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// Token parse failures.
var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrInvalidSubject = errors.New("invalid token subject")
)

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// ParseUserID validates an HMAC-signed token and returns the user id carried in its "sub" claim.
func ParseUserID(secret, tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	// Subject claim per RFC 7519
	subStr, ok := claims["sub"].(string)
	if !ok {
		return 0, ErrInvalidSubject
	}

	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil || userID == 0 {
		return 0, ErrInvalidSubject
	}
	return uint(userID), nil
}

// TokenDecoder returns a decoder bound to the configured JWT secret.
func TokenDecoder(secret string) func(string) (uint, error) {
	return func(token string) (uint, error) {
		return ParseUserID(secret, token)
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

// AuthRequired is a middleware that enforces authentication for protected routes.
func AuthRequired(c *fiber.Ctx) error {
	tokenString, err := bearerToken(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	userID, err := ParseUserID(cfg.JWTSecret, tokenString)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	c.Locals("userID", userID)
	return c.Next()
}

// OptionalAuth stores the user id when a valid token is present and lets anonymous requests through.
func OptionalAuth(c *fiber.Ctx) error {
	tokenString, err := bearerToken(c)
	if err != nil {
		return c.Next()
	}
	if userID, err := ParseUserID(cfg.JWTSecret, tokenString); err == nil {
		c.Locals("userID", userID)
	}
	return c.Next()
}

// WebSocketAuthRequired rejects websocket upgrades that carry no token.
// The token itself is decoded when the session starts.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	if c.Query("token") != "" {
		return c.Next()
	}
	tokenString, err := bearerToken(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token required"})
	}
	c.Locals("token", tokenString)
	return c.Next()
}

// UserID returns the authenticated user id stored by AuthRequired, or zero.
func UserID(c *fiber.Ctx) uint {
	if uid, ok := c.Locals("userID").(uint); ok {
		return uid
	}
	return 0
}
