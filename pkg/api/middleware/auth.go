package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long a local session token stays valid
const DefaultTokenTTL = 7 * 24 * time.Hour

// SessionClaims are carried by the local API token. Server is the address of
// the Unraid server the session was opened against.
type SessionClaims struct {
	SessionID uuid.UUID `json:"sid"`
	Server    string    `json:"srv,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken issues a token for a new local session
func GenerateToken(secret, server string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := SessionClaims{
		SessionID: uuid.New(),
		Server:    server,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "unraid-console",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateJWT parses and verifies a token
func ValidateJWT(tokenString, secret string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// JWTAuth rejects requests without a valid bearer token
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization header",
			})
		}

		claims, err := ValidateJWT(tokenString, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("sessionID", claims.SessionID)
		c.Locals("server", claims.Server)
		return c.Next()
	}
}

// GetSessionID returns the session id set by JWTAuth
func GetSessionID(c *fiber.Ctx) uuid.UUID {
	id, ok := c.Locals("sessionID").(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// GetServer returns the server address the token was issued for
func GetServer(c *fiber.Ctx) string {
	s, _ := c.Locals("server").(string)
	return s
}

// WebSocketUpgrade lets only upgrade requests through to the ws handler
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
