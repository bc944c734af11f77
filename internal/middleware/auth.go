// Package middleware provides HTTP middleware components for the application.
// Tokens are issued by the account service; this package only validates them
// and checks that the user they name may still use the wallet.
package middleware

import (
	"errors"
	"strings"

	"bundlepay/internal/models"
	"bundlepay/internal/repositories"
	"bundlepay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthMiddleware handles JWT token validation and user authentication.
type AuthMiddleware struct {
	secret []byte
	users  repositories.UserRepository
}

func NewAuthMiddleware(secret string, users repositories.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), users: users}
}

// Handler validates the bearer token and stores its claims in the request
// context under "claims" and "userID".
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return response.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &models.UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		zap.L().Debug("token validation failed", zap.Error(err))
		return response.Error(c, fiber.StatusUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(*models.UserClaims)
	if !ok || claims.UserID == 0 {
		return response.Error(c, fiber.StatusUnauthorized, "invalid claims")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return response.Error(c, fiber.StatusUnauthorized, "invalid token")
		}
		return response.DomainError(c, err)
	}
	if user.IsDisabled() {
		return response.Forbidden(c, "account disabled")
	}
	if len(claims.Permissions) == 0 {
		claims.Permissions = models.GetDefaultPermissions(claims.Role)
	}

	c.Locals("claims", claims)
	c.Locals("userID", claims.UserID)
	return c.Next()
}

// AdminAuthMiddleware verifies that the request has valid admin claims.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.UserClaims)
	if !ok {
		return response.Unauthorized(c)
	}
	if claims.Role != "admin" {
		zap.L().Warn("admin access denied",
			zap.Uint("user_id", claims.UserID),
			zap.String("role", claims.Role),
			zap.String("path", c.Path()))
		return response.Forbidden(c, "Insufficient permissions")
	}
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*models.UserClaims)
		if !ok {
			return response.Unauthorized(c)
		}
		if claims.Role == "admin" || claims.HasPermission(permission) {
			return c.Next()
		}
		return response.Forbidden(c, "Insufficient permissions")
	}
}

// Claims returns the claims stored by AuthMiddleware.
func Claims(c *fiber.Ctx) (*models.UserClaims, bool) {
	claims, ok := c.Locals("claims").(*models.UserClaims)
	return claims, ok && claims != nil
}
