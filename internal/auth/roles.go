package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// RequireCustomer ensures a customer principal is present.
func RequireCustomer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("customer session required")
		}
		return c.Next()
	}
}

// CustomerID returns the authenticated customer or an AuthError.
func CustomerID(c *fiber.Ctx) (string, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok || principal.CustomerID == "" {
		return "", apperrors.NewUnauthorized("customer session required")
	}
	return principal.CustomerID, nil
}
