package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/support-client/pkg/util"
)

const principalKey = "auth_principal"

// HeaderAPIKey carries the host application's API key.
const HeaderAPIKey = "X-API-Key"

// Principal represents the authenticated customer.
type Principal struct {
	CustomerID string
	Channel    string
}

// CustomerLookup reports whether a customer still exists.
type CustomerLookup interface {
	CustomerExists(ctx context.Context, customerID string) bool
}

// AuthMiddleware validates API keys and bearer tokens.
type AuthMiddleware struct {
	keys      *KeyVerifier
	tokens    *TokenManager
	customers CustomerLookup
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(keys *KeyVerifier, tokens *TokenManager, customers CustomerLookup) *AuthMiddleware {
	return &AuthMiddleware{keys: keys, tokens: tokens, customers: customers}
}

// APIKey enforces a valid X-API-Key header.
func (m *AuthMiddleware) APIKey(c *fiber.Ctx) error {
	if !m.keys.Verify(c.Get(HeaderAPIKey)) {
		return apperrors.NewUnauthorized("invalid api key")
	}
	return c.Next()
}

// Handle enforces a bearer token and loads the principal.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if m.customers != nil && !m.customers.CustomerExists(c.UserContext(), claims.CustomerID) {
		return apperrors.NewUnauthorized("customer not found")
	}

	c.Locals(principalKey, &Principal{CustomerID: claims.CustomerID, Channel: claims.Channel})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated customer.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
