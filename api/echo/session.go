package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"go.pulseplan.io/auth/services"
)

// BearerSessionResolver authenticates authorize requests with an
// access token already held by a first-party app. Cookie or gateway
// based resolvers can replace it without touching the handlers.
type BearerSessionResolver struct {
	tokens *services.TokenService
}

func NewBearerSessionResolver(tokens *services.TokenService) *BearerSessionResolver {
	return &BearerSessionResolver{tokens: tokens}
}

func (r *BearerSessionResolver) CurrentUser(c echo.Context) (string, *time.Time, bool) {
	bearer := bearerToken(c)
	if bearer == "" {
		return "", nil, false
	}
	token, err := r.tokens.ValidateAccessToken(c.Request().Context(), bearer)
	if err != nil {
		return "", nil, false
	}
	authTime := token.CreatedAt
	return token.UserID, &authTime, true
}
