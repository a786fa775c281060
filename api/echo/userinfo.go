package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// UserInfoHandler serves OIDC userinfo claims for a Bearer token.
func (oa *OAuth2API) UserInfoHandler(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		return invalidToken(c)
	}

	claims, err := oa.tokens.UserInfo(c.Request().Context(), token)
	if err != nil {
		return invalidToken(c)
	}
	return c.JSON(http.StatusOK, claims)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func invalidToken(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": "the access token is missing, expired or revoked",
	})
}
