package echoapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/internal/federation"
)

// FederationStartHandler redirects the browser to the external
// provider's consent screen.
func (oa *OAuth2API) FederationStartHandler(c echo.Context) error {
	provider := c.Param("provider")

	authURL, err := oa.federation.AuthURL(c.Request().Context(), provider, requestMeta(c))
	if err != nil {
		if errors.Is(err, federation.ErrProviderNotFound) {
			return c.JSON(http.StatusNotFound, serrors.NewInvalidRequest("unknown identity provider"))
		}
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("failed to start external login"))
	}
	return c.Redirect(http.StatusFound, authURL)
}

// FederationCallbackHandler completes the external login and returns a
// local token pair.
func (oa *OAuth2API) FederationCallbackHandler(c echo.Context) error {
	provider := c.Param("provider")
	code := c.QueryParam("code")
	state := c.QueryParam("state")

	if code == "" || state == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("code and state parameters are required"))
	}

	resp, err := oa.federation.HandleCallback(c.Request().Context(), provider, code, state, requestMeta(c))
	if err != nil {
		var oauthErr *serrors.OAuth2Error
		if errors.As(err, &oauthErr) {
			return c.JSON(http.StatusForbidden, oauthErr)
		}
		return c.JSON(http.StatusUnauthorized, serrors.NewAccessDenied("external authentication failed"))
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, resp)
}
