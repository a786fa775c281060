package echoapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/services"
)

// clientCredentials pulls the client id and secret from Basic auth or,
// failing that, from the form body. Basic auth wins when both are sent.
func clientCredentials(c echo.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		return id, secret
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}

// TokenHandler handles token-endpoint requests for the
// authorization_code and refresh_token grants.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	clientID, clientSecret := clientCredentials(c)

	req := services.ExchangeRequest{
		GrantType:    c.FormValue("grant_type"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Meta:         requestMeta(c),
	}

	resp, err := oa.tokens.Exchange(c.Request().Context(), req)
	if err != nil {
		status, oauthErr := tokenError(err)
		return c.JSON(status, oauthErr)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
	return c.JSON(http.StatusOK, resp)
}

// RevokeHandler implements RFC 7009 semantics: the only client-visible
// failure is a missing token parameter.
func (oa *OAuth2API) RevokeHandler(c echo.Context) error {
	token := c.FormValue("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("token parameter is required"))
	}

	clientID, _ := clientCredentials(c)
	tokenTypeHint := c.FormValue("token_type_hint")

	if err := oa.tokens.Revoke(c.Request().Context(), token, tokenTypeHint, clientID, requestMeta(c)); err != nil {
		log.Error().Err(err).Msg("Failed to revoke token")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("revocation failed"))
	}
	return c.NoContent(http.StatusOK)
}

func tokenError(err error) (int, *serrors.OAuth2Error) {
	var oauthErr *serrors.OAuth2Error
	if !errors.As(err, &oauthErr) {
		log.Error().Err(err).Msg("Token exchange failed")
		return http.StatusInternalServerError, serrors.NewServerError("token exchange failed")
	}

	switch oauthErr.Code {
	case serrors.InvalidClient:
		// RFC 6749 §5.2: failed client authentication gets a 401.
		return http.StatusUnauthorized, oauthErr
	case serrors.ServerError:
		return http.StatusInternalServerError, oauthErr
	default:
		return http.StatusBadRequest, oauthErr
	}
}
