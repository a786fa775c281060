// Package echoapi exposes the authorization server over HTTP using the
// Echo framework.
package echoapi

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pulseplan.io/auth/domain"
	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/services"
)

// SessionResolver reports the authenticated end user behind a request,
// if any. The session mechanism itself (cookies, gateway headers)
// belongs to the surrounding backend.
type SessionResolver interface {
	CurrentUser(c echo.Context) (userID string, authTime *time.Time, ok bool)
}

// OAuth2API holds the HTTP surface's dependencies.
type OAuth2API struct {
	authCodes  *services.AuthCodeService
	tokens     *services.TokenService
	federation *services.FederationService
	signer     *services.TokenSigner
	sessions   SessionResolver

	issuer   string
	loginURL string
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(
	authCodes *services.AuthCodeService,
	tokens *services.TokenService,
	federation *services.FederationService,
	signer *services.TokenSigner,
	sessions SessionResolver,
	issuer, loginURL string,
) *OAuth2API {
	return &OAuth2API{
		authCodes:  authCodes,
		tokens:     tokens,
		federation: federation,
		signer:     signer,
		sessions:   sessions,
		issuer:     issuer,
		loginURL:   loginURL,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/auth/authorize", oa.AuthorizeHandler)
	e.POST("/auth/authorize", oa.AuthorizeJSONHandler)
	e.POST("/auth/token", oa.TokenHandler)
	e.POST("/auth/revoke", oa.RevokeHandler)
	e.GET("/api/v1/oauth2/userinfo", oa.UserInfoHandler)
	e.POST("/api/v1/oauth2/userinfo", oa.UserInfoHandler)

	e.GET("/auth/federation/:provider", oa.FederationStartHandler)
	e.GET("/auth/federation/:provider/callback", oa.FederationCallbackHandler)

	e.GET("/.well-known/jwks.json", oa.JWKSHandler)
	e.GET("/.well-known/openid-configuration", oa.OpenIDConfigurationHandler)
}

// requestMeta extracts the network facts of the request once, at the
// edge.
func requestMeta(c echo.Context) domain.RequestMeta {
	return domain.RequestMeta{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func parseAuthorizeRequest(c echo.Context) services.AuthorizeRequest {
	return services.AuthorizeRequest{
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		ResponseType:        c.QueryParam("response_type"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		Nonce:               c.QueryParam("nonce"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
	}
}

// AuthorizeHandler handles the browser-redirect authorization flow.
// Requests without a trustworthy redirect URI get a JSON error; once
// the client and redirect URI have checked out, errors travel back on
// the redirect itself.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	req := parseAuthorizeRequest(c)

	userID, authTime, ok := oa.sessions.CurrentUser(c)
	if !ok {
		return c.Redirect(http.StatusFound, oa.loginRedirectURL(c))
	}
	req.AuthTime = authTime

	code, err := oa.authCodes.Issue(c.Request().Context(), req, userID, requestMeta(c))
	if err != nil {
		oauthErr, trusted := authorizeError(err, req.State)
		if !trusted {
			return c.JSON(http.StatusBadRequest, oauthErr)
		}
		return c.Redirect(http.StatusFound, errorRedirectURL(req.RedirectURI, oauthErr))
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("malformed redirect_uri"))
	}
	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	return c.Redirect(http.StatusFound, redirect.String())
}

// AuthorizeJSONHandler serves first-party clients that drive the flow
// with fetch instead of navigation. The code comes back in the body
// rather than on a redirect.
func (oa *OAuth2API) AuthorizeJSONHandler(c echo.Context) error {
	req := parseAuthorizeRequest(c)

	userID, authTime, ok := oa.sessions.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, serrors.NewAccessDenied("authentication required"))
	}
	req.AuthTime = authTime

	code, err := oa.authCodes.Issue(c.Request().Context(), req, userID, requestMeta(c))
	if err != nil {
		oauthErr, _ := authorizeError(err, req.State)
		return c.JSON(http.StatusBadRequest, oauthErr)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"code":  code,
		"state": req.State,
	})
}

// authorizeError translates an issue failure into a wire error and
// reports whether the redirect URI was validated before the failure,
// i.e. whether the error may be delivered by redirect.
func authorizeError(err error, state string) (*serrors.OAuth2Error, bool) {
	var scopeErr *serrors.ScopeError

	switch {
	case errors.Is(err, serrors.ErrUnknownClient):
		return serrors.NewInvalidClient("unknown client_id"), false
	case errors.Is(err, serrors.ErrInvalidRedirectURI):
		return serrors.NewInvalidRequest("redirect_uri is not registered for this client"), false
	case errors.Is(err, serrors.ErrUnsupportedResponseType):
		return withState(&serrors.OAuth2Error{
			Code:        serrors.UnsupportedResponseType,
			Description: "only response_type=code is supported",
		}, state), true
	case errors.As(err, &scopeErr):
		return withState(serrors.NewInvalidScope(scopeErr.Error()), state), true
	case errors.Is(err, serrors.ErrMissingPKCEChallenge):
		return withState(serrors.NewInvalidRequest("code_challenge is required"), state), true
	case errors.Is(err, serrors.ErrUnsupportedPKCETransform):
		return withState(serrors.NewInvalidRequest("unsupported code_challenge_method"), state), true
	default:
		log.Error().Err(err).Msg("Failed to issue authorization code")
		return withState(serrors.NewServerError("failed to issue authorization code"), state), true
	}
}

func withState(e *serrors.OAuth2Error, state string) *serrors.OAuth2Error {
	e.State = state
	return e
}

func errorRedirectURL(redirectURI string, oauthErr *serrors.OAuth2Error) string {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := redirect.Query()
	q.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		q.Set("error_description", oauthErr.Description)
	}
	if oauthErr.State != "" {
		q.Set("state", oauthErr.State)
	}
	redirect.RawQuery = q.Encode()
	return redirect.String()
}

func (oa *OAuth2API) loginRedirectURL(c echo.Context) string {
	login, err := url.Parse(oa.loginURL)
	if err != nil {
		return oa.loginURL
	}
	q := login.Query()
	q.Set("next", c.Request().URL.RequestURI())
	login.RawQuery = q.Encode()
	return login.String()
}
