package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// openIDConfiguration is the discovery document served at
// /.well-known/openid-configuration.
//
//nolint:tagliatelle
type openIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
}

func (oa *OAuth2API) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.signer.JWKS())
}

func (oa *OAuth2API) OpenIDConfigurationHandler(c echo.Context) error {
	cfg := openIDConfiguration{
		Issuer:                           oa.issuer,
		AuthorizationEndpoint:            oa.issuer + "/auth/authorize",
		TokenEndpoint:                    oa.issuer + "/auth/token",
		UserinfoEndpoint:                 oa.issuer + "/api/v1/oauth2/userinfo",
		RevocationEndpoint:               oa.issuer + "/auth/revoke",
		JWKSURI:                          oa.issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{"code"},
		GrantTypesSupported:              []string{"authorization_code", "refresh_token"},
		ScopesSupported:                  []string{"openid", "profile", "email"},
		CodeChallengeMethodsSupported:    []string{"plain", "S256"},
		TokenEndpointAuthMethods:         []string{"client_secret_basic", "client_secret_post", "none"},
		IDTokenSigningAlgValuesSupported: []string{"RS256", "HS256"},
		SubjectTypesSupported:            []string{"public"},
	}
	return c.JSON(http.StatusOK, cfg)
}
