package errors

import (
	"errors"
	"fmt"
)

// OAuth2Error represents a standardized OAuth 2.0 error as it appears
// on the wire.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes.
const (
	InvalidRequest          = "invalid_request"
	UnauthorizedClient      = "unauthorized_client"
	AccessDenied            = "access_denied"
	UnsupportedGrantType    = "unsupported_grant_type"
	UnsupportedResponseType = "unsupported_response_type"
	InvalidScope            = "invalid_scope"
	InvalidClient           = "invalid_client"
	InvalidGrant            = "invalid_grant"
	ServerError             = "server_error"
)

// Authorization request validation failures. Each maps onto a distinct
// sentinel so callers can branch without string matching.
var (
	ErrUnknownClient            = errors.New("unknown client")
	ErrInvalidRedirectURI       = errors.New("redirect_uri is not registered for this client")
	ErrUnsupportedResponseType  = errors.New("unsupported response_type")
	ErrMissingPKCEChallenge     = errors.New("code_challenge is required")
	ErrUnsupportedPKCETransform = errors.New("unsupported code_challenge_method")

	ErrInvalidClientCredentials = errors.New("invalid client credentials")
	ErrTokenExpiredOrRevoked    = errors.New("token expired or revoked")
	ErrExternalAuthFailed       = errors.New("external authentication failed")
)

// ScopeError reports a requested scope outside the client's registration.
type ScopeError struct {
	Scope string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("scope %q is not allowed for this client", e.Scope)
}

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnauthorizedClient, Description: description}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "The authorization grant type is not supported",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// NewAccessDenied is used when the caller is authenticated but not
// entitled to the requested operation.
func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{Code: AccessDenied, Description: description}
}
