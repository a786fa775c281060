package domain

import "time"

// SecurityEventType enumerates the authentication-relevant events this
// core records. The set is closed: new kinds are added here, not by
// callers passing free-form strings.
type SecurityEventType string

const (
	EventLoginSuccess         SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailure         SecurityEventType = "LOGIN_FAILURE"
	EventLogout               SecurityEventType = "LOGOUT"
	EventAuthCodeIssued       SecurityEventType = "AUTHORIZATION_CODE_ISSUED"
	EventAuthCodeUsed         SecurityEventType = "AUTHORIZATION_CODE_USED"
	EventAuthCodeExpired      SecurityEventType = "AUTHORIZATION_CODE_EXPIRED"
	EventTokenRefresh         SecurityEventType = "TOKEN_REFRESH"
	EventTokenRevoked         SecurityEventType = "TOKEN_REVOKED"
	EventExternalLoginSuccess SecurityEventType = "EXTERNAL_LOGIN_SUCCESS"
	EventExternalLoginFailure SecurityEventType = "EXTERNAL_LOGIN_FAILURE"
	EventAccountLocked        SecurityEventType = "ACCOUNT_LOCKED"
)

// SecurityEvent is an immutable audit record. Rows are append-only;
// nothing in this core updates or deletes them.
type SecurityEvent struct {
	ID               string            `bson:"_id,omitempty"               json:"id"`
	EventType        SecurityEventType `bson:"event_type"                  json:"event_type"`
	UserID           string            `bson:"user_id,omitempty"           json:"user_id,omitempty"`
	ClientID         string            `bson:"client_id,omitempty"         json:"client_id,omitempty"`
	Success          bool              `bson:"success"                     json:"success"`
	ErrorCode        string            `bson:"error_code,omitempty"        json:"error_code,omitempty"`
	ErrorDescription string            `bson:"error_description,omitempty" json:"error_description,omitempty"`
	Metadata         map[string]any    `bson:"metadata,omitempty"          json:"metadata,omitempty"`
	IPAddress        string            `bson:"ip_address,omitempty"        json:"ip_address,omitempty"`
	UserAgent        string            `bson:"user_agent,omitempty"        json:"user_agent,omitempty"`
	CreatedAt        time.Time         `bson:"created_at"                  json:"created_at"`
}

// RequestMeta carries the network facts of the request a deep call site
// is serving. It is passed explicitly down the call chain; a zero value
// is a normal, non-error case (background jobs, tests).
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
