package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pulseplan.io/auth/domain"
	"go.pulseplan.io/auth/internal/metrics"
	"go.pulseplan.io/auth/internal/security"
)

const (
	// DefaultAccountLockoutWindow is the trailing window for the
	// per-user lockout decision.
	DefaultAccountLockoutWindow = 30 * time.Minute
	// DefaultAccountLockoutThreshold is how many failed logins within
	// the window lock an account.
	DefaultAccountLockoutThreshold = 5
)

// RecordOptions describes one security event to append.
type RecordOptions struct {
	EventType        domain.SecurityEventType
	UserID           string
	ClientID         string
	Success          bool
	ErrorCode        string
	ErrorDescription string
	Metadata         map[string]any
	Meta             domain.RequestMeta
}

// SecurityEventService appends the audit trail and derives lockout
// decisions from it. Account lockout is computed from the durable event
// log so it survives restarts; source-address lockout is delegated to
// the in-memory tracker.
type SecurityEventService struct {
	events    domain.SecurityEventRepository
	ipTracker *security.LockoutTracker
	window    time.Duration
	threshold int64
	now       func() time.Time
}

// NewSecurityEventService creates the tracker service. Non-positive
// window or threshold fall back to the defaults.
func NewSecurityEventService(
	events domain.SecurityEventRepository,
	ipTracker *security.LockoutTracker,
	window time.Duration,
	threshold int,
) *SecurityEventService {
	if window <= 0 {
		window = DefaultAccountLockoutWindow
	}
	if threshold <= 0 {
		threshold = DefaultAccountLockoutThreshold
	}
	return &SecurityEventService{
		events:    events,
		ipTracker: ipTracker,
		window:    window,
		threshold: int64(threshold),
		now:       time.Now,
	}
}

// Record appends a security event. Failures are logged and swallowed:
// audit logging must never break the operation being audited. The
// network fields come from the explicit request meta; a zero meta is
// recorded with empty network fields.
func (s *SecurityEventService) Record(ctx context.Context, opts RecordOptions) {
	event := &domain.SecurityEvent{
		ID:               uuid.NewString(),
		EventType:        opts.EventType,
		UserID:           opts.UserID,
		ClientID:         opts.ClientID,
		Success:          opts.Success,
		ErrorCode:        opts.ErrorCode,
		ErrorDescription: opts.ErrorDescription,
		Metadata:         opts.Metadata,
		IPAddress:        opts.Meta.IPAddress,
		UserAgent:        opts.Meta.UserAgent,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.events.InsertEvent(ctx, event); err != nil {
		log.Error().Err(err).
			Str("event_type", string(opts.EventType)).
			Str("user_id", opts.UserID).
			Msg("failed to record security event")
		return
	}

	if opts.EventType == domain.EventLoginFailure {
		metrics.LoginFailureTotal.Inc()
	}
}

// IsAccountLocked reports whether the user has accumulated enough
// failed logins within the trailing window. Count errors fail open: an
// unreachable audit store must not lock every account out.
func (s *SecurityEventService) IsAccountLocked(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}

	since := s.now().Add(-s.window)
	count, err := s.events.CountEvents(ctx, userID, domain.EventLoginFailure, false, since)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to count login failures")
		return false
	}

	locked := count >= s.threshold
	if locked {
		metrics.LockoutsTotal.Inc()
	}
	return locked
}

// TrackFailedLoginAttempt records a failed attempt from the given
// source address in the in-memory counter.
func (s *SecurityEventService) TrackFailedLoginAttempt(sourceIP string) {
	if sourceIP == "" {
		return
	}
	s.ipTracker.TrackFailure(sourceIP)
}

// IsIPAddressLocked reports whether the source address is locked out.
func (s *SecurityEventService) IsIPAddressLocked(sourceIP string) bool {
	if sourceIP == "" {
		return false
	}
	locked := s.ipTracker.IsLocked(sourceIP)
	if locked {
		metrics.LockoutsTotal.Inc()
	}
	return locked
}

// ClearFailedAttempts forgets the source address's counter, typically
// after a successful authentication.
func (s *SecurityEventService) ClearFailedAttempts(sourceIP string) {
	if sourceIP == "" {
		return
	}
	s.ipTracker.Clear(sourceIP)
}
