package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	AuthCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	AuthCodesConsumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_codes_consumed_total",
		Help: "Total number of authorization codes successfully redeemed.",
	})
	TokensCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_created_total",
		Help: "Total number of tokens created.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_refreshed_total",
		Help: "Total number of tokens refreshed.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_revoked_total",
		Help: "Total number of tokens revoked.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_failures_total",
		Help: "Total number of failed login attempts recorded.",
	})
	LockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Total number of lockout decisions taken.",
	})
)

// Register registers the server's metrics with the given registry. It
// should be called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics")
		return
	}

	for _, c := range []prometheus.Collector{
		AuthCodesIssuedTotal, AuthCodesConsumedTotal,
		TokensCreatedTotal, TokensRefreshedTotal, TokensRevokedTotal,
		LoginFailureTotal, LockoutsTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
}
