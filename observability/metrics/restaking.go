package metrics

import (
	"encoding/hex"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"restakechain/core/events"
)

// RestakingMetrics aggregates the Prometheus collectors for the restaking
// module suite.
type RestakingMetrics struct {
	deposits          *prometheus.CounterVec
	withdrawals       *prometheus.CounterVec
	queuedWithdrawals prometheus.Counter
	redeemed          prometheus.Counter
	registrations     *prometheus.CounterVec
	slashingRequests  prometheus.Counter
	slashingLocked    prometheus.Counter
	slashingFinalized prometheus.Counter
	slashingCancelled prometheus.Counter
	proposals         prometheus.Counter
	votes             *prometheus.CounterVec
}

var (
	restakingOnce     sync.Once
	restakingRegistry *RestakingMetrics
)

// Restaking returns the process-wide restaking collectors, registering them
// on first use.
func Restaking() *RestakingMetrics {
	restakingOnce.Do(func() {
		restakingRegistry = &RestakingMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "restaking_vault_deposits_total",
				Help: "Count of vault deposits by vault address.",
			}, []string{"vault"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "restaking_vault_withdrawals_total",
				Help: "Count of direct vault withdrawals by vault address.",
			}, []string{"vault"}),
			queuedWithdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "restaking_queued_withdrawals_total",
				Help: "Count of queued withdrawal operations.",
			}),
			redeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "restaking_redeemed_withdrawals_total",
				Help: "Count of redeemed withdrawal operations.",
			}),
			registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "restaking_registration_updates_total",
				Help: "Count of registry relationship transitions by resulting status.",
			}, []string{"status"}),
			slashingRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "restaking_slashing_requests_total",
				Help: "Count of filed slashing requests.",
			}),
			slashingLocked: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "restaking_slashing_locked_total",
				Help: "Count of slashing requests reaching the locked stage.",
			}),
			slashingFinalized: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "restaking_slashing_finalized_total",
				Help: "Count of finalized slashing requests.",
			}),
			slashingCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "restaking_slashing_cancelled_total",
				Help: "Count of cancelled slashing requests.",
			}),
			proposals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "restaking_guardrail_proposals_total",
				Help: "Count of guardrail proposals opened.",
			}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "restaking_guardrail_votes_total",
				Help: "Count of guardrail ballots by option.",
			}, []string{"option"}),
		}
		prometheus.MustRegister(
			restakingRegistry.deposits,
			restakingRegistry.withdrawals,
			restakingRegistry.queuedWithdrawals,
			restakingRegistry.redeemed,
			restakingRegistry.registrations,
			restakingRegistry.slashingRequests,
			restakingRegistry.slashingLocked,
			restakingRegistry.slashingFinalized,
			restakingRegistry.slashingCancelled,
			restakingRegistry.proposals,
			restakingRegistry.votes,
		)
	})
	return restakingRegistry
}

// Emitter decorates another event emitter with metric updates, so every
// engine wired through it feeds the collectors for free.
type Emitter struct {
	Next    events.Emitter
	Metrics *RestakingMetrics
}

// Emit implements events.Emitter.
func (e Emitter) Emit(event events.Event) {
	if e.Metrics != nil {
		e.Metrics.observe(event)
	}
	if e.Next != nil {
		e.Next.Emit(event)
	}
}

func (m *RestakingMetrics) observe(event events.Event) {
	switch evt := event.(type) {
	case events.VaultDeposit:
		m.deposits.WithLabelValues(hexLabel(evt.Vault)).Inc()
	case events.VaultWithdraw:
		m.withdrawals.WithLabelValues(hexLabel(evt.Vault)).Inc()
	case events.VaultQueueWithdrawal:
		m.queuedWithdrawals.Inc()
	case events.VaultRedeemWithdrawal:
		m.redeemed.Inc()
	case events.RegistrationStatusUpdated:
		m.registrations.WithLabelValues(evt.Label).Inc()
	case events.SlashingRequested:
		m.slashingRequests.Inc()
	case events.SlashingLocked:
		m.slashingLocked.Inc()
	case events.SlashingFinalized:
		m.slashingFinalized.Inc()
	case events.SlashingCancelled:
		m.slashingCancelled.Inc()
	case events.GuardrailProposed:
		m.proposals.Inc()
	case events.GuardrailVoted:
		m.votes.WithLabelValues(evt.Option).Inc()
	}
}

func hexLabel(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}
