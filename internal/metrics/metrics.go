package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	betsPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racebet_bets_placed_total",
			Help: "Bet placement attempts by result",
		},
		[]string{"result"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racebet_settlements_total",
			Help: "Settlement attempts by result",
		},
		[]string{"result"},
	)

	payoutCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "racebet_payout_cents_total",
			Help: "Total cents credited to winning bets",
		},
	)

	idempotencyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racebet_idempotency_decisions_total",
			Help: "Idempotency guard decisions",
		},
		[]string{"decision"},
	)

	providerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racebet_provider_calls_total",
			Help: "Session data provider calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	outboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racebet_outbox_messages_total",
			Help: "Outbox messages handled by result",
		},
		[]string{"result"},
	)

	auditedAccounts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racebet_ledger_audit_accounts_total",
			Help: "Accounts checked by the ledger audit job, by result",
		},
		[]string{"result"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "racebet_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"route", "method", "status"},
	)
)

// RecordBet result: success / rejected / error
func RecordBet(result string) {
	betsPlaced.WithLabelValues(result).Inc()
}

// RecordSettlement result: settled / replayed / rejected / error
func RecordSettlement(result string, payout int64) {
	settlements.WithLabelValues(result).Inc()
	if payout > 0 {
		payoutCents.Add(float64(payout))
	}
}

func RecordIdempotency(decision string) {
	idempotencyDecisions.WithLabelValues(decision).Inc()
}

func RecordProviderCall(operation string, err error) {
	res := "success"
	if err != nil {
		res = "fail"
	}
	providerCalls.WithLabelValues(operation, res).Inc()
}

func RecordOutbox(result string) {
	outboxPublished.WithLabelValues(result).Inc()
}

// RecordAudit result: consistent / mismatch / error
func RecordAudit(result string) {
	auditedAccounts.WithLabelValues(result).Inc()
}

func RecordHTTP(route, method string, status int, started time.Time) {
	if route == "" {
		route = "unmatched"
	}
	httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).
		Observe(float64(time.Since(started).Milliseconds()))
}
