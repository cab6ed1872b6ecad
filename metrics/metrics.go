// Package metrics exposes the engine's business metrics, grounded on
// replay-api's pkg/infra/metrics/prometheus.go promauto wiring pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoundsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phraseset_rounds_started_total",
		Help: "Rounds started, by round tag (prompt, copy, vote).",
	}, []string{"tag"})

	RoundsTimedOutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phraseset_rounds_timed_out_total",
		Help: "Rounds that timed out, by round tag and resulting status.",
	}, []string{"tag", "status"})

	LedgerTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phraseset_ledger_transactions_total",
		Help: "Ledger transactions committed, by kind.",
	}, []string{"kind"})

	LedgerInsufficientBalanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phraseset_ledger_insufficient_balance_total",
		Help: "Ledger mutations rejected for insufficient balance, by attempted kind.",
	}, []string{"kind"})

	ValidatorRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phraseset_validator_rejections_total",
		Help: "Phrase validation rejections, by reason.",
	}, []string{"reason"})

	PhrasesetsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phraseset_phrasesets_created_total",
		Help: "Phrasesets built from two submitted copies.",
	})

	PhrasesetsFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phraseset_phrasesets_finalized_total",
		Help: "Phrasesets finalized, by trigger condition.",
	}, []string{"trigger"})

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phraseset_claims_total",
		Help: "ClaimPhrasesetPrize calls, by outcome (first_claim, already_claimed).",
	}, []string{"outcome"})

	QueueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "phraseset_queue_depth",
		Help: "Current depth of the prompt queue and the phraseset voting pool.",
	}, []string{"queue"})

	CopyDiscountActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phraseset_copy_discount_active",
		Help: "1 if the copy-cost discount is currently active, else 0.",
	})

	AIAssistTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phraseset_ai_assist_total",
		Help: "Copy rounds whose submission was flagged as AI-assisted by an external helper.",
	})
)
