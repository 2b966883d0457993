// Copyright 2025 Atom Intents
//
// Package metrics exposes typed Prometheus collectors for settlement
// outcomes, slash amounts, and matching latency. It deliberately stops at
// a prometheus.Gatherer: scraping those metrics over HTTP is the
// embedding service's concern, not this engine's.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector this package registers. Callers obtain
// it as a prometheus.Gatherer to wire into their own /metrics exposition.
var Registry = prometheus.NewRegistry()

var (
	settlementTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liquidity_engine",
			Subsystem: "settlement",
			Name:      "transitions_total",
			Help:      "Count of settlement state transitions by destination kind.",
		},
		[]string{"to"},
	)

	settlementTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liquidity_engine",
			Subsystem: "settlement",
			Name:      "terminal_total",
			Help:      "Count of settlements reaching a terminal kind (completed, slashed).",
		},
		[]string{"kind"},
	)

	slashAmount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "liquidity_engine",
			Subsystem: "settlement",
			Name:      "slash_amount",
			Help:      "Distribution of slash amounts applied to solver bonds.",
			Buckets:   prometheus.ExponentialBuckets(1e6, 4, 8),
		},
	)

	matchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "liquidity_engine",
			Subsystem: "matching",
			Name:      "auction_duration_seconds",
			Help:      "Duration of a single intent's solver auction, by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	quotesPerAuction = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "liquidity_engine",
			Subsystem: "matching",
			Name:      "quotes_per_auction",
			Help:      "Number of solver quotes collected per auction.",
			Buckets:   prometheus.LinearBuckets(0, 10, 10),
		},
	)

	reputationScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "liquidity_engine",
			Subsystem: "reputation",
			Name:      "score",
			Help:      "Most recently computed reputation score per solver.",
		},
		[]string{"solver_id"},
	)
)

func init() {
	Registry.MustRegister(
		settlementTransitions,
		settlementTerminal,
		slashAmount,
		matchLatency,
		quotesPerAuction,
		reputationScore,
	)
}

// Gatherer exposes the registry for embedding services to scrape.
func Gatherer() prometheus.Gatherer {
	return Registry
}

// RecordSettlementTransition records a settlement reaching kind to. Pass
// the settlement package's Kind.String() so label values stay in sync
// with the state machine's own vocabulary.
func RecordSettlementTransition(to string) {
	settlementTransitions.WithLabelValues(to).Inc()
}

// RecordSettlementTerminal records a settlement reaching a terminal kind.
func RecordSettlementTerminal(kind string) {
	settlementTerminal.WithLabelValues(kind).Inc()
}

// RecordSlash records the amount deducted from a solver's bond.
func RecordSlash(amount uint64) {
	slashAmount.Observe(float64(amount))
}

// RecordAuction records how long a single intent's auction took and how
// many quotes it collected.
func RecordAuction(outcome string, duration time.Duration, quoteCount int) {
	matchLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	quotesPerAuction.Observe(float64(quoteCount))
}

// RecordReputationScore publishes a solver's latest reputation score.
func RecordReputationScore(solverID string, score uint64) {
	reputationScore.WithLabelValues(solverID).Set(float64(score))
}
