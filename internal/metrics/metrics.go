// Package metrics provides Prometheus instrumentation for the matchmaking
// service. It exposes gauges for queue depth, counters for match outcomes and
// penalties, and histograms for wait and tick latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueuePlayers tracks the current number of players waiting per mode.
	QueuePlayers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_queue_players",
		Help: "Current number of players waiting in each mode queue",
	}, []string{"mode"})

	// MatchWait records the time from joining a queue to being placed in a match.
	MatchWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_match_wait_seconds",
		Help:    "Time from queue join to match formation",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"mode"})

	// MatchesCreated counts matches built per mode.
	MatchesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_matches_created_total",
		Help: "Total number of matches built",
	}, []string{"mode"})

	// MatchOutcomes counts confirmation results, labeled by outcome:
	// "started" or "cancelled".
	MatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_match_outcomes_total",
		Help: "Total number of matches leaving the confirmation phase",
	}, []string{"outcome"})

	// PenaltiesTotal counts penalties issued to players who did not confirm.
	PenaltiesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arena_penalties_total",
		Help: "Total number of confirmation penalties issued",
	})

	// TickDuration records how long one scheduler tick takes across all modes.
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Duration of a matchmaking tick",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
	})

	// JoinRejections counts rejected join requests by reason.
	JoinRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_join_rejections_total",
		Help: "Total number of rejected queue joins",
	}, []string{"reason"}) // reason = "invalid_mode", "requirement", "already_queued", "penalized", "rate_limited"
)

func init() {
	prometheus.MustRegister(
		QueuePlayers,
		MatchWait,
		MatchesCreated,
		MatchOutcomes,
		PenaltiesTotal,
		TickDuration,
		JoinRejections,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
