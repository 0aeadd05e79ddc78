package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Turns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockchat_turns_total",
			Help: "Total number of chat turns by terminal outcome",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockchat_turn_duration_seconds",
			Help:    "Duration of a chat turn before token streaming starts",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockchat_model_calls_total",
			Help: "Total number of language-model calls by phase and result",
		},
		[]string{"phase", "result"},
	)

	QuoteFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockchat_quote_fetches_total",
			Help: "Total number of quote lookups by provider and result",
		},
		[]string{"provider", "result"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockchat_active_streams",
			Help: "Number of token streams currently being written to clients",
		},
	)
)
