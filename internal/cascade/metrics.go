package cascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalocr_attempts_total",
			Help: "Total number of strategy attempts",
		},
		[]string{"strategy", "outcome"}, // outcome: success or error kind
	)

	attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evalocr_attempt_duration_seconds",
			Help:    "Strategy attempt duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"strategy"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalocr_recognition_requests_total",
			Help: "Total number of recognition requests by final state",
		},
		[]string{"state"},
	)

	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evalocr_recognition_duration_seconds",
			Help:    "End-to-end recognition duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
	)

	textLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evalocr_text_length",
			Help:    "Length of cleaned recognized text in runes",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)
)
