package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "misquote"

var (
	GamesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "game",
		Name:      "sessions_started_total",
		Help:      "Game sessions started, by difficulty.",
	}, []string{"difficulty"})

	RoundsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "game",
		Name:      "rounds_completed_total",
		Help:      "Rounds completed, by difficulty and outcome (correct, wrong, timeout).",
	}, []string{"difficulty", "outcome"})

	NotificationsShown = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "shown_total",
		Help:      "Notifications queued, by type.",
	}, []string{"type"})

	ApplicationsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "applications_submitted_total",
		Help:      "Job applications submitted.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
