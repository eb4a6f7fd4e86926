package alarm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wakekeeper"

var (
	scansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarms",
			Name:      "scans_total",
			Help:      "Total due-alarm scan passes",
		},
	)

	alarmsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarms",
			Name:      "processed_total",
			Help:      "Alarms consumed by the scanner, by outcome",
		},
		[]string{"outcome"},
	)

	alarmsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alarms",
			Name:      "pending",
			Help:      "Number of pending alarms after the last scan",
		},
	)

	nextWakeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alarms",
			Name:      "next_wake_timestamp_seconds",
			Help:      "Unix timestamp of the armed next-wake deadline, 0 when none",
		},
	)

	keepaliveTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "ticks_total",
			Help:      "Keep-alive ticks performed",
		},
	)

	statusReposts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "repost_attempts_total",
			Help:      "Status notification repost attempts, by outcome",
		},
		[]string{"outcome"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Outbound foreground events, by delivery path",
		},
		[]string{"path"},
	)
)

// Scan outcomes.
const (
	outcomeFired   = "fired"
	outcomeFailed  = "failed"
	outcomeExpired = "expired"
)

func recordScan(fired, failed, expired, remaining int) {
	scansTotal.Inc()
	alarmsProcessed.WithLabelValues(outcomeFired).Add(float64(fired))
	alarmsProcessed.WithLabelValues(outcomeFailed).Add(float64(failed))
	alarmsProcessed.WithLabelValues(outcomeExpired).Add(float64(expired))
	alarmsPending.Set(float64(remaining))
}

func recordNextWake(at time.Time) {
	if at.IsZero() {
		nextWakeSeconds.Set(0)
		return
	}
	nextWakeSeconds.Set(float64(at.Unix()))
}

func recordKeepAliveTick() {
	keepaliveTicks.Inc()
}

func recordRepostAttempt(outcome string) {
	statusReposts.WithLabelValues(outcome).Inc()
}

func recordEventPublished(path string) {
	eventsPublished.WithLabelValues(path).Inc()
}
