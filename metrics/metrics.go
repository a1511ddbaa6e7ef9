package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NotificationsRelayed counts notifications turned into UI events
	NotificationsRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrelay_notifications_relayed_total",
			Help: "Total number of tool notifications relayed into run streams",
		},
	)

	// NotificationsSkipped counts notifications without any text fragment
	NotificationsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrelay_notifications_skipped_total",
			Help: "Total number of tool notifications skipped for carrying no text",
		},
	)

	// Fragments counts text deltas emitted from notifications
	Fragments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrelay_notification_fragments_total",
			Help: "Total number of text fragments emitted from notifications",
		},
	)

	// StepsAdvanced tracks agent steps taken after a notification
	StepsAdvanced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrelay_steps_advanced_total",
			Help: "Total number of agent steps advanced after a notification",
		},
		[]string{"result"},
	)

	// StreamsFinished tracks how run streams ended
	StreamsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrelay_streams_finished_total",
			Help: "Total number of run streams finished",
		},
		[]string{"status"},
	)

	// ActiveStreams tracks run streams currently being consumed
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentrelay_active_streams",
			Help: "Number of run streams currently being consumed",
		},
	)

	// StreamDuration tracks how long run streams last
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrelay_stream_duration_seconds",
			Help:    "Run stream duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)
)

// Step results
const (
	StepOK              = "ok"
	StepAlreadyComplete = "already_complete"
	StepFailed          = "failed"
)

// Stream statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordNotification records one relayed notification and its fragments
func RecordNotification(fragments int) {
	NotificationsRelayed.Inc()
	Fragments.Add(float64(fragments))
}

// RecordSkipped records a notification that carried no text
func RecordSkipped() {
	NotificationsSkipped.Inc()
}

// RecordStep records the outcome of one step advance
func RecordStep(result string) {
	StepsAdvanced.WithLabelValues(result).Inc()
}

// RecordStreamStart increments the active stream gauge
func RecordStreamStart() {
	ActiveStreams.Inc()
}

// RecordStreamEnd decrements the active stream gauge and records duration
func RecordStreamEnd(status string, durationSeconds float64) {
	ActiveStreams.Dec()
	StreamsFinished.WithLabelValues(status).Inc()
	StreamDuration.WithLabelValues(status).Observe(durationSeconds)
}
