package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analyticsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redbox_chat_analytics_events_total",
		Help: "Analytics events reported by chat exchanges grouped by name and route",
	}, []string{"name", "route"})

	exchangeStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redbox_chat_exchanges_total",
		Help: "Finished chat exchanges grouped by final status",
	}, []string{"status"})

	exchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redbox_chat_exchange_duration_seconds",
		Help:    "Time from submit to transport close of chat exchanges",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"status"})

	framesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redbox_replay_frames_sent_total",
		Help: "Frames sent by the replay server grouped by event type",
	}, []string{"type"})

	streamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redbox_replay_streams_total",
		Help: "Replay streams grouped by outcome",
	}, []string{"outcome"})
)

// Analytics counts fire-and-forget analytics events
type Analytics struct{}

// Track records one analytics event
func (Analytics) Track(name string, props map[string]string) {
	if name == "" {
		name = "unknown"
	}
	analyticsEventsTotal.WithLabelValues(name, props["route"]).Inc()
}

// ObserveExchange records the final status and duration of an exchange
func ObserveExchange(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	exchangeStatusTotal.WithLabelValues(status).Inc()
	exchangeDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveFrame records one frame sent by the replay server
func ObserveFrame(eventType string) {
	framesSentTotal.WithLabelValues(eventType).Inc()
}

// ObserveStream records how a replay stream ended
func ObserveStream(outcome string) {
	streamsTotal.WithLabelValues(outcome).Inc()
}
