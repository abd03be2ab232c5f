package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler pass labels.
const (
	PassHardware = "hardware"
	PassPlugin   = "plugin"
)

// Push result labels.
const (
	PushSent    = "sent"
	PushFailed  = "failed"
	PushIgnored = "ignored"
)

// Relay holds the relay's prometheus collectors.
type Relay struct {
	// Widgets that fired during a scheduler pass
	WidgetsTicked *prometheus.CounterVec
	// Full scheduler tick, both passes
	TickDuration prometheus.Histogram
	// Device status transitions
	DeviceStatus *prometheus.CounterVec
	// Offline push outcomes
	Pushes *prometheus.CounterVec
}

// NewRelay registers the relay collectors on reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	f := promauto.With(reg)
	return &Relay{
		WidgetsTicked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_widgets_ticked_total",
				Help: "Widgets that fired during a scheduler pass",
			},
			[]string{"pass"},
		),
		TickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_tick_duration_seconds",
				Help:    "Time spent in one scheduler tick",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
			},
		),
		DeviceStatus: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_device_status_total",
				Help: "Device connectivity transitions by resulting status",
			},
			[]string{"status"},
		),
		Pushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_push_total",
				Help: "Offline push notifications by result",
			},
			[]string{"result"},
		),
	}
}

// RecordTicked adds n fired widgets for the given pass.
func (m *Relay) RecordTicked(pass string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.WidgetsTicked.WithLabelValues(pass).Add(float64(n))
}

func (m *Relay) RecordTick(seconds float64) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(seconds)
}

func (m *Relay) RecordStatus(status string) {
	if m == nil {
		return
	}
	m.DeviceStatus.WithLabelValues(status).Inc()
}

func (m *Relay) RecordPush(result string) {
	if m == nil {
		return
	}
	m.Pushes.WithLabelValues(result).Inc()
}
