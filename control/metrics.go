// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the readiness multiplexer.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors a Multiplexer reports into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Waits           prometheus.Counter
	WaitInterrupted prometheus.Counter
	ReadyEvents     prometheus.Counter
	Registrations   prometheus.Gauge
	BufferGrowths   prometheus.Counter
	EventCapacity   prometheus.Gauge
	Errors          *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Pass prometheus.NewRegistry()
// in tests to avoid clashing with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Waits: f.NewCounter(prometheus.CounterOpts{
			Name: "reactor_wait_total",
			Help: "Completed multiplexer wait calls",
		}),
		WaitInterrupted: f.NewCounter(prometheus.CounterOpts{
			Name: "reactor_wait_interrupted_total",
			Help: "Native waits retried after EINTR",
		}),
		ReadyEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "reactor_ready_events_total",
			Help: "Ready entries returned by wait",
		}),
		Registrations: f.NewGauge(prometheus.GaugeOpts{
			Name: "reactor_registrations",
			Help: "Descriptors with non-empty interest",
		}),
		BufferGrowths: f.NewCounter(prometheus.CounterOpts{
			Name: "reactor_buffer_grow_total",
			Help: "Event buffer capacity doublings",
		}),
		EventCapacity: f.NewGauge(prometheus.GaugeOpts{
			Name: "reactor_event_capacity",
			Help: "Current event buffer capacity",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_errors_total",
			Help: "Failed multiplexer operations by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveWait(ready int) {
	if m == nil {
		return
	}
	m.Waits.Inc()
	m.ReadyEvents.Add(float64(ready))
}

func (m *Metrics) ObserveInterrupted() {
	if m == nil {
		return
	}
	m.WaitInterrupted.Inc()
}

func (m *Metrics) SetRegistrations(n int) {
	if m == nil {
		return
	}
	m.Registrations.Set(float64(n))
}

func (m *Metrics) ObserveCapacity(capacity int, grown bool) {
	if m == nil {
		return
	}
	if grown {
		m.BufferGrowths.Inc()
	}
	m.EventCapacity.Set(float64(capacity))
}

func (m *Metrics) ObserveError(op string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(op).Inc()
}
