package link

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports transport counters to prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	packets     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	events      *prometheus.CounterVec
	incomplete  prometheus.Counter
	undecodable prometheus.Counter
	connected   prometheus.Gauge
	requests    *prometheus.HistogramVec
}

// NewMetrics creates the transport collectors and registers them with reg
// when reg is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stackctl",
				Subsystem: "link",
				Name:      "packets_total",
				Help:      "Packets moved over the serial link.",
			},
			[]string{"direction"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stackctl",
				Subsystem: "link",
				Name:      "dropped_total",
				Help:      "Items discarded because a queue was full.",
			},
			[]string{"queue"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stackctl",
				Subsystem: "link",
				Name:      "events_total",
				Help:      "Connection events by type.",
			},
			[]string{"type"},
		),
		incomplete: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stackctl",
				Subsystem: "link",
				Name:      "incomplete_packets_total",
				Help:      "Reads that returned fewer bytes than a packet.",
			},
		),
		undecodable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stackctl",
				Subsystem: "link",
				Name:      "undecodable_packets_total",
				Help:      "Full packets that failed to decode.",
			},
		),
		connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "stackctl",
				Subsystem: "link",
				Name:      "connected",
				Help:      "1 while a serial port is attached.",
			},
		),
		requests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stackctl",
				Subsystem: "link",
				Name:      "request_duration_seconds",
				Help:      "Round trip time of synchronous requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "success"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.packets, m.dropped, m.events, m.incomplete, m.undecodable, m.connected, m.requests)
	}
	return m
}

func (m *Metrics) packet(direction string) {
	if m != nil {
		m.packets.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) drop(queue string, n int) {
	if m != nil {
		m.dropped.WithLabelValues(queue).Add(float64(n))
	}
}

func (m *Metrics) event(t EventType) {
	if m != nil {
		m.events.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) incompletePacket() {
	if m != nil {
		m.incomplete.Inc()
	}
}

func (m *Metrics) undecodablePacket() {
	if m != nil {
		m.undecodable.Inc()
	}
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// ObserveRequest records one synchronous request
func (m *Metrics) ObserveRequest(kind string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.requests.WithLabelValues(kind, label).Observe(d.Seconds())
}
