package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the scheduling core.
// A nil receiver is safe everywhere so wiring metrics stays optional.
type SchedulingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	eventsDelivered   prometheus.Counter
	requestDuration   *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "reservation",
			Name:      "attempts_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "appointment",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target and outcome",
		}, []string{"target", "outcome"}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "events",
			Name:      "delivered_total",
			Help:      "Outbox events handed to the downstream stream",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.transitionsTotal, m.eventsDelivered, m.requestDuration)
	return m
}

func (m *SchedulingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(target, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(target, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveEventDelivered() {
	if m == nil {
		return
	}
	m.eventsDelivered.Inc()
}

func (m *SchedulingMetrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
