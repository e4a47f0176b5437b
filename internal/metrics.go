package internal

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the client's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	reconnects   *prometheus.CounterVec
	pingFailures *prometheus.CounterVec
	expiredReads prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metapipe_grid",
			Name:      "requests_total",
			Help:      "Requests sent to the store, by lane and status.",
		}, []string{"lane", "status"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metapipe_grid",
			Name:      "reconnects_total",
			Help:      "Successful redials, by endpoint.",
		}, []string{"addr"}),
		pingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metapipe_grid",
			Name:      "ping_failures_total",
			Help:      "Failed liveness checks, by endpoint.",
		}, []string{"addr"}),
		expiredReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metapipe_grid",
			Name:      "expired_reads_total",
			Help:      "Remote hits masked because their tracked deadline had passed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.reconnects, m.pingFailures, m.expiredReads)
	}
	return m
}

func (m *Metrics) Request(lane Lane, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(lane.String(), status).Inc()
}

func (m *Metrics) Reconnect(addr string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(addr).Inc()
}

func (m *Metrics) PingFailure(addr string) {
	if m == nil {
		return
	}
	m.pingFailures.WithLabelValues(addr).Inc()
}

func (m *Metrics) ExpiredRead() {
	if m == nil {
		return
	}
	m.expiredReads.Inc()
}
