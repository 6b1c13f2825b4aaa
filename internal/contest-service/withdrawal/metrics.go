package withdrawal

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Events *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "withdrawals_total", Help: "eventos de saque por tipo"}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(m.Events)
	}
	return m
}

func (m *Metrics) inc(event string) {
	if m != nil {
		m.Events.WithLabelValues(event).Inc()
	}
}
