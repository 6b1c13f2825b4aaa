package contest

import "github.com/prometheus/client_golang/prometheus"

// Metrics agrupa os contadores do motor. Um *Metrics nil desliga a coleta.
type Metrics struct {
	Created prometheus.Counter
	Claims  *prometheus.CounterVec
	Closed  *prometheus.CounterVec
	Settled *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{Name: "contests_created_total", Help: "contests criados"}),
		Claims:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contest_claims_total", Help: "tentativas de claim por resultado"}, []string{"result"}),
		Closed:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contests_closed_unmatched_total", Help: "contests fechados sem adversário"}, []string{"reason"}),
		Settled: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contests_settled_total", Help: "contests liquidados por resultado"}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Created, m.Claims, m.Closed, m.Settled)
	}
	return m
}

func (m *Metrics) created() {
	if m != nil {
		m.Created.Inc()
	}
}

func (m *Metrics) claim(result string) {
	if m != nil {
		m.Claims.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) closed(reason string) {
	if m != nil {
		m.Closed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) settled(outcome string) {
	if m != nil {
		m.Settled.WithLabelValues(outcome).Inc()
	}
}
