package forward

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts slot management events of tailing iterators.
type Metrics struct {
	Rebuilds       prometheus.Counter
	Renewals       *prometheus.CounterVec
	ImmutableSeeks prometheus.Counter
}

var _ Observer = (*Metrics)(nil)

// NewMetrics creates metrics and registers them to reg if it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lsmtail",
			Subsystem: "tailing_iterator",
			Name:      "rebuilds_total",
			Help:      "Number of times tailing iterators built all slots from scratch.",
		}),
		Renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsmtail",
			Subsystem: "tailing_iterator",
			Name:      "renewals_total",
			Help:      "Number of file and level slots renewed on superversion changes, by policy.",
		}, []string{"policy"}),
		ImmutableSeeks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lsmtail",
			Subsystem: "tailing_iterator",
			Name:      "immutable_seeks_total",
			Help:      "Number of seeks that repositioned immutable slots.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Rebuilds, m.Renewals, m.ImmutableSeeks)
	}
	return m
}

func (m *Metrics) Rebuilt() {
	m.Rebuilds.Inc()
}

func (m *Metrics) Renewed(r Renewal) {
	m.Renewals.WithLabelValues(r.String()).Inc()
}

func (m *Metrics) ImmutableSeeked() {
	m.ImmutableSeeks.Inc()
}
