package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts lifecycle operations by outcome.
type Metrics struct {
	ops *prometheus.CounterVec
}

// NewMetrics registers the lifecycle collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tether_auth_operations_total",
		Help: "Lifecycle operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	if reg != nil {
		if err := reg.Register(ops); err != nil {
			return nil, err
		}
	}
	return &Metrics{ops: ops}, nil
}

// Outcome maps err to a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if s := Slug(err); s != "" {
		return s
	}
	return "error"
}

func (m *Metrics) record(op string, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, Outcome(err)).Inc()
}
