// ABOUTME: Prometheus counters for persisted cell storage operations
// ABOUTME: A nil *Metrics records nothing so cells work without a registry

package persisted

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Operation and result label values.
const (
	opRead  = "read"
	opWrite = "write"
	opSync  = "sync"

	resultOK       = "ok"
	resultFallback = "fallback"
	resultError    = "error"
	resultIgnored  = "ignored"
)

// Metrics counts storage operations per key.
type Metrics struct {
	ops *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spinwheel",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Persisted cell storage operations by key, operation and result.",
		}, []string{"key", "op", "result"}),
	}
	if reg != nil {
		if err := reg.Register(m.ops); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) record(key, op, result string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(key, op, result).Inc()
}

// Count returns the current value of one counter.
func (m *Metrics) Count(key, op, result string) float64 {
	if m == nil {
		return 0
	}
	c, err := m.ops.GetMetricWithLabelValues(key, op, result)
	if err != nil {
		return 0
	}
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
