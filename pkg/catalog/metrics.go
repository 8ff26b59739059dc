package catalog

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liliang-cn/channelfinder/pkg/core"
)

// Metrics holds Prometheus metrics for the resource managers
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the manager metrics and registers them on reg. A nil
// reg leaves them unregistered. Collectors already registered on reg by an
// earlier catalog are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channelfinder_operations_total",
				Help: "Total number of catalog operations by resource, operation and outcome",
			},
			[]string{"resource", "operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channelfinder_operation_duration_seconds",
				Help:    "Duration of catalog operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"resource", "operation"},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// observe records one finished operation. status is "ok" or the error class.
func (m *Metrics) observe(resource, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = core.Classify(err).String()
	}
	m.operations.WithLabelValues(resource, operation, status).Inc()
	m.duration.WithLabelValues(resource, operation).Observe(time.Since(start).Seconds())
}
