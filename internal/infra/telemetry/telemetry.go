package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "authflow"

// Register registers c with reg. If an equal collector is already
// registered, the existing one is returned so that constructors can run
// more than once against the default registry.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return c, fmt.Errorf("register collector: %w", err)
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
	}
	return existing, nil
}

// AuthMetrics counts auth flow outcomes by operation.
type AuthMetrics struct {
	Operations *prometheus.CounterVec
}

// NewAuthMetrics registers authflow_auth_operations_total on reg.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	operations, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "auth",
		Name:      "operations_total",
		Help:      "Auth flow operations partitioned by operation and outcome code.",
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{Operations: operations}, nil
}

// ObserveOperation implements usecase.OperationObserver.
func (m *AuthMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}
