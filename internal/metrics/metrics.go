package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

const defaultNamespace = "ticket_ledger"

// Collector exports ledger operation metrics to Prometheus. It records every
// submitted operation and observes committed receipts.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	logs       *prometheus.CounterVec
	height     prometheus.Gauge
}

// New registers the collector's metrics on reg, reusing collectors that are
// already registered under the same names.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{}
	var err error
	c.operations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Submitted ledger operations by method and result.",
	}, []string{"method", "result"}))
	if err != nil {
		return nil, err
	}
	c.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Time spent executing ledger operations, including waiting for the ledger lock.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"}))
	if err != nil {
		return nil, err
	}
	c.logs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logs_total",
		Help:      "Logs emitted by committed operations.",
	}, []string{"name"}))
	if err != nil {
		return nil, err
	}
	c.height, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "height",
		Help:      "Sequence number of the next operation to commit.",
	}))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register ledger metric: %w", err)
	}
	return collector, nil
}

// RecordOperation counts one submitted operation.
func (c *Collector) RecordOperation(method string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(method).Observe(duration.Seconds())
	c.operations.WithLabelValues(method, Result(err)).Inc()
}

// ObserveReceipt updates the height and counts the receipt's logs.
func (c *Collector) ObserveReceipt(_ context.Context, receipt ledger.Receipt) {
	if c == nil {
		return
	}
	c.height.Set(float64(receipt.Seq + 1))
	for _, log := range receipt.Logs {
		c.logs.WithLabelValues(log.Name).Inc()
	}
}

// Result is the label an operation outcome is counted under.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	switch domain.Kind(err) {
	case domain.ErrUnauthorized:
		return "unauthorized"
	case domain.ErrNotFound:
		return "not_found"
	case domain.ErrStateConflict:
		return "state_conflict"
	case domain.ErrValueMismatch:
		return "value_mismatch"
	case domain.ErrInvariantViolation:
		return "invariant_violation"
	case domain.ErrInsufficientBalance:
		return "insufficient_balance"
	default:
		return "error"
	}
}
