package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

func TestCollector_RecordOperation(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := New("", reg)
	require.NoError(t, err)

	c.RecordOperation("refund", time.Millisecond, nil)
	c.RecordOperation("refund", time.Millisecond, fmt.Errorf("wrapped: %w", domain.ErrSoldOut))
	c.RecordOperation("refund", time.Millisecond, domain.ErrSoldOut)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("refund", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("refund", "state_conflict")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_ObserveReceipt(t *testing.T) {
	t.Parallel()

	c, err := New("test", prometheus.NewRegistry())
	require.NoError(t, err)

	c.ObserveReceipt(context.Background(), ledger.Receipt{
		Seq:  4,
		Logs: []ledger.Log{{Name: "TicketsSold"}, {Name: "TicketCreated"}, {Name: "TicketsSold"}},
	})

	assert.Equal(t, 5.0, testutil.ToFloat64(c.height))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.logs.WithLabelValues("TicketsSold")))
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := New("dup", reg)
	require.NoError(t, err)
	second, err := New("dup", reg)
	require.NoError(t, err)

	second.RecordOperation("x", 0, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.operations.WithLabelValues("x", "ok")))
}

func TestNilCollector(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.RecordOperation("x", 0, nil)
	c.ObserveReceipt(context.Background(), ledger.Receipt{})
}

func TestResult(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"ok":                   nil,
		"unauthorized":         domain.ErrNotAdministrator,
		"not_found":            domain.ErrEventNotFound,
		"value_mismatch":       domain.ErrPaymentMismatch,
		"invariant_violation":  domain.ErrEscrowUnderflow,
		"insufficient_balance": domain.ErrInsufficientBalance,
		"error":                errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Result(err))
	}
}
