package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)
	assert.Equal(t, start, clk.Now())

	clk.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), clk.Now())

	clk.Set(start.Add(-time.Minute))
	assert.Equal(t, start.Add(-time.Minute), clk.Now())
}

func TestSystemTruncatesToSeconds(t *testing.T) {
	t.Parallel()

	now := NewSystem().Now()
	assert.Zero(t, now.Nanosecond())
	assert.Equal(t, time.UTC, now.Location())
}
