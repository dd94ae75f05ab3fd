package domain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountArithmetic(t *testing.T) {
	t.Parallel()

	max := new(uint256.Int).SetAllOne()

	_, err := AddAmount(max, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrAmountOverflow)
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = SubAmount(uint256.NewInt(1), uint256.NewInt(2))
	require.ErrorIs(t, err, ErrEscrowUnderflow)

	sum, err := AddAmount(uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum.Uint64())

	half, err := Portion(uint256.MustFromDecimal("500000000000000000"), 50, 100)
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", half.Dec())

	truncated, err := Portion(uint256.NewInt(7), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), truncated.Uint64())

	_, err = Portion(uint256.NewInt(7), 1, 0)
	require.ErrorIs(t, err, ErrInvalidPercentage)
	_, err = Portion(uint256.NewInt(7), 101, 100)
	require.ErrorIs(t, err, ErrInvalidPercentage)
	_, err = Portion(max, 2, 3)
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrNotFound, Kind(ErrTicketNotFound))
	assert.Equal(t, ErrStateConflict, Kind(ErrEventStarted))
	assert.Equal(t, ErrValueMismatch, Kind(ErrPaymentMismatch))
	assert.Equal(t, ErrUnauthorized, Kind(ErrSignerNotAllowed))
	assert.Nil(t, Kind(assert.AnError))
}
