package authsig

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// Well-known development key; its address is the buyer below.
const devKey = "c87509a1c067bbde78beb793e6fa76530b6382a4c0241e5e4a9ec0a0f44dc0d3"

var buyer = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")

func sale() SaleTerms {
	return SaleTerms{
		Buyer:             buyer,
		EventID:           0,
		ResellProfitShare: 10,
		PercentageAbsMax:  100,
		Seat:              [3]uint64{1, 12, 3},
		InitialPrice:      uint256.MustFromDecimal("500000000000000000"),
	}
}

func refund() RefundTerms {
	return RefundTerms{
		Caller:           buyer,
		EventID:          0,
		TicketID:         0,
		RefundPercentage: 50,
		PercentageAbsMax: 100,
	}
}

func TestPreimages(t *testing.T) {
	t.Parallel()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	salePre := sale().Preimage()
	assert.Len(t, salePre, 20+7*32)
	g.Assert(t, "sale_preimage", []byte(hex.EncodeToString(salePre)))

	refundPre := refund().Preimage()
	assert.Len(t, refundPre, 20+4*32)
	g.Assert(t, "refund_preimage", []byte(hex.EncodeToString(refundPre)))
}

func TestSignRecover(t *testing.T) {
	t.Parallel()

	key, err := crypto.HexToECDSA(devKey)
	require.NoError(t, err)
	require.Equal(t, buyer, crypto.PubkeyToAddress(key.PublicKey))

	pre := sale().Preimage()
	sig, err := Sign(pre, key)
	require.NoError(t, err)
	assert.Contains(t, []uint8{27, 28}, sig.V)

	t.Run("recovers the signer", func(t *testing.T) {
		got, err := Recover(pre, sig)
		require.NoError(t, err)
		assert.Equal(t, buyer, got)
	})

	t.Run("accepts a zero based recovery id", func(t *testing.T) {
		raw := sig
		raw.V -= 27
		got, err := Recover(pre, raw)
		require.NoError(t, err)
		assert.Equal(t, buyer, got)
	})

	t.Run("other terms recover someone else", func(t *testing.T) {
		terms := sale()
		terms.InitialPrice = uint256.NewInt(1)
		got, err := Recover(terms.Preimage(), sig)
		require.NoError(t, err)
		assert.NotEqual(t, buyer, got)
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		bad := sig
		bad.S = [32]byte{}
		_, err := Recover(pre, bad)
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
		require.ErrorIs(t, err, domain.ErrUnauthorized)

		bad = sig
		bad.V = 31
		_, err = Recover(pre, bad)
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("hex round trip", func(t *testing.T) {
		parsed, err := ParseSignature(sig.Hex())
		require.NoError(t, err)
		assert.Equal(t, sig, parsed)

		parsed, err = ParseSignature(sig.Hex()[2:])
		require.NoError(t, err)
		assert.Equal(t, sig, parsed)

		_, err = ParseSignature("0x1234")
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
		_, err = ParseSignature("0xzz")
		require.ErrorIs(t, err, domain.ErrInvalidSignature)
	})
}

func TestRefundSignature(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pre := refund().Preimage()
	sig, err := Sign(pre, key)
	require.NoError(t, err)

	got, err := Recover(pre, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), got)
}
