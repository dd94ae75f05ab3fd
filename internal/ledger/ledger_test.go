package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func fund(t *testing.T, l *Ledger, addr common.Address, amount uint64) {
	t.Helper()
	_, err := l.Execute(context.Background(), Message{Method: "fund"}, func(ctx context.Context, _ Call) error {
		return l.Credit(ctx, addr, uint256.NewInt(amount))
	})
	require.NoError(t, err)
}

type counter struct {
	self  common.Address
	value int
}

func TestExecute(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("commits value, state and logs", func(t *testing.T) {
		l := New(clock.NewFixed(now))
		fund(t, l, alice, 100)

		var got Call
		receipt, err := l.Execute(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(40), Method: "pay"},
			func(ctx context.Context, call Call) error {
				got = call
				Emit(ctx, Log{Component: bob, Name: "Paid", Attrs: map[string]string{"amount": call.Value.Dec()}})
				return nil
			})
		require.NoError(t, err)

		assert.Equal(t, alice, got.Sender)
		assert.Equal(t, alice, got.Origin)
		assert.Equal(t, bob, got.Self)
		assert.Equal(t, now, got.Now)
		assert.Equal(t, uint64(40), got.Value.Uint64())

		assert.Equal(t, uint64(60), l.BalanceOf(alice).Uint64())
		assert.Equal(t, uint64(40), l.BalanceOf(bob).Uint64())
		assert.Equal(t, uint64(1), receipt.Seq)
		assert.Equal(t, "pay", receipt.Method)
		require.Len(t, receipt.Logs, 1)
		assert.Equal(t, "40", receipt.Logs[0].Attrs["amount"])
		assert.Equal(t, uint64(2), l.Height())
	})

	t.Run("rejected operation leaves no trace", func(t *testing.T) {
		l := New(clock.NewFixed(now))
		fund(t, l, alice, 100)

		var deployed common.Address
		boom := errors.New("boom")
		_, err := l.Execute(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(30)},
			func(ctx context.Context, call Call) error {
				_, deployed = Deploy(ctx, l, bob, func(self common.Address) *counter { return &counter{self: self} })
				if err := l.Transfer(ctx, bob, alice, uint256.NewInt(10)); err != nil {
					return err
				}
				Emit(ctx, Log{Name: "Never"})
				return boom
			})
		require.ErrorIs(t, err, boom)

		assert.Equal(t, uint64(100), l.BalanceOf(alice).Uint64())
		assert.True(t, l.BalanceOf(bob).IsZero())
		assert.False(t, l.IsComponent(deployed))
		assert.Equal(t, uint64(1), l.Height())

		// The deployer nonce was rolled back, so the next deployment reuses the address.
		_, err = l.Execute(context.Background(), Message{From: alice}, func(ctx context.Context, _ Call) error {
			_, addr := Deploy(ctx, l, bob, func(self common.Address) *counter { return &counter{self: self} })
			assert.Equal(t, deployed, addr)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, l.IsComponent(deployed))
	})

	t.Run("insufficient balance rejects before running", func(t *testing.T) {
		l := New(clock.NewFixed(now))
		fund(t, l, alice, 5)

		ran := false
		_, err := l.Execute(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(6)},
			func(ctx context.Context, call Call) error {
				ran = true
				return nil
			})
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.False(t, ran)
		assert.Equal(t, uint64(5), l.BalanceOf(alice).Uint64())
	})

	t.Run("nested execute is rejected", func(t *testing.T) {
		l := New(clock.NewFixed(now))
		_, err := l.Execute(context.Background(), Message{From: alice}, func(ctx context.Context, _ Call) error {
			_, err := l.Execute(ctx, Message{From: alice}, func(context.Context, Call) error { return nil })
			return err
		})
		require.ErrorIs(t, err, ErrReentrant)
	})

	t.Run("panicking operation is rolled back and releases the ledger", func(t *testing.T) {
		l := New(clock.NewFixed(now))
		fund(t, l, alice, 100)

		assert.PanicsWithValue(t, "boom", func() {
			_, _ = l.Execute(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(30)},
				func(context.Context, Call) error { panic("boom") })
		})
		assert.Equal(t, uint64(100), l.BalanceOf(alice).Uint64())
		assert.True(t, l.BalanceOf(bob).IsZero())

		done := make(chan error, 1)
		go func() {
			_, err := l.Execute(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(10)},
				func(context.Context, Call) error { return nil })
			done <- err
		}()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("ledger still locked after a panicking operation")
		}
		assert.Equal(t, uint64(10), l.BalanceOf(bob).Uint64())
		assert.Equal(t, uint64(2), l.Height())
	})

	t.Run("observers see committed receipts only", func(t *testing.T) {
		l := New(clock.NewFixed(now))
		var seen []string
		l.Subscribe(ObserverFunc(func(_ context.Context, r Receipt) {
			seen = append(seen, r.Method)
		}))

		_, err := l.Execute(context.Background(), Message{Method: "ok"}, func(context.Context, Call) error { return nil })
		require.NoError(t, err)
		_, err = l.Execute(context.Background(), Message{Method: "fail"}, func(context.Context, Call) error {
			return errors.New("no")
		})
		require.Error(t, err)

		assert.Equal(t, []string{"ok"}, seen)
	})
}

func TestInvoke(t *testing.T) {
	t.Parallel()

	l := New(clock.NewFixed(time.Unix(1_700_000_000, 0)))
	fund(t, l, alice, 50)

	carol := common.HexToAddress("0xca401")
	_, err := l.Execute(context.Background(), Message{From: alice, To: bob, Value: uint256.NewInt(50)},
		func(ctx context.Context, call Call) error {
			nested, err := l.Invoke(ctx, call, carol, uint256.NewInt(20))
			if err != nil {
				return err
			}
			assert.Equal(t, bob, nested.Sender)
			assert.Equal(t, alice, nested.Origin)
			assert.Equal(t, carol, nested.Self)
			assert.Equal(t, uint64(20), nested.Value.Uint64())

			_, err = l.Invoke(ctx, call, carol, uint256.NewInt(31))
			return err
		})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, uint64(50), l.BalanceOf(alice).Uint64())
	assert.True(t, l.BalanceOf(bob).IsZero())
	assert.True(t, l.BalanceOf(carol).IsZero())
}

func TestOutsideTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.False(t, InTransaction(ctx))
	OnRevert(ctx, func() { t.Fatal("undo must not be recorded outside an operation") })
	Emit(ctx, Log{Name: "ignored"})
}
