package distributor

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-ledger/internal/access"
	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/events"
	"github.com/cimillas/ticket-ledger/internal/ledger"
	"github.com/cimillas/ticket-ledger/internal/tickets"
)

var (
	admin     = common.HexToAddress("0xad")
	market    = common.HexToAddress("0x3a")
	organizer = common.HexToAddress("0x0c")
	alice     = common.HexToAddress("0xa11ce")
	now       = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	halfEther = uint256.MustFromDecimal("500000000000000000")
	resale    = uint256.MustFromDecimal("600000000000000000")
)

type fixture struct {
	l       *ledger.Ledger
	perms   *access.Registry
	events  *events.Registry
	tickets *tickets.Registry
	dist    *Distributor
}

// setup wires a sold ticket 0 of event 0, owned by alice and listed at 0.6.
func setup(t *testing.T, share, shareMax uint64) *fixture {
	t.Helper()

	f := &fixture{l: ledger.New(clock.NewFixed(now))}
	_, err := f.l.Execute(context.Background(), ledger.Message{From: admin}, func(ctx context.Context, call ledger.Call) error {
		f.perms = access.Deploy(ctx, f.l, admin)
		f.events = events.Deploy(ctx, f.l, admin, f.perms)
		f.dist = Deploy(ctx, f.l, admin, f.perms)
		f.tickets = tickets.Deploy(ctx, f.l, admin, "Concert", "CNC", f.perms)

		bindings := map[domain.Role]common.Address{
			domain.RoleEvent:       f.events.Address(),
			domain.RoleMarketplace: market,
			domain.RoleDistributor: f.dist.Address(),
		}
		for role, id := range bindings {
			if err := f.perms.RegisterRole(ctx, call, role, id); err != nil {
				return err
			}
		}
		for _, c := range []domain.Capability{domain.CanAddEvents, domain.CanSellTickets, domain.CanDistributeFunds} {
			if err := f.perms.SetCapability(ctx, call, market, c, true); err != nil {
				return err
			}
		}
		if err := f.perms.RegisterEventTickets(ctx, call, 0, f.tickets.Address()); err != nil {
			return err
		}
		return f.l.Credit(ctx, market, uint256.MustFromDecimal("1000000000000000000"))
	})
	require.NoError(t, err)

	_, err = f.l.Execute(context.Background(), ledger.Message{From: market}, func(ctx context.Context, call ledger.Call) error {
		call.Origin = organizer
		if _, err := f.events.CreateEvent(ctx, call, 10, now.Add(time.Hour)); err != nil {
			return err
		}
		_, err := f.tickets.CreateTicket(ctx, call, alice, halfEther, share, shareMax)
		return err
	})
	require.NoError(t, err)

	_, err = f.l.Execute(context.Background(), ledger.Message{From: alice}, func(ctx context.Context, call ledger.Call) error {
		return f.tickets.SetResalePrice(ctx, call, 0, resale)
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) distribute(value *uint256.Int, eventID uint64) (Split, error) {
	var split Split
	msg := ledger.Message{From: market, To: f.dist.Address(), Value: value}
	_, err := f.l.Execute(context.Background(), msg, func(ctx context.Context, call ledger.Call) error {
		var err error
		split, err = f.dist.DistributeResaleFunds(ctx, call, eventID, 0)
		return err
	})
	return split, err
}

func TestDistributeResaleFunds(t *testing.T) {
	t.Parallel()

	t.Run("organizer gets its share of the profit", func(t *testing.T) {
		f := setup(t, 10, 100)
		assert.True(t, f.dist.IsInitialized())

		split, err := f.distribute(resale, 0)
		require.NoError(t, err)

		// (0.6 - 0.5) * 10 / 100
		wantOrganizer := uint256.MustFromDecimal("10000000000000000")
		wantSeller := uint256.MustFromDecimal("590000000000000000")
		assert.Equal(t, organizer, split.Organizer)
		assert.Equal(t, alice, split.Seller)
		assert.Equal(t, wantOrganizer.Dec(), split.OrganizerShare.Dec())
		assert.Equal(t, wantSeller.Dec(), split.SellerShare.Dec())

		assert.Equal(t, wantOrganizer.Dec(), f.l.BalanceOf(organizer).Dec())
		assert.Equal(t, wantSeller.Dec(), f.l.BalanceOf(alice).Dec())
		assert.True(t, f.l.BalanceOf(f.dist.Address()).IsZero())
	})

	t.Run("no profit share when nothing is owed", func(t *testing.T) {
		f := setup(t, 0, 100)
		split, err := f.distribute(resale, 0)
		require.NoError(t, err)
		assert.True(t, split.OrganizerShare.IsZero())
		assert.Equal(t, resale.Dec(), split.SellerShare.Dec())
	})

	t.Run("attached value must equal the resale price", func(t *testing.T) {
		f := setup(t, 10, 100)
		_, err := f.distribute(halfEther, 0)
		require.ErrorIs(t, err, domain.ErrPaymentMismatch)
		assert.True(t, f.l.BalanceOf(alice).IsZero())
		assert.Equal(t, "1000000000000000000", f.l.BalanceOf(market).Dec())
	})

	t.Run("event without a ticket registry", func(t *testing.T) {
		f := setup(t, 10, 100)
		_, err := f.l.Execute(context.Background(), ledger.Message{From: market}, func(ctx context.Context, call ledger.Call) error {
			_, err := f.events.CreateEvent(ctx, call, 10, now.Add(time.Hour))
			return err
		})
		require.NoError(t, err)

		_, err = f.distribute(resale, 1)
		require.ErrorIs(t, err, domain.ErrRegistryNotFound)
		_, err = f.distribute(resale, 7)
		require.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("requires distribute-funds", func(t *testing.T) {
		f := setup(t, 10, 100)
		_, err := f.l.Execute(context.Background(), ledger.Message{From: admin}, func(ctx context.Context, call ledger.Call) error {
			return f.perms.SetCapability(ctx, call, market, domain.CanDistributeFunds, false)
		})
		require.NoError(t, err)

		_, err = f.distribute(resale, 0)
		require.ErrorIs(t, err, domain.ErrMissingCapability)
	})

	t.Run("requires the marketplace", func(t *testing.T) {
		f := setup(t, 10, 100)
		_, err := f.dist.DistributeResaleFunds(context.Background(), ledger.CallFrom(alice, f.dist.Address(), now), 0, 0)
		require.ErrorIs(t, err, domain.ErrCallerNotRole)
	})
}
