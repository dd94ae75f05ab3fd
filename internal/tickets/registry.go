// Package tickets implements the per-event ticket registry. Ownership only
// changes through a marketplace resale; there is no transfer primitive.
package tickets

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/access"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

type Registry struct {
	access.Managed

	self    common.Address
	name    string
	symbol  string
	tickets map[uint64]*domain.Ticket
	owned   map[common.Address][]uint64
	nextID  uint64
}

func New(self, owner common.Address, name, symbol string, perms *access.Registry) *Registry {
	return &Registry{
		Managed: access.NewManaged(owner, perms),
		self:    self,
		name:    name,
		symbol:  symbol,
		tickets: make(map[uint64]*domain.Ticket),
		owned:   make(map[common.Address][]uint64),
	}
}

// Deploy creates a ticket registry owned by deployer.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer common.Address, name, symbol string, perms *access.Registry) *Registry {
	r, _ := ledger.Deploy(ctx, l, deployer, func(self common.Address) *Registry {
		return New(self, deployer, name, symbol, perms)
	})
	return r
}

func (r *Registry) Address() common.Address { return r.self }
func (r *Registry) Name() string            { return r.name }
func (r *Registry) Symbol() string          { return r.symbol }

// CreateTicket mints a ticket for owner at initialPrice.
func (r *Registry) CreateTicket(ctx context.Context, call ledger.Call, owner common.Address, initialPrice *uint256.Int, share, shareMax uint64) (uint64, error) {
	perms, err := r.Permissions()
	if err != nil {
		return 0, err
	}
	if err := perms.RequirePrivileged(call.Sender, domain.RoleMarketplace, domain.CanSellTickets); err != nil {
		return 0, err
	}
	if shareMax == 0 {
		return 0, domain.ErrInvalidPercentage
	}
	if share > shareMax {
		return 0, fmt.Errorf("share %d of %d: %w", share, shareMax, domain.ErrShareExceedsMax)
	}
	if err := r.requireHolder(perms, owner); err != nil {
		return 0, err
	}

	id := r.nextID
	r.nextID++
	r.tickets[id] = &domain.Ticket{
		ID:                id,
		Owner:             owner,
		ResellProfitShare: share,
		PercentageAbsMax:  shareMax,
		InitialPrice:      initialPrice.Clone(),
		PreviousPrice:     initialPrice.Clone(),
		ResalePrice:       new(uint256.Int),
	}
	ledger.OnRevert(ctx, func() {
		delete(r.tickets, id)
		r.nextID = id
	})
	r.addOwned(ctx, owner, id)

	r.emit(ctx, "TicketCreated", id, map[string]string{
		"owner":         owner.Hex(),
		"initial_price": initialPrice.Dec(),
	})
	return id, nil
}

// SetResalePrice lists the ticket at price, or unlists it when price is zero.
func (r *Registry) SetResalePrice(ctx context.Context, call ledger.Call, id uint64, price *uint256.Int) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	if call.Sender != t.Owner {
		return domain.ErrNotTicketOwner
	}
	if price == nil {
		price = new(uint256.Int)
	}
	if !price.IsZero() && price.Lt(t.PreviousPrice) {
		return fmt.Errorf("resale at %s, paid %s: %w", price.Dec(), t.PreviousPrice.Dec(), domain.ErrResaleBelowPrice)
	}

	r.mutate(ctx, t, func(t *domain.Ticket) { t.ResalePrice = price.Clone() })
	r.emit(ctx, "ResalePriceSet", id, map[string]string{"price": price.Dec()})
	return nil
}

// ResellTicket hands a listed ticket to newOwner. The listing price becomes
// the new previous price and the listing is cleared.
func (r *Registry) ResellTicket(ctx context.Context, call ledger.Call, id uint64, newOwner common.Address) error {
	perms, err := r.Permissions()
	if err != nil {
		return err
	}
	if err := perms.RequirePrivileged(call.Sender, domain.RoleMarketplace, domain.CanSellTickets); err != nil {
		return err
	}
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !t.ForResale() {
		return fmt.Errorf("ticket %d: %w", id, domain.ErrTicketNotListed)
	}
	if err := r.requireHolder(perms, newOwner); err != nil {
		return err
	}

	prevOwner := t.Owner
	r.removeOwned(ctx, prevOwner, id)
	r.addOwned(ctx, newOwner, id)
	r.mutate(ctx, t, func(t *domain.Ticket) {
		t.Owner = newOwner
		t.PreviousPrice = t.ResalePrice
		t.ResalePrice = new(uint256.Int)
	})

	r.emit(ctx, "TicketResold", id, map[string]string{
		"from":  prevOwner.Hex(),
		"to":    newOwner.Hex(),
		"price": t.PreviousPrice.Dec(),
	})
	return nil
}

// BurnTicket deletes a ticket that must still belong to expectedOwner.
func (r *Registry) BurnTicket(ctx context.Context, call ledger.Call, expectedOwner common.Address, id uint64) error {
	perms, err := r.Permissions()
	if err != nil {
		return err
	}
	if err := perms.RequirePrivileged(call.Sender, domain.RoleMarketplace, domain.CanBurnTickets); err != nil {
		return err
	}
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	if t.Owner != expectedOwner {
		return domain.ErrNotTicketOwner
	}

	delete(r.tickets, id)
	ledger.OnRevert(ctx, func() { r.tickets[id] = t })
	r.removeOwned(ctx, t.Owner, id)

	r.emit(ctx, "TicketBurned", id, map[string]string{"owner": t.Owner.Hex()})
	return nil
}

func (r *Registry) IsForResale(id uint64) (bool, error) {
	t, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return t.ForResale(), nil
}

// CustomerTicketIDs returns the ids owned by owner in the order acquired.
func (r *Registry) CustomerTicketIDs(owner common.Address) []uint64 {
	return slices.Clone(r.owned[owner])
}

// Ticket returns a copy of the ticket record.
func (r *Registry) Ticket(id uint64) (domain.Ticket, error) {
	t, err := r.lookup(id)
	if err != nil {
		return domain.Ticket{}, err
	}
	return t.Clone(), nil
}

func (r *Registry) Exists(id uint64) bool {
	_, ok := r.tickets[id]
	return ok
}

func (r *Registry) OwnerOf(id uint64) (common.Address, error) {
	t, err := r.lookup(id)
	if err != nil {
		return common.Address{}, err
	}
	return t.Owner, nil
}

func (r *Registry) lookup(id uint64) (*domain.Ticket, error) {
	t, ok := r.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %d: %w", id, domain.ErrTicketNotFound)
	}
	return t, nil
}

func (r *Registry) requireHolder(perms *access.Registry, owner common.Address) error {
	if owner == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if perms.IsComponent(owner) {
		return fmt.Errorf("%s: %w", owner.Hex(), domain.ErrComponentOwnership)
	}
	return nil
}

// The index slices are never modified in place, so a rejected operation can
// put the previous slice back.
func (r *Registry) addOwned(ctx context.Context, owner common.Address, id uint64) {
	prev := r.owned[owner]
	r.setOwned(ctx, owner, append(slices.Clone(prev), id))
}

func (r *Registry) removeOwned(ctx context.Context, owner common.Address, id uint64) {
	prev := r.owned[owner]
	next := slices.DeleteFunc(slices.Clone(prev), func(v uint64) bool { return v == id })
	r.setOwned(ctx, owner, next)
}

func (r *Registry) setOwned(ctx context.Context, owner common.Address, ids []uint64) {
	prev, had := r.owned[owner]
	if len(ids) == 0 {
		delete(r.owned, owner)
	} else {
		r.owned[owner] = ids
	}
	ledger.OnRevert(ctx, func() {
		if had {
			r.owned[owner] = prev
		} else {
			delete(r.owned, owner)
		}
	})
}

func (r *Registry) mutate(ctx context.Context, t *domain.Ticket, fn func(t *domain.Ticket)) {
	prev := *t
	fn(t)
	ledger.OnRevert(ctx, func() { *t = prev })
}

func (r *Registry) emit(ctx context.Context, name string, id uint64, attrs map[string]string) {
	attrs["ticket_id"] = strconv.FormatUint(id, 10)
	ledger.Emit(ctx, ledger.Log{Component: r.self, Name: name, Attrs: attrs})
}
