// Package events keeps the inventory and escrow of every event. Sale
// proceeds are held at the registry's own identity until the organizer
// withdraws them.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/access"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

type Registry struct {
	access.Managed

	self   common.Address
	ledger *ledger.Ledger
	events []*domain.Event
}

func New(l *ledger.Ledger, self, owner common.Address, perms *access.Registry) *Registry {
	return &Registry{
		Managed: access.NewManaged(owner, perms),
		self:    self,
		ledger:  l,
	}
}

// Deploy creates an event registry owned by deployer.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer common.Address, perms *access.Registry) *Registry {
	r, _ := ledger.Deploy(ctx, l, deployer, func(self common.Address) *Registry {
		return New(l, self, deployer, perms)
	})
	return r
}

func (r *Registry) Address() common.Address { return r.self }

// IsInitialized reports whether a permission registry is set and the Event
// role is bound to this registry.
func (r *Registry) IsInitialized() bool {
	perms := r.Registry()
	return perms != nil && perms.RoleHolder(domain.RoleEvent) == r.self
}

// CreateEvent records a new event owned by the operation's initiator.
func (r *Registry) CreateEvent(ctx context.Context, call ledger.Call, ticketsAmount uint64, startTime time.Time) (uint64, error) {
	perms, err := r.Permissions()
	if err != nil {
		return 0, err
	}
	if err := perms.RequirePrivileged(call.Sender, domain.RoleMarketplace, domain.CanAddEvents); err != nil {
		return 0, err
	}
	if ticketsAmount == 0 {
		return 0, domain.ErrInvalidQuantity
	}
	if !startTime.After(call.Now) {
		return 0, domain.ErrInvalidStartTime
	}

	id := uint64(len(r.events))
	r.events = append(r.events, &domain.Event{
		ID:             id,
		Owner:          call.Origin,
		TicketsAmount:  ticketsAmount,
		CollectedFunds: new(uint256.Int),
		StartTime:      startTime.UTC(),
	})
	ledger.OnRevert(ctx, func() { r.events = r.events[:id] })

	r.emit(ctx, "EventCreated", id, map[string]string{
		"owner":          call.Origin.Hex(),
		"tickets_amount": strconv.FormatUint(ticketsAmount, 10),
		"start_time":     startTime.UTC().Format(time.RFC3339),
	})
	return id, nil
}

// UpdateEvent lets the owner change capacity and start time before the event starts.
func (r *Registry) UpdateEvent(ctx context.Context, call ledger.Call, id, ticketsAmount uint64, startTime time.Time) error {
	perms, err := r.Permissions()
	if err != nil {
		return err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}
	if r.actor(perms, call) != ev.Owner {
		return domain.ErrNotEventOwner
	}
	if ev.HasStarted(call.Now) {
		return domain.ErrEventStarted
	}
	if ticketsAmount == 0 {
		return domain.ErrInvalidQuantity
	}
	if ticketsAmount < ev.SoldTickets {
		return fmt.Errorf("update event %d to %d tickets, %d sold: %w", id, ticketsAmount, ev.SoldTickets, domain.ErrCapacityBelowSold)
	}
	if !startTime.After(call.Now) {
		return domain.ErrInvalidStartTime
	}

	r.mutate(ctx, ev, func(ev *domain.Event) {
		ev.TicketsAmount = ticketsAmount
		ev.StartTime = startTime.UTC()
	})
	r.emit(ctx, "EventUpdated", id, map[string]string{
		"tickets_amount": strconv.FormatUint(ticketsAmount, 10),
		"start_time":     startTime.UTC().Format(time.RFC3339),
	})
	return nil
}

// UpdateStartTime moves the start time without the owner checks. Only the
// marketplace may call it.
func (r *Registry) UpdateStartTime(ctx context.Context, call ledger.Call, id uint64, startTime time.Time) error {
	if err := r.requireMarketplace(call); err != nil {
		return err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}

	r.mutate(ctx, ev, func(ev *domain.Event) { ev.StartTime = startTime.UTC() })
	r.emit(ctx, "StartTimeUpdated", id, map[string]string{"start_time": startTime.UTC().Format(time.RFC3339)})
	return nil
}

// UpdateSoldTickets adds delta to the sold count. Only the marketplace may
// call it.
func (r *Registry) UpdateSoldTickets(ctx context.Context, call ledger.Call, id uint64, delta int64) error {
	if err := r.requireMarketplace(call); err != nil {
		return err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}
	sold, err := r.adjustSold(ctx, ev, delta)
	if err != nil {
		return err
	}
	r.emit(ctx, "SoldTicketsUpdated", id, map[string]string{"sold_tickets": strconv.FormatUint(sold, 10)})
	return nil
}

// SellTickets records the primary sale of quantity tickets. The attached
// value goes to the event escrow.
func (r *Registry) SellTickets(ctx context.Context, call ledger.Call, id, quantity uint64) error {
	perms, err := r.Permissions()
	if err != nil {
		return err
	}
	if err := perms.RequirePrivileged(call.Sender, domain.RoleMarketplace, domain.CanSellTickets); err != nil {
		return err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}
	if ev.HasStarted(call.Now) {
		return domain.ErrEventStarted
	}
	if quantity == 0 {
		return domain.ErrInvalidQuantity
	}
	if quantity > ev.Available() {
		return fmt.Errorf("sell %d tickets of event %d, %d left: %w", quantity, id, ev.Available(), domain.ErrSoldOut)
	}
	if _, err := r.adjustSold(ctx, ev, int64(quantity)); err != nil {
		return err
	}
	if err := r.credit(ctx, ev, call.Value); err != nil {
		return err
	}
	r.emit(ctx, "TicketsSold", id, map[string]string{
		"quantity": strconv.FormatUint(quantity, 10),
		"amount":   call.Value.Dec(),
	})
	return nil
}

// RefundTickets returns quantity tickets to inventory and pays amount from
// the escrow back to the marketplace.
func (r *Registry) RefundTickets(ctx context.Context, call ledger.Call, id, quantity uint64, amount *uint256.Int) error {
	perms, err := r.Permissions()
	if err != nil {
		return err
	}
	if err := perms.RequirePrivileged(call.Sender, domain.RoleMarketplace, domain.CanMakeRefund); err != nil {
		return err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}
	if ev.HasStarted(call.Now) {
		return domain.ErrEventStarted
	}
	if quantity == 0 || quantity > ev.SoldTickets {
		return fmt.Errorf("refund %d tickets of event %d, %d sold: %w", quantity, id, ev.SoldTickets, domain.ErrInvalidQuantity)
	}
	if _, err := r.adjustSold(ctx, ev, -int64(quantity)); err != nil {
		return err
	}
	if err := r.debit(ctx, call, ev, amount); err != nil {
		return err
	}
	r.emit(ctx, "TicketsRefunded", id, map[string]string{
		"quantity": strconv.FormatUint(quantity, 10),
		"amount":   amount.Dec(),
	})
	return nil
}

// RecordSale credits the attached value to the event escrow. The value must
// equal amount.
func (r *Registry) RecordSale(ctx context.Context, call ledger.Call, id uint64, amount *uint256.Int) error {
	if err := r.requireMarketplace(call); err != nil {
		return err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !call.Value.Eq(amount) {
		return fmt.Errorf("record sale of %s with %s attached: %w", amount.Dec(), call.Value.Dec(), domain.ErrPaymentMismatch)
	}
	if err := r.credit(ctx, ev, amount); err != nil {
		return err
	}
	r.emit(ctx, "SaleRecorded", id, map[string]string{"amount": amount.Dec()})
	return nil
}

// RecordRefundDebit takes amount out of the event escrow and hands it to the
// marketplace.
func (r *Registry) RecordRefundDebit(ctx context.Context, call ledger.Call, id uint64, amount *uint256.Int) error {
	if err := r.requireMarketplace(call); err != nil {
		return err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := r.debit(ctx, call, ev, amount); err != nil {
		return err
	}
	r.emit(ctx, "RefundDebited", id, map[string]string{"amount": amount.Dec()})
	return nil
}

// adjustSold moves the sold count of ev by delta, keeping it between zero
// and the event's capacity, and returns the new count.
func (r *Registry) adjustSold(ctx context.Context, ev *domain.Event, delta int64) (uint64, error) {
	sold := ev.SoldTickets
	switch {
	case delta < 0:
		dec := uint64(-delta)
		if dec > sold {
			return 0, fmt.Errorf("sold tickets of event %d below zero: %w", ev.ID, domain.ErrInvalidQuantity)
		}
		sold -= dec
	case delta > 0:
		inc := uint64(delta)
		if inc > ev.Available() {
			return 0, fmt.Errorf("sold tickets of event %d above capacity: %w", ev.ID, domain.ErrCapacityBelowSold)
		}
		sold += inc
	}
	r.mutate(ctx, ev, func(ev *domain.Event) { ev.SoldTickets = sold })
	return sold, nil
}

// credit adds amount to the escrow of ev. The value itself must already sit
// on the registry's balance.
func (r *Registry) credit(ctx context.Context, ev *domain.Event, amount *uint256.Int) error {
	collected, err := domain.AddAmount(ev.CollectedFunds, amount)
	if err != nil {
		return err
	}
	r.mutate(ctx, ev, func(ev *domain.Event) { ev.CollectedFunds = collected })
	return nil
}

// debit takes amount out of the escrow of ev and pays it to the caller.
func (r *Registry) debit(ctx context.Context, call ledger.Call, ev *domain.Event, amount *uint256.Int) error {
	collected, err := domain.SubAmount(ev.CollectedFunds, amount)
	if err != nil {
		return err
	}
	r.mutate(ctx, ev, func(ev *domain.Event) { ev.CollectedFunds = collected })
	return r.ledger.Transfer(ctx, r.self, call.Sender, amount)
}

// WithdrawCollectedFunds pays the whole escrow to the owner once the event
// has started.
func (r *Registry) WithdrawCollectedFunds(ctx context.Context, call ledger.Call, id uint64) (*uint256.Int, error) {
	perms, err := r.Permissions()
	if err != nil {
		return nil, err
	}
	ev, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if r.actor(perms, call) != ev.Owner {
		return nil, domain.ErrNotEventOwner
	}
	if !ev.HasStarted(call.Now) {
		return nil, domain.ErrEventNotStarted
	}
	if ev.CollectedFunds.IsZero() {
		return nil, domain.ErrNothingToWithdraw
	}

	amount := ev.CollectedFunds
	r.mutate(ctx, ev, func(ev *domain.Event) { ev.CollectedFunds = new(uint256.Int) })
	r.emit(ctx, "FundsWithdrawn", id, map[string]string{
		"owner":  ev.Owner.Hex(),
		"amount": amount.Dec(),
	})
	if err := r.ledger.Transfer(ctx, r.self, ev.Owner, amount); err != nil {
		return nil, err
	}
	return amount.Clone(), nil
}

// Event returns a copy of the event record.
func (r *Registry) Event(id uint64) (domain.Event, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return domain.Event{}, err
	}
	return ev.Clone(), nil
}

func (r *Registry) Exists(id uint64) bool {
	return id < uint64(len(r.events))
}

// Count returns the number of events ever created.
func (r *Registry) Count() uint64 {
	return uint64(len(r.events))
}

func (r *Registry) AvailableTickets(id uint64) (uint64, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	return ev.Available(), nil
}

func (r *Registry) HasStarted(id uint64, now time.Time) (bool, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return ev.HasStarted(now), nil
}

// CollectedFunds returns the escrow of an event. It is only disclosed once
// the event has started.
func (r *Registry) CollectedFunds(id uint64, now time.Time) (*uint256.Int, error) {
	ev, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !ev.HasStarted(now) {
		return nil, domain.ErrEventNotStarted
	}
	return ev.CollectedFunds.Clone(), nil
}

func (r *Registry) lookup(id uint64) (*domain.Event, error) {
	if !r.Exists(id) {
		return nil, fmt.Errorf("event %d: %w", id, domain.ErrEventNotFound)
	}
	return r.events[id], nil
}

func (r *Registry) requireMarketplace(call ledger.Call) error {
	perms, err := r.Permissions()
	if err != nil {
		return err
	}
	return perms.RequireRole(call.Sender, domain.RoleMarketplace)
}

// actor is the identity owner checks apply to. Calls relayed by the
// marketplace act for the operation's initiator.
func (r *Registry) actor(perms *access.Registry, call ledger.Call) common.Address {
	if mp := perms.RoleHolder(domain.RoleMarketplace); mp != (common.Address{}) && mp == call.Sender {
		return call.Origin
	}
	return call.Sender
}

// mutate applies fn to ev and restores the previous record if the operation
// is rejected. fn must replace amounts rather than modify them in place.
func (r *Registry) mutate(ctx context.Context, ev *domain.Event, fn func(ev *domain.Event)) {
	prev := *ev
	fn(ev)
	ledger.OnRevert(ctx, func() { *ev = prev })
}

func (r *Registry) emit(ctx context.Context, name string, id uint64, attrs map[string]string) {
	attrs["event_id"] = strconv.FormatUint(id, 10)
	ledger.Emit(ctx, ledger.Log{Component: r.self, Name: name, Attrs: attrs})
}
