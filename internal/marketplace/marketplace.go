// Package marketplace is the entry point buyers and organizers talk to. It
// checks signed authorizations and drives the event registry, the per-event
// ticket registries and the funds distributor within one operation.
package marketplace

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/access"
	"github.com/cimillas/ticket-ledger/internal/authsig"
	"github.com/cimillas/ticket-ledger/internal/distributor"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
	"github.com/cimillas/ticket-ledger/internal/tickets"
)

// EventLedger is what the marketplace needs from the component bound to the
// Event role.
type EventLedger interface {
	CreateEvent(ctx context.Context, call ledger.Call, ticketsAmount uint64, startTime time.Time) (uint64, error)
	UpdateSoldTickets(ctx context.Context, call ledger.Call, id uint64, delta int64) error
	RecordSale(ctx context.Context, call ledger.Call, id uint64, amount *uint256.Int) error
	RecordRefundDebit(ctx context.Context, call ledger.Call, id uint64, amount *uint256.Int) error
	WithdrawCollectedFunds(ctx context.Context, call ledger.Call, id uint64) (*uint256.Int, error)
	Event(id uint64) (domain.Event, error)
}

// TicketLedger is what the marketplace needs from a ticket registry.
type TicketLedger interface {
	CreateTicket(ctx context.Context, call ledger.Call, owner common.Address, initialPrice *uint256.Int, share, shareMax uint64) (uint64, error)
	ResellTicket(ctx context.Context, call ledger.Call, id uint64, newOwner common.Address) error
	BurnTicket(ctx context.Context, call ledger.Call, expectedOwner common.Address, id uint64) error
	Ticket(id uint64) (domain.Ticket, error)
}

// FundsSplitter is what the marketplace needs from the component bound to the
// Distributor role.
type FundsSplitter interface {
	DistributeResaleFunds(ctx context.Context, call ledger.Call, eventID, ticketID uint64) (distributor.Split, error)
}

type NewEventInput struct {
	Name          string
	Symbol        string
	TicketsAmount uint64
	StartTime     time.Time
}

type PrimarySaleInput struct {
	EventID           uint64
	ResellProfitShare uint64
	PercentageAbsMax  uint64
	Seat              [3]uint64
	InitialPrice      *uint256.Int
	Signature         authsig.Signature
}

type RefundInput struct {
	EventID          uint64
	TicketID         uint64
	RefundPercentage uint64
	PercentageAbsMax uint64
	Signature        authsig.Signature
}

type Marketplace struct {
	access.Managed

	self   common.Address
	ledger *ledger.Ledger
}

func New(l *ledger.Ledger, self, owner common.Address, perms *access.Registry) *Marketplace {
	return &Marketplace{
		Managed: access.NewManaged(owner, perms),
		self:    self,
		ledger:  l,
	}
}

// Deploy creates a marketplace owned by deployer.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer common.Address, perms *access.Registry) *Marketplace {
	m, _ := ledger.Deploy(ctx, l, deployer, func(self common.Address) *Marketplace {
		return New(l, self, deployer, perms)
	})
	return m
}

func (m *Marketplace) Address() common.Address { return m.self }

// IsInitialized reports whether all three roles are bound, with the
// Marketplace role bound to this component.
func (m *Marketplace) IsInitialized() bool {
	perms := m.Registry()
	if perms == nil {
		return false
	}
	return perms.RoleHolder(domain.RoleEvent) != (common.Address{}) &&
		perms.RoleHolder(domain.RoleDistributor) != (common.Address{}) &&
		perms.RoleHolder(domain.RoleMarketplace) == m.self
}

// AddNewEvent creates an event owned by the caller together with its ticket
// registry.
func (m *Marketplace) AddNewEvent(ctx context.Context, call ledger.Call, in NewEventInput) (uint64, common.Address, error) {
	if call.HasValue() {
		return 0, common.Address{}, domain.ErrPaymentMismatch
	}
	perms, err := m.Permissions()
	if err != nil {
		return 0, common.Address{}, err
	}
	events, eventsAddr, err := resolveRole[EventLedger](m, perms, domain.RoleEvent)
	if err != nil {
		return 0, common.Address{}, err
	}

	ecall, err := m.ledger.Invoke(ctx, call, eventsAddr, nil)
	if err != nil {
		return 0, common.Address{}, err
	}
	id, err := events.CreateEvent(ctx, ecall, in.TicketsAmount, in.StartTime)
	if err != nil {
		return 0, common.Address{}, err
	}

	reg := tickets.Deploy(ctx, m.ledger, m.self, in.Name, in.Symbol, perms)
	pcall, err := m.ledger.Invoke(ctx, call, perms.Address(), nil)
	if err != nil {
		return 0, common.Address{}, err
	}
	if err := perms.RegisterEventTickets(ctx, pcall, id, reg.Address()); err != nil {
		return 0, common.Address{}, err
	}

	ledger.Emit(ctx, ledger.Log{
		Component: m.self,
		Name:      "EventAdded",
		Attrs: map[string]string{
			"event_id": strconv.FormatUint(id, 10),
			"owner":    call.Origin.Hex(),
			"tickets":  reg.Address().Hex(),
			"symbol":   in.Symbol,
		},
	})
	return id, reg.Address(), nil
}

// BuyTicketFromOrganizer sells one ticket on terms approved by a signer with
// sign-transaction. The attached value must equal the initial price and goes
// to the event escrow.
func (m *Marketplace) BuyTicketFromOrganizer(ctx context.Context, call ledger.Call, in PrimarySaleInput) (uint64, error) {
	perms, err := m.Permissions()
	if err != nil {
		return 0, err
	}
	price := in.InitialPrice
	if price == nil {
		price = new(uint256.Int)
	}

	terms := authsig.SaleTerms{
		Buyer:             call.Sender,
		EventID:           in.EventID,
		ResellProfitShare: in.ResellProfitShare,
		PercentageAbsMax:  in.PercentageAbsMax,
		Seat:              in.Seat,
		InitialPrice:      price,
	}
	if err := m.requireSigner(perms, terms.Preimage(), in.Signature); err != nil {
		return 0, err
	}
	if !call.Value.Eq(price) {
		return 0, fmt.Errorf("price %s, attached %s: %w", price.Dec(), call.Value.Dec(), domain.ErrPaymentMismatch)
	}

	events, eventsAddr, err := resolveRole[EventLedger](m, perms, domain.RoleEvent)
	if err != nil {
		return 0, err
	}
	ev, err := events.Event(in.EventID)
	if err != nil {
		return 0, err
	}
	if ev.HasStarted(call.Now) {
		return 0, domain.ErrEventStarted
	}
	if ev.Available() == 0 {
		return 0, fmt.Errorf("event %d: %w", in.EventID, domain.ErrSoldOut)
	}
	tix, ticketsAddr, err := m.ticketsOf(perms, in.EventID)
	if err != nil {
		return 0, err
	}

	ecall, err := m.ledger.Invoke(ctx, call, eventsAddr, nil)
	if err != nil {
		return 0, err
	}
	if err := events.UpdateSoldTickets(ctx, ecall, in.EventID, 1); err != nil {
		return 0, err
	}
	scall, err := m.ledger.Invoke(ctx, call, eventsAddr, price)
	if err != nil {
		return 0, err
	}
	if err := events.RecordSale(ctx, scall, in.EventID, price); err != nil {
		return 0, err
	}
	tcall, err := m.ledger.Invoke(ctx, call, ticketsAddr, nil)
	if err != nil {
		return 0, err
	}
	ticketID, err := tix.CreateTicket(ctx, tcall, call.Sender, price, in.ResellProfitShare, in.PercentageAbsMax)
	if err != nil {
		return 0, err
	}

	ledger.Emit(ctx, ledger.Log{
		Component: m.self,
		Name:      "TicketPurchased",
		Attrs: map[string]string{
			"event_id":  strconv.FormatUint(in.EventID, 10),
			"ticket_id": strconv.FormatUint(ticketID, 10),
			"buyer":     call.Sender.Hex(),
			"price":     price.Dec(),
		},
	})
	return ticketID, nil
}

// BuyTicketFromReseller buys a listed ticket. The distributor splits the
// attached value, then ownership moves to the caller.
func (m *Marketplace) BuyTicketFromReseller(ctx context.Context, call ledger.Call, eventID, ticketID uint64) (distributor.Split, error) {
	perms, err := m.Permissions()
	if err != nil {
		return distributor.Split{}, err
	}
	events, _, err := resolveRole[EventLedger](m, perms, domain.RoleEvent)
	if err != nil {
		return distributor.Split{}, err
	}
	if _, err := events.Event(eventID); err != nil {
		return distributor.Split{}, err
	}
	tix, ticketsAddr, err := m.ticketsOf(perms, eventID)
	if err != nil {
		return distributor.Split{}, err
	}
	tk, err := tix.Ticket(ticketID)
	if err != nil {
		return distributor.Split{}, err
	}
	if !tk.ForResale() {
		return distributor.Split{}, fmt.Errorf("ticket %d: %w", ticketID, domain.ErrTicketNotListed)
	}
	if !call.Value.Eq(tk.ResalePrice) {
		return distributor.Split{}, fmt.Errorf("resale price %s, attached %s: %w", tk.ResalePrice.Dec(), call.Value.Dec(), domain.ErrPaymentMismatch)
	}
	splitter, splitterAddr, err := resolveRole[FundsSplitter](m, perms, domain.RoleDistributor)
	if err != nil {
		return distributor.Split{}, err
	}

	dcall, err := m.ledger.Invoke(ctx, call, splitterAddr, call.Value)
	if err != nil {
		return distributor.Split{}, err
	}
	split, err := splitter.DistributeResaleFunds(ctx, dcall, eventID, ticketID)
	if err != nil {
		return distributor.Split{}, err
	}
	tcall, err := m.ledger.Invoke(ctx, call, ticketsAddr, nil)
	if err != nil {
		return distributor.Split{}, err
	}
	if err := tix.ResellTicket(ctx, tcall, ticketID, call.Sender); err != nil {
		return distributor.Split{}, err
	}
	return split, nil
}

// Refund burns the caller's ticket and pays back refundPercentage of what was
// paid for it out of the event escrow.
func (m *Marketplace) Refund(ctx context.Context, call ledger.Call, in RefundInput) (*uint256.Int, error) {
	if call.HasValue() {
		return nil, domain.ErrPaymentMismatch
	}
	perms, err := m.Permissions()
	if err != nil {
		return nil, err
	}
	if err := perms.RequireCapability(m.self, domain.CanMakeRefund); err != nil {
		return nil, err
	}

	terms := authsig.RefundTerms{
		Caller:           call.Sender,
		EventID:          in.EventID,
		TicketID:         in.TicketID,
		RefundPercentage: in.RefundPercentage,
		PercentageAbsMax: in.PercentageAbsMax,
	}
	if err := m.requireSigner(perms, terms.Preimage(), in.Signature); err != nil {
		return nil, err
	}

	events, eventsAddr, err := resolveRole[EventLedger](m, perms, domain.RoleEvent)
	if err != nil {
		return nil, err
	}
	ev, err := events.Event(in.EventID)
	if err != nil {
		return nil, err
	}
	if ev.HasStarted(call.Now) {
		return nil, domain.ErrEventStarted
	}
	tix, ticketsAddr, err := m.ticketsOf(perms, in.EventID)
	if err != nil {
		return nil, err
	}
	tk, err := tix.Ticket(in.TicketID)
	if err != nil {
		return nil, err
	}
	if tk.Owner != call.Sender {
		return nil, domain.ErrNotTicketOwner
	}
	amount, err := domain.Portion(tk.PreviousPrice, in.RefundPercentage, in.PercentageAbsMax)
	if err != nil {
		return nil, err
	}
	if amount.Gt(ev.CollectedFunds) {
		return nil, fmt.Errorf("refund %s, escrow %s: %w", amount.Dec(), ev.CollectedFunds.Dec(), domain.ErrEscrowUnderflow)
	}

	ecall, err := m.ledger.Invoke(ctx, call, eventsAddr, nil)
	if err != nil {
		return nil, err
	}
	if err := events.UpdateSoldTickets(ctx, ecall, in.EventID, -1); err != nil {
		return nil, err
	}
	if err := events.RecordRefundDebit(ctx, ecall, in.EventID, amount); err != nil {
		return nil, err
	}
	tcall, err := m.ledger.Invoke(ctx, call, ticketsAddr, nil)
	if err != nil {
		return nil, err
	}
	if err := tix.BurnTicket(ctx, tcall, call.Sender, in.TicketID); err != nil {
		return nil, err
	}

	ledger.Emit(ctx, ledger.Log{
		Component: m.self,
		Name:      "TicketRefunded",
		Attrs: map[string]string{
			"event_id":  strconv.FormatUint(in.EventID, 10),
			"ticket_id": strconv.FormatUint(in.TicketID, 10),
			"caller":    call.Sender.Hex(),
			"amount":    amount.Dec(),
		},
	})
	if err := m.ledger.Transfer(ctx, m.self, call.Sender, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// WithdrawEventFunds pays the escrow of a started event to its owner. The
// caller must be the owner and hold update-event.
func (m *Marketplace) WithdrawEventFunds(ctx context.Context, call ledger.Call, eventID uint64) (*uint256.Int, error) {
	if call.HasValue() {
		return nil, domain.ErrPaymentMismatch
	}
	perms, err := m.Permissions()
	if err != nil {
		return nil, err
	}
	if err := perms.RequireCapability(call.Sender, domain.CanUpdateEvent); err != nil {
		return nil, err
	}
	events, eventsAddr, err := resolveRole[EventLedger](m, perms, domain.RoleEvent)
	if err != nil {
		return nil, err
	}

	ecall, err := m.ledger.Invoke(ctx, call, eventsAddr, nil)
	if err != nil {
		return nil, err
	}
	return events.WithdrawCollectedFunds(ctx, ecall, eventID)
}

func (m *Marketplace) requireSigner(perms *access.Registry, preimage []byte, sig authsig.Signature) error {
	signer, err := authsig.Recover(preimage, sig)
	if err != nil {
		return err
	}
	if !perms.HasCapability(signer, domain.CanSignTransaction) {
		return fmt.Errorf("%s: %w", signer.Hex(), domain.ErrSignerNotAllowed)
	}
	return nil
}

func (m *Marketplace) ticketsOf(perms *access.Registry, eventID uint64) (TicketLedger, common.Address, error) {
	addr := perms.TicketRegistryOf(eventID)
	if addr == (common.Address{}) {
		return nil, common.Address{}, fmt.Errorf("event %d: %w", eventID, domain.ErrRegistryNotFound)
	}
	tix, ok := ledger.ResolveAs[TicketLedger](m.ledger, addr)
	if !ok {
		return nil, common.Address{}, fmt.Errorf("ticket registry %s: %w", addr.Hex(), domain.ErrComponentNotFound)
	}
	return tix, addr, nil
}

// resolveRole finds the component currently bound to role.
func resolveRole[T any](m *Marketplace, perms *access.Registry, role domain.Role) (T, common.Address, error) {
	var zero T
	addr := perms.RoleHolder(role)
	if addr == (common.Address{}) {
		return zero, common.Address{}, fmt.Errorf("%s: %w", role, domain.ErrRoleNotBound)
	}
	c, ok := ledger.ResolveAs[T](m.ledger, addr)
	if !ok {
		return zero, common.Address{}, fmt.Errorf("%s component %s: %w", role, addr.Hex(), domain.ErrComponentNotFound)
	}
	return c, addr, nil
}
