package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/access"
	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/distributor"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/events"
	"github.com/cimillas/ticket-ledger/internal/ledger"
	"github.com/cimillas/ticket-ledger/internal/marketplace"
	"github.com/cimillas/ticket-ledger/internal/tickets"
)

// ReceiptSink stores or forwards committed receipts.
type ReceiptSink interface {
	SaveReceipt(ctx context.Context, receipt ledger.Receipt) error
}

// OperationRecorder is told about every submitted operation.
type OperationRecorder interface {
	RecordOperation(method string, duration time.Duration, err error)
}

// marketplaceCapabilities are granted to the marketplace at bootstrap.
var marketplaceCapabilities = []domain.Capability{
	domain.CanAddEvents,
	domain.CanSellTickets,
	domain.CanMakeRefund,
	domain.CanBurnTickets,
	domain.CanDistributeFunds,
}

// Node runs the marketplace components on one ledger and exposes every
// external operation as a single ledger operation.
type Node struct {
	ledger   *ledger.Ledger
	logger   *slog.Logger
	recorder OperationRecorder
	sinks    []ReceiptSink

	admin  common.Address
	perms  *access.Registry
	events *events.Registry
	dist   *distributor.Distributor
	market *marketplace.Marketplace
}

type NodeOption func(*Node)

func WithLogger(logger *slog.Logger) NodeOption {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithRecorder reports every operation to rec.
func WithRecorder(rec OperationRecorder) NodeOption {
	return func(n *Node) { n.recorder = rec }
}

// WithReceiptSink hands every committed receipt to sink.
func WithReceiptSink(sink ReceiptSink) NodeOption {
	return func(n *Node) {
		if sink != nil {
			n.sinks = append(n.sinks, sink)
		}
	}
}

// WithObserver subscribes o to committed receipts.
func WithObserver(o ledger.Observer) NodeOption {
	return func(n *Node) { n.ledger.Subscribe(o) }
}

// NewNode deploys the permission registry, event registry, distributor and
// marketplace, binds their roles and applies the genesis, all in one
// operation sent by the genesis administrator.
func NewNode(ctx context.Context, clk clock.Clock, genesis Genesis, opts ...NodeOption) (*Node, error) {
	state, err := genesis.resolve()
	if err != nil {
		return nil, err
	}

	n := &Node{
		ledger: ledger.New(clk),
		logger: slog.Default(),
		admin:  state.admin,
	}
	for _, opt := range opts {
		opt(n)
	}
	if len(n.sinks) > 0 {
		n.ledger.Subscribe(ledger.ObserverFunc(n.forward))
	}

	msg := ledger.Message{From: state.admin, Method: "bootstrap"}
	_, err = n.ledger.Execute(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		n.perms = access.Deploy(ctx, n.ledger, state.admin)
		n.events = events.Deploy(ctx, n.ledger, state.admin, n.perms)
		n.dist = distributor.Deploy(ctx, n.ledger, state.admin, n.perms)
		n.market = marketplace.Deploy(ctx, n.ledger, state.admin, n.perms)

		call.Self = n.perms.Address()
		roles := []struct {
			role domain.Role
			id   common.Address
		}{
			{domain.RoleEvent, n.events.Address()},
			{domain.RoleMarketplace, n.market.Address()},
			{domain.RoleDistributor, n.dist.Address()},
		}
		for _, r := range roles {
			if err := n.perms.RegisterRole(ctx, call, r.role, r.id); err != nil {
				return err
			}
		}
		for _, c := range marketplaceCapabilities {
			if err := n.perms.SetCapability(ctx, call, n.market.Address(), c, true); err != nil {
				return err
			}
		}
		for id, caps := range state.grants {
			for _, c := range caps {
				if err := n.perms.SetCapability(ctx, call, id, c, true); err != nil {
					return err
				}
			}
		}
		for id, amount := range state.balances {
			if err := n.ledger.Credit(ctx, id, amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	n.logger.Info("node bootstrapped",
		"admin", state.admin.Hex(),
		"permissions", n.perms.Address().Hex(),
		"events", n.events.Address().Hex(),
		"distributor", n.dist.Address().Hex(),
		"marketplace", n.market.Address().Hex(),
	)
	return n, nil
}

// Ledger returns the underlying ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Components lists the addresses of the singleton components.
type Components struct {
	Permissions common.Address `json:"permissions"`
	Events      common.Address `json:"events"`
	Distributor common.Address `json:"distributor"`
	Marketplace common.Address `json:"marketplace"`
}

func (n *Node) Components() Components {
	return Components{
		Permissions: n.perms.Address(),
		Events:      n.events.Address(),
		Distributor: n.dist.Address(),
		Marketplace: n.market.Address(),
	}
}

type CreateEventInput struct {
	Name          string
	Symbol        string
	TicketsAmount uint64
	StartTime     time.Time
}

type CreatedEvent struct {
	ID      uint64
	Tickets common.Address
}

// CreateEvent adds an event owned by caller through the marketplace.
func (n *Node) CreateEvent(ctx context.Context, caller common.Address, in CreateEventInput) (CreatedEvent, error) {
	var out CreatedEvent
	msg := ledger.Message{From: caller, To: n.market.Address(), Method: "addNewEvent"}
	err := n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		id, reg, err := n.market.AddNewEvent(ctx, call, marketplace.NewEventInput{
			Name:          in.Name,
			Symbol:        in.Symbol,
			TicketsAmount: in.TicketsAmount,
			StartTime:     in.StartTime,
		})
		out = CreatedEvent{ID: id, Tickets: reg}
		return err
	})
	return out, err
}

type UpdateEventInput struct {
	EventID       uint64
	TicketsAmount uint64
	StartTime     time.Time
}

// UpdateEvent changes capacity and start time. Only the event owner may.
func (n *Node) UpdateEvent(ctx context.Context, caller common.Address, in UpdateEventInput) error {
	msg := ledger.Message{From: caller, To: n.events.Address(), Method: "updateEvent"}
	return n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		return n.events.UpdateEvent(ctx, call, in.EventID, in.TicketsAmount, in.StartTime)
	})
}

// BuyTicket buys a ticket from the organizer, attaching value.
func (n *Node) BuyTicket(ctx context.Context, caller common.Address, value *uint256.Int, in marketplace.PrimarySaleInput) (uint64, error) {
	var ticketID uint64
	msg := ledger.Message{From: caller, To: n.market.Address(), Value: value, Method: "buyTicketFromOrganizer"}
	err := n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		var err error
		ticketID, err = n.market.BuyTicketFromOrganizer(ctx, call, in)
		return err
	})
	return ticketID, err
}

// BuyResale buys a listed ticket from its owner, attaching value.
func (n *Node) BuyResale(ctx context.Context, caller common.Address, value *uint256.Int, eventID, ticketID uint64) (distributor.Split, error) {
	var split distributor.Split
	msg := ledger.Message{From: caller, To: n.market.Address(), Value: value, Method: "buyTicketFromReseller"}
	err := n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		var err error
		split, err = n.market.BuyTicketFromReseller(ctx, call, eventID, ticketID)
		return err
	})
	return split, err
}

// SetResalePrice lists or unlists a ticket. Only the ticket owner may.
func (n *Node) SetResalePrice(ctx context.Context, caller common.Address, eventID, ticketID uint64, price *uint256.Int) error {
	var reg *tickets.Registry
	n.ledger.Read(func(time.Time) {
		reg, _ = ledger.ResolveAs[*tickets.Registry](n.ledger, n.perms.TicketRegistryOf(eventID))
	})
	if reg == nil {
		return fmt.Errorf("event %d: %w", eventID, domain.ErrRegistryNotFound)
	}

	msg := ledger.Message{From: caller, To: reg.Address(), Method: "setResalePrice"}
	return n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		return reg.SetResalePrice(ctx, call, ticketID, price)
	})
}

// Refund returns part of a ticket's price to its owner and burns the ticket.
func (n *Node) Refund(ctx context.Context, caller common.Address, in marketplace.RefundInput) (*uint256.Int, error) {
	var amount *uint256.Int
	msg := ledger.Message{From: caller, To: n.market.Address(), Method: "refund"}
	err := n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		var err error
		amount, err = n.market.Refund(ctx, call, in)
		return err
	})
	return amount, err
}

// WithdrawEventFunds pays the escrow of a started event to its owner.
func (n *Node) WithdrawEventFunds(ctx context.Context, caller common.Address, eventID uint64) (*uint256.Int, error) {
	var amount *uint256.Int
	msg := ledger.Message{From: caller, To: n.market.Address(), Method: "withdrawEventFunds"}
	err := n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		var err error
		amount, err = n.market.WithdrawEventFunds(ctx, call, eventID)
		return err
	})
	return amount, err
}

// SetCapability grants or revokes a capability. Only the administrator may.
func (n *Node) SetCapability(ctx context.Context, caller, id common.Address, c domain.Capability, enabled bool) error {
	msg := ledger.Message{From: caller, To: n.perms.Address(), Method: "setCapability"}
	return n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		return n.perms.SetCapability(ctx, call, id, c, enabled)
	})
}

// RegisterRole binds a role. Only the administrator may.
func (n *Node) RegisterRole(ctx context.Context, caller common.Address, role domain.Role, id common.Address) error {
	msg := ledger.Message{From: caller, To: n.perms.Address(), Method: "registerRole"}
	return n.submit(ctx, msg, func(ctx context.Context, call ledger.Call) error {
		return n.perms.RegisterRole(ctx, call, role, id)
	})
}

// EventView is an event as seen at the time of the read.
type EventView struct {
	domain.Event
	Tickets   common.Address
	Available uint64
	Started   bool
}

func (n *Node) Event(eventID uint64) (EventView, error) {
	var (
		view EventView
		err  error
	)
	n.ledger.Read(func(now time.Time) {
		var ev domain.Event
		ev, err = n.events.Event(eventID)
		if err != nil {
			return
		}
		view = EventView{
			Event:     ev,
			Tickets:   n.perms.TicketRegistryOf(eventID),
			Available: ev.Available(),
			Started:   ev.HasStarted(now),
		}
	})
	return view, err
}

func (n *Node) Ticket(eventID, ticketID uint64) (domain.Ticket, error) {
	var (
		tk  domain.Ticket
		err error
	)
	n.ledger.Read(func(time.Time) {
		var reg *tickets.Registry
		reg, err = n.ticketsOf(eventID)
		if err != nil {
			return
		}
		tk, err = reg.Ticket(ticketID)
	})
	return tk, err
}

// CustomerTickets lists the tickets owner holds for an event.
func (n *Node) CustomerTickets(eventID uint64, owner common.Address) ([]uint64, error) {
	var (
		ids []uint64
		err error
	)
	n.ledger.Read(func(time.Time) {
		var reg *tickets.Registry
		reg, err = n.ticketsOf(eventID)
		if err != nil {
			return
		}
		ids = reg.CustomerTicketIDs(owner)
	})
	return ids, err
}

func (n *Node) Balance(addr common.Address) *uint256.Int {
	var bal *uint256.Int
	n.ledger.Read(func(time.Time) { bal = n.ledger.BalanceOf(addr) })
	return bal
}

// Status reports whether the components are initialized.
type Status struct {
	Height      uint64 `json:"height"`
	Marketplace bool   `json:"marketplace"`
	Events      bool   `json:"events"`
	Distributor bool   `json:"distributor"`
}

func (n *Node) Status() Status {
	var s Status
	n.ledger.Read(func(time.Time) {
		s = Status{
			Marketplace: n.market.IsInitialized(),
			Events:      n.events.IsInitialized(),
			Distributor: n.dist.IsInitialized(),
		}
	})
	s.Height = n.ledger.Height()
	return s
}

func (n *Node) ticketsOf(eventID uint64) (*tickets.Registry, error) {
	if !n.events.Exists(eventID) {
		return nil, fmt.Errorf("event %d: %w", eventID, domain.ErrEventNotFound)
	}
	reg, ok := ledger.ResolveAs[*tickets.Registry](n.ledger, n.perms.TicketRegistryOf(eventID))
	if !ok {
		return nil, fmt.Errorf("event %d: %w", eventID, domain.ErrRegistryNotFound)
	}
	return reg, nil
}

func (n *Node) submit(ctx context.Context, msg ledger.Message, fn func(ctx context.Context, call ledger.Call) error) error {
	start := time.Now()
	receipt, err := n.ledger.Execute(ctx, msg, fn)
	elapsed := time.Since(start)
	if n.recorder != nil {
		n.recorder.RecordOperation(msg.Method, elapsed, err)
	}
	if err != nil {
		n.logger.Debug("operation rejected",
			"method", msg.Method,
			"from", msg.From.Hex(),
			"err", err,
		)
		return err
	}
	n.logger.Info("operation committed",
		"method", msg.Method,
		"from", msg.From.Hex(),
		"seq", receipt.Seq,
		"logs", len(receipt.Logs),
		"duration", elapsed,
	)
	return nil
}

func (n *Node) forward(ctx context.Context, receipt ledger.Receipt) {
	for _, sink := range n.sinks {
		if err := sink.SaveReceipt(ctx, receipt); err != nil {
			n.logger.Warn("receipt sink failed",
				"receipt", receipt.ID.String(),
				"seq", receipt.Seq,
				"err", err,
			)
		}
	}
}
