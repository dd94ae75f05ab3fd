// Package distributor splits resale payments between the event organizer and
// the seller.
package distributor

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/access"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

// EventReader is the part of the event registry the distributor needs.
type EventReader interface {
	Event(id uint64) (domain.Event, error)
}

// TicketReader is the part of a ticket registry the distributor needs.
type TicketReader interface {
	Ticket(id uint64) (domain.Ticket, error)
}

// Split is how one resale payment was divided.
type Split struct {
	Organizer      common.Address
	OrganizerShare *uint256.Int
	Seller         common.Address
	SellerShare    *uint256.Int
}

type Distributor struct {
	access.Managed

	self   common.Address
	ledger *ledger.Ledger
}

func New(l *ledger.Ledger, self, owner common.Address, perms *access.Registry) *Distributor {
	return &Distributor{
		Managed: access.NewManaged(owner, perms),
		self:    self,
		ledger:  l,
	}
}

// Deploy creates a distributor owned by deployer.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer common.Address, perms *access.Registry) *Distributor {
	d, _ := ledger.Deploy(ctx, l, deployer, func(self common.Address) *Distributor {
		return New(l, self, deployer, perms)
	})
	return d
}

func (d *Distributor) Address() common.Address { return d.self }

// IsInitialized reports whether the Distributor role is bound to this component.
func (d *Distributor) IsInitialized() bool {
	perms := d.Registry()
	return perms != nil && perms.RoleHolder(domain.RoleDistributor) == d.self
}

// DistributeResaleFunds pays the attached resale price out: the organizer
// gets its share of the profit over the previous price, the current owner
// gets the rest.
func (d *Distributor) DistributeResaleFunds(ctx context.Context, call ledger.Call, eventID, ticketID uint64) (Split, error) {
	perms, err := d.Permissions()
	if err != nil {
		return Split{}, err
	}
	if err := perms.RequirePrivileged(call.Sender, domain.RoleMarketplace, domain.CanDistributeFunds); err != nil {
		return Split{}, err
	}

	events, err := d.events(perms)
	if err != nil {
		return Split{}, err
	}
	ev, err := events.Event(eventID)
	if err != nil {
		return Split{}, err
	}
	tickets, err := d.tickets(perms, eventID)
	if err != nil {
		return Split{}, err
	}
	tk, err := tickets.Ticket(ticketID)
	if err != nil {
		return Split{}, err
	}
	if !tk.ForResale() {
		return Split{}, fmt.Errorf("ticket %d: %w", ticketID, domain.ErrTicketNotListed)
	}
	if !call.Value.Eq(tk.ResalePrice) {
		return Split{}, fmt.Errorf("resale price %s, attached %s: %w", tk.ResalePrice.Dec(), call.Value.Dec(), domain.ErrPaymentMismatch)
	}

	profit := new(uint256.Int)
	if tk.ResalePrice.Gt(tk.PreviousPrice) {
		profit.Sub(tk.ResalePrice, tk.PreviousPrice)
	}
	organizerShare, err := domain.Portion(profit, tk.ResellProfitShare, tk.PercentageAbsMax)
	if err != nil {
		return Split{}, err
	}
	sellerShare, err := domain.SubAmount(tk.ResalePrice, organizerShare)
	if err != nil {
		return Split{}, err
	}

	split := Split{
		Organizer:      ev.Owner,
		OrganizerShare: organizerShare,
		Seller:         tk.Owner,
		SellerShare:    sellerShare,
	}
	ledger.Emit(ctx, ledger.Log{
		Component: d.self,
		Name:      "ResaleFundsDistributed",
		Attrs: map[string]string{
			"event_id":        fmt.Sprint(eventID),
			"ticket_id":       fmt.Sprint(ticketID),
			"organizer":       split.Organizer.Hex(),
			"organizer_share": organizerShare.Dec(),
			"seller":          split.Seller.Hex(),
			"seller_share":    sellerShare.Dec(),
		},
	})

	if err := d.ledger.Transfer(ctx, d.self, split.Organizer, organizerShare); err != nil {
		return Split{}, err
	}
	if err := d.ledger.Transfer(ctx, d.self, split.Seller, sellerShare); err != nil {
		return Split{}, err
	}
	return split, nil
}

func (d *Distributor) events(perms *access.Registry) (EventReader, error) {
	addr := perms.RoleHolder(domain.RoleEvent)
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%s: %w", domain.RoleEvent, domain.ErrRoleNotBound)
	}
	events, ok := ledger.ResolveAs[EventReader](d.ledger, addr)
	if !ok {
		return nil, fmt.Errorf("event registry %s: %w", addr.Hex(), domain.ErrComponentNotFound)
	}
	return events, nil
}

func (d *Distributor) tickets(perms *access.Registry, eventID uint64) (TicketReader, error) {
	addr := perms.TicketRegistryOf(eventID)
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("event %d: %w", eventID, domain.ErrRegistryNotFound)
	}
	tickets, ok := ledger.ResolveAs[TicketReader](d.ledger, addr)
	if !ok {
		return nil, fmt.Errorf("ticket registry %s: %w", addr.Hex(), domain.ErrComponentNotFound)
	}
	return tickets, nil
}
