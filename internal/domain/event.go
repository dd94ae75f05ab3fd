package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is the inventory and escrow ledger of one ticketed event.
type Event struct {
	ID             uint64
	Owner          common.Address
	TicketsAmount  uint64
	SoldTickets    uint64
	CollectedFunds *uint256.Int
	StartTime      time.Time
}

// Available returns the number of tickets that can still be sold.
func (e Event) Available() uint64 {
	return e.TicketsAmount - e.SoldTickets
}

// HasStarted reports whether the event start time is at or before now.
func (e Event) HasStarted(now time.Time) bool {
	return !now.Before(e.StartTime)
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	e.CollectedFunds = e.CollectedFunds.Clone()
	return e
}
