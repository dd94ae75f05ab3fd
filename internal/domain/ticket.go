package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ticket is one sold seat and its resale terms.
type Ticket struct {
	ID                uint64
	Owner             common.Address
	ResellProfitShare uint64
	PercentageAbsMax  uint64
	InitialPrice      *uint256.Int
	PreviousPrice     *uint256.Int
	// ResalePrice is zero while the ticket is not listed.
	ResalePrice *uint256.Int
}

// ForResale reports whether the owner has listed the ticket.
func (t Ticket) ForResale() bool {
	return !t.ResalePrice.IsZero()
}

func (t Ticket) Clone() Ticket {
	t.InitialPrice = t.InitialPrice.Clone()
	t.PreviousPrice = t.PreviousPrice.Clone()
	t.ResalePrice = t.ResalePrice.Clone()
	return t
}
