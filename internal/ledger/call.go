package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Message is an externally submitted operation.
type Message struct {
	From   common.Address
	To     common.Address
	Value  *uint256.Int
	Method string
}

// Call is the execution context a component sees: who called it, on whose
// behalf, with how much value attached, and the ledger time of the operation.
type Call struct {
	Sender common.Address
	Origin common.Address
	Self   common.Address
	Value  *uint256.Int
	Now    time.Time
}

// CallFrom builds a top-level call as if from had sent a message straight to self.
// Tests and read paths use it; it moves no value.
func CallFrom(from, self common.Address, now time.Time) Call {
	return Call{
		Sender: from,
		Origin: from,
		Self:   self,
		Value:  new(uint256.Int),
		Now:    now,
	}
}

// HasValue reports whether value is attached to the call.
func (c Call) HasValue() bool {
	return c.Value != nil && !c.Value.IsZero()
}
