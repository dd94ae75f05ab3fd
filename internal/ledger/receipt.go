package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Receipt describes a committed operation.
type Receipt struct {
	ID         uuid.UUID
	Seq        uint64
	From       common.Address
	To         common.Address
	Method     string
	Value      *uint256.Int
	Logs       []Log
	ExecutedAt time.Time
}

// Observer is notified of every committed operation, in commit order, after
// the ledger lock has been released.
type Observer interface {
	ObserveReceipt(ctx context.Context, receipt Receipt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, receipt Receipt)

func (f ObserverFunc) ObserveReceipt(ctx context.Context, receipt Receipt) {
	f(ctx, receipt)
}
