package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Log is an event emitted by a component during an operation. Logs of a
// rejected operation are discarded together with its state changes.
type Log struct {
	Component common.Address    `json:"component"`
	Name      string            `json:"name"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

type txKey struct{}

type journal struct {
	undo []func()
	logs []Log
}

func journalFromContext(ctx context.Context) *journal {
	j, _ := ctx.Value(txKey{}).(*journal)
	return j
}

// InTransaction reports whether ctx carries an executing operation.
func InTransaction(ctx context.Context) bool {
	return journalFromContext(ctx) != nil
}

// OnRevert registers fn to undo a state change if the current operation is
// rejected. Outside an operation it does nothing.
func OnRevert(ctx context.Context, fn func()) {
	if j := journalFromContext(ctx); j != nil {
		j.undo = append(j.undo, fn)
	}
}

// Emit records a log for the current operation. Outside an operation it does nothing.
func Emit(ctx context.Context, log Log) {
	if j := journalFromContext(ctx); j != nil {
		j.logs = append(j.logs, log)
	}
}

func (j *journal) revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
	j.logs = nil
}
