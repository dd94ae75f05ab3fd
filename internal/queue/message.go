// Package queue forwards committed ledger receipts to RabbitMQ and reads
// them back.
package queue

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/ledger"
)

// DefaultQueue is the durable queue receipts are published to.
const DefaultQueue = "ledger.receipts"

// ReceiptMessage is the JSON body of a published receipt. Amounts are
// decimal strings of wei.
type ReceiptMessage struct {
	ID         string       `json:"id"`
	Seq        uint64       `json:"seq"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Method     string       `json:"method"`
	Value      string       `json:"value"`
	Logs       []ledger.Log `json:"logs"`
	ExecutedAt time.Time    `json:"executed_at"`
}

func NewReceiptMessage(r ledger.Receipt) ReceiptMessage {
	value := "0"
	if r.Value != nil {
		value = r.Value.Dec()
	}
	logs := r.Logs
	if logs == nil {
		logs = []ledger.Log{}
	}
	return ReceiptMessage{
		ID:         r.ID.String(),
		Seq:        r.Seq,
		From:       r.From.Hex(),
		To:         r.To.Hex(),
		Method:     r.Method,
		Value:      value,
		Logs:       logs,
		ExecutedAt: r.ExecutedAt.UTC(),
	}
}

// Receipt converts the message back into the receipt it was built from.
func (m ReceiptMessage) Receipt() (ledger.Receipt, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("receipt %d id: %w", m.Seq, err)
	}
	if !common.IsHexAddress(m.From) || !common.IsHexAddress(m.To) {
		return ledger.Receipt{}, fmt.Errorf("receipt %d: malformed address", m.Seq)
	}
	value, err := uint256.FromDecimal(m.Value)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("receipt %d value %q: %w", m.Seq, m.Value, err)
	}
	return ledger.Receipt{
		ID:         id,
		Seq:        m.Seq,
		From:       common.HexToAddress(m.From),
		To:         common.HexToAddress(m.To),
		Method:     m.Method,
		Value:      value,
		Logs:       m.Logs,
		ExecutedAt: m.ExecutedAt,
	}, nil
}
