package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
)

const defaultListLimit = 100

// ReceiptRepository archives committed receipts and their logs.
type ReceiptRepository struct {
	pool *pgxpool.Pool
	db   conn
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool, db: conn{pool: pool}}
}

func (r *ReceiptRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// SaveReceipt stores a receipt with its logs. Storing a receipt twice returns
// domain.ErrReceiptExists.
func (r *ReceiptRepository) SaveReceipt(ctx context.Context, receipt ledger.Receipt) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		const insertReceipt = `
INSERT INTO receipts (id, seq, from_address, to_address, method, value, executed_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`

		value := "0"
		if receipt.Value != nil {
			value = receipt.Value.Dec()
		}
		_, err := r.db.exec(ctx, insertReceipt,
			receipt.ID.String(),
			int64(receipt.Seq),
			receipt.From.Hex(),
			receipt.To.Hex(),
			receipt.Method,
			value,
			receipt.ExecutedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("receipt %d: %w", receipt.Seq, domain.ErrReceiptExists)
			}
			return fmt.Errorf("insert receipt: %w", err)
		}

		const insertLog = `
INSERT INTO receipt_logs (receipt_id, position, component, name, attrs)
VALUES ($1, $2, $3, $4, $5)`
		for i, log := range receipt.Logs {
			attrs := log.Attrs
			if attrs == nil {
				attrs = map[string]string{}
			}
			if _, err := r.db.exec(ctx, insertLog, receipt.ID.String(), i, log.Component.Hex(), log.Name, attrs); err != nil {
				return fmt.Errorf("insert receipt log %d: %w", i, err)
			}
		}
		return nil
	})
}

// ReceiptFilter narrows ListReceipts. Zero fields do not filter.
type ReceiptFilter struct {
	Method  string
	From    common.Address
	FromSeq uint64
	Limit   int
}

// ListReceipts returns receipts in commit order.
func (r *ReceiptRepository) ListReceipts(ctx context.Context, f ReceiptFilter) ([]ledger.Receipt, error) {
	const query = `
SELECT id::text, seq, from_address, to_address, method, value::text, executed_at
FROM receipts
WHERE seq >= $1
  AND ($2 = '' OR method = $2)
  AND ($3 = '' OR from_address = $3)
ORDER BY seq
LIMIT $4`

	limit := f.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	from := ""
	if f.From != (common.Address{}) {
		from = f.From.Hex()
	}

	rows, err := r.db.query(ctx, query, int64(f.FromSeq), f.Method, from, limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	receipts, err := pgx.CollectRows(rows, scanReceipt)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	if err := r.attachLogs(ctx, receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

// GetReceipt returns the receipt committed at seq.
func (r *ReceiptRepository) GetReceipt(ctx context.Context, seq uint64) (ledger.Receipt, error) {
	const query = `
SELECT id::text, seq, from_address, to_address, method, value::text, executed_at
FROM receipts
WHERE seq = $1`

	rows, err := r.db.query(ctx, query, int64(seq))
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	receipt, err := pgx.CollectExactlyOneRow(rows, scanReceipt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Receipt{}, fmt.Errorf("receipt %d: %w", seq, domain.ErrReceiptNotFound)
		}
		return ledger.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	receipts := []ledger.Receipt{receipt}
	if err := r.attachLogs(ctx, receipts); err != nil {
		return ledger.Receipt{}, err
	}
	return receipts[0], nil
}

// LatestSeq returns the highest stored sequence number, and false when no
// receipt is stored.
func (r *ReceiptRepository) LatestSeq(ctx context.Context) (uint64, bool, error) {
	var seq *int64
	if err := r.db.queryRow(ctx, `SELECT MAX(seq) FROM receipts`).Scan(&seq); err != nil {
		return 0, false, fmt.Errorf("latest seq: %w", err)
	}
	if seq == nil {
		return 0, false, nil
	}
	return uint64(*seq), true, nil
}

// Reset removes every archived receipt.
func (r *ReceiptRepository) Reset(ctx context.Context) error {
	if _, err := r.db.exec(ctx, `TRUNCATE receipt_logs, receipts`); err != nil {
		return fmt.Errorf("reset receipts: %w", err)
	}
	return nil
}

func (r *ReceiptRepository) attachLogs(ctx context.Context, receipts []ledger.Receipt) error {
	if len(receipts) == 0 {
		return nil
	}
	ids := make([]string, len(receipts))
	index := make(map[string]int, len(receipts))
	for i, rec := range receipts {
		ids[i] = rec.ID.String()
		index[ids[i]] = i
	}

	const query = `
SELECT receipt_id::text, component, name, attrs
FROM receipt_logs
WHERE receipt_id = ANY($1::uuid[])
ORDER BY receipt_id, position`

	rows, err := r.db.query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("list receipt logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        string
			component string
			log       ledger.Log
		)
		if err := rows.Scan(&id, &component, &log.Name, &log.Attrs); err != nil {
			return fmt.Errorf("scan receipt log: %w", err)
		}
		log.Component = common.HexToAddress(component)
		i := index[id]
		receipts[i].Logs = append(receipts[i].Logs, log)
	}
	return rows.Err()
}

func scanReceipt(row pgx.CollectableRow) (ledger.Receipt, error) {
	var (
		id, from, to, value string
		seq                 int64
		rec                 ledger.Receipt
		executedAt          time.Time
	)
	if err := row.Scan(&id, &seq, &from, &to, &rec.Method, &value, &executedAt); err != nil {
		return ledger.Receipt{}, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("receipt id %q: %w", id, err)
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("receipt value %q: %w", value, err)
	}
	rec.ID = parsedID
	rec.Seq = uint64(seq)
	rec.From = common.HexToAddress(from)
	rec.To = common.HexToAddress(to)
	rec.Value = amount
	rec.ExecutedAt = executedAt.UTC()
	return rec, nil
}
