package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
	"github.com/cimillas/ticket-ledger/internal/testutil"
)

func makeReceipt(seq uint64, method string, from common.Address, logs ...ledger.Log) ledger.Receipt {
	return ledger.Receipt{
		ID:         uuid.New(),
		Seq:        seq,
		From:       from,
		To:         common.HexToAddress("0xbeef"),
		Method:     method,
		Value:      uint256.MustFromDecimal("500000000000000000"),
		Logs:       logs,
		ExecutedAt: time.Date(2025, 1, 1, 12, 0, int(seq), 0, time.UTC),
	}
}

func TestReceiptRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewReceiptRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	alice := common.HexToAddress("0xa11ce")
	bob := common.HexToAddress("0xb0b")

	t.Run("SaveReceipt persists logs and GetReceipt returns them", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		want := makeReceipt(0, "buyTicketFromOrganizer", alice,
			ledger.Log{Component: common.HexToAddress("0x01"), Name: "TicketsSold", Attrs: map[string]string{"event_id": "0"}},
			ledger.Log{Component: common.HexToAddress("0x02"), Name: "TicketCreated"},
		)
		if err := repo.SaveReceipt(ctx, want); err != nil {
			t.Fatalf("save receipt: %v", err)
		}

		got, err := repo.GetReceipt(ctx, 0)
		if err != nil {
			t.Fatalf("get receipt: %v", err)
		}
		if got.ID != want.ID || got.From != alice || got.Method != want.Method {
			t.Fatalf("unexpected receipt: %+v", got)
		}
		if got.Value.Cmp(want.Value) != 0 {
			t.Fatalf("expected value %s, got %s", want.Value.Dec(), got.Value.Dec())
		}
		if !got.ExecutedAt.Equal(want.ExecutedAt) {
			t.Fatalf("expected executed_at %v, got %v", want.ExecutedAt, got.ExecutedAt)
		}
		if len(got.Logs) != 2 || got.Logs[0].Name != "TicketsSold" || got.Logs[1].Name != "TicketCreated" {
			t.Fatalf("unexpected logs: %+v", got.Logs)
		}
		if got.Logs[0].Attrs["event_id"] != "0" {
			t.Fatalf("expected event_id attr, got %+v", got.Logs[0].Attrs)
		}
	})

	t.Run("SaveReceipt rejects duplicates without partial writes", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		rec := makeReceipt(1, "refund", alice, ledger.Log{Name: "TicketBurned"})
		if err := repo.SaveReceipt(ctx, rec); err != nil {
			t.Fatalf("save receipt: %v", err)
		}

		dup := makeReceipt(1, "refund", bob, ledger.Log{Name: "Other"})
		err := repo.SaveReceipt(ctx, dup)
		if !errors.Is(err, domain.ErrReceiptExists) {
			t.Fatalf("expected ErrReceiptExists, got %v", err)
		}

		var logs int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM receipt_logs`).Scan(&logs); err != nil {
			t.Fatalf("count logs: %v", err)
		}
		if logs != 1 {
			t.Fatalf("expected 1 log row, got %d", logs)
		}
	})

	t.Run("GetReceipt returns ErrReceiptNotFound", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, err := repo.GetReceipt(ctx, 42)
		if !errors.Is(err, domain.ErrReceiptNotFound) {
			t.Fatalf("expected ErrReceiptNotFound, got %v", err)
		}
	})

	t.Run("ListReceipts filters and orders by seq", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		for _, rec := range []ledger.Receipt{
			makeReceipt(2, "refund", alice),
			makeReceipt(0, "addNewEvent", bob),
			makeReceipt(1, "refund", bob),
			makeReceipt(3, "refund", alice),
		} {
			if err := repo.SaveReceipt(ctx, rec); err != nil {
				t.Fatalf("save receipt %d: %v", rec.Seq, err)
			}
		}

		all, err := repo.ListReceipts(ctx, ReceiptFilter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != 4 || all[0].Seq != 0 || all[3].Seq != 3 {
			t.Fatalf("unexpected order: %+v", all)
		}

		refunds, err := repo.ListReceipts(ctx, ReceiptFilter{Method: "refund", From: alice})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(refunds) != 2 || refunds[0].Seq != 2 || refunds[1].Seq != 3 {
			t.Fatalf("unexpected filtered receipts: %+v", refunds)
		}

		page, err := repo.ListReceipts(ctx, ReceiptFilter{FromSeq: 1, Limit: 2})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page) != 2 || page[0].Seq != 1 {
			t.Fatalf("unexpected page: %+v", page)
		}

		latest, ok, err := repo.LatestSeq(ctx)
		if err != nil || !ok || latest != 3 {
			t.Fatalf("expected latest seq 3, got %d %v %v", latest, ok, err)
		}
	})

	t.Run("LatestSeq on an empty table", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, ok, err := repo.LatestSeq(ctx)
		if err != nil || ok {
			t.Fatalf("expected no receipts, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Reset empties the archive", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.SaveReceipt(ctx, makeReceipt(0, "bootstrap", alice, ledger.Log{Name: "RoleRegistered"})); err != nil {
			t.Fatalf("save receipt: %v", err)
		}
		if err := repo.Reset(ctx); err != nil {
			t.Fatalf("reset: %v", err)
		}
		if _, ok, err := repo.LatestSeq(ctx); err != nil || ok {
			t.Fatalf("expected an empty archive, got ok=%v err=%v", ok, err)
		}
		if err := repo.SaveReceipt(ctx, makeReceipt(0, "bootstrap", alice)); err != nil {
			t.Fatalf("save after reset: %v", err)
		}
	})
}
