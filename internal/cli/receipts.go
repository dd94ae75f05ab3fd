package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
	"github.com/cimillas/ticket-ledger/internal/queue"
	"github.com/cimillas/ticket-ledger/internal/storage/postgres"
)

func NewReceiptsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Read archived and published receipts",
	}
	cmd.AddCommand(newReceiptsTailCommand(rootOpts))
	cmd.AddCommand(newReceiptsListCommand(rootOpts))
	return cmd
}

// receiptStore is what tail needs to archive consumed receipts.
type receiptStore interface {
	SaveReceipt(ctx context.Context, receipt ledger.Receipt) error
}

func newReceiptsTailCommand(rootOpts *RootOptions) *cobra.Command {
	var store bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print receipts as they are published",
		Long: `Consume the receipt queue and print one JSON receipt per line. With --store
each receipt is also archived in Postgres, so a separate process can keep the
archive while the node only publishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rootOpts.Config
			if cfg.AMQPURL == "" {
				return errors.New("LEDGER_AMQP_URL or --amqp-url is required")
			}
			logger := cfg.Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var sink receiptStore
			if store {
				dsn, err := requireDatabase(cfg)
				if err != nil {
					return err
				}
				pool, err := pgxpool.New(ctx, dsn)
				if err != nil {
					return fmt.Errorf("connect to db: %w", err)
				}
				defer pool.Close()
				sink = postgres.NewReceiptRepository(pool)
			}

			conn, err := queue.Dial(cfg.AMQPURL)
			if err != nil {
				return err
			}
			defer conn.Close()

			err = queue.Consume(ctx, conn.Channel(), cfg.AMQPQueue, logger,
				tailHandler(ctx, json.NewEncoder(cmd.OutOrStdout()), sink, logger))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().String("amqp-url", "", "RabbitMQ URL")
	cmd.Flags().String("queue", "", "queue to consume")
	cmd.Flags().String("database-url", "", "Postgres DSN used with --store")
	cmd.Flags().BoolVar(&store, "store", false, "archive consumed receipts in Postgres")
	return cmd
}

// tailHandler prints each message and archives it when sink is set. Receipts
// the archive already holds count as handled.
func tailHandler(ctx context.Context, enc *json.Encoder, sink receiptStore, logger *slog.Logger) func(queue.ReceiptMessage) error {
	return func(msg queue.ReceiptMessage) error {
		if sink != nil {
			r, err := msg.Receipt()
			if err != nil {
				return err
			}
			if err := sink.SaveReceipt(ctx, r); err != nil {
				if !errors.Is(err, domain.ErrReceiptExists) {
					return err
				}
				logger.Debug("receipt already archived", "seq", msg.Seq)
			}
		}
		return enc.Encode(msg)
	}
}

func newReceiptsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		method  string
		from    string
		fromSeq uint64
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print archived receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := requireDatabase(rootOpts.Config)
			if err != nil {
				return err
			}
			f := postgres.ReceiptFilter{Method: method, FromSeq: fromSeq, Limit: limit}
			if from != "" {
				if !common.IsHexAddress(from) {
					return fmt.Errorf("invalid address %q", from)
				}
				f.From = common.HexToAddress(from)
			}

			pool, err := pgxpool.New(cmd.Context(), dsn)
			if err != nil {
				return fmt.Errorf("connect to db: %w", err)
			}
			defer pool.Close()

			receipts, err := postgres.NewReceiptRepository(pool).ListReceipts(cmd.Context(), f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range receipts {
				if err := enc.Encode(queue.NewReceiptMessage(r)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().String("database-url", "", "Postgres DSN")
	cmd.Flags().StringVar(&method, "method", "", "only receipts of this method")
	cmd.Flags().StringVar(&from, "from", "", "only receipts sent by this address")
	cmd.Flags().Uint64Var(&fromSeq, "from-seq", 0, "first sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum receipts (default 100)")
	return cmd
}
