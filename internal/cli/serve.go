package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/config"
	"github.com/cimillas/ticket-ledger/internal/metrics"
	"github.com/cimillas/ticket-ledger/internal/queue"
	"github.com/cimillas/ticket-ledger/internal/storage/postgres"
	transporthttp "github.com/cimillas/ticket-ledger/internal/transport/http"
	"github.com/cimillas/ticket-ledger/migrations"
)

const (
	startupTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

type ServeOptions struct {
	*RootOptions
	ResetArchive bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger node and its HTTP gateway",
		Long: `Bootstrap the marketplace from the genesis file and serve it over HTTP.

When a database is configured, committed receipts are archived in Postgres and
served under /v1/receipts. When a broker is configured they are also published
to RabbitMQ. A Redis address enables the shared rate limiter.

Example:
  ledgerd serve --genesis ./genesis.yaml --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().String("genesis", "", "genesis file")
	cmd.Flags().String("database-url", "", "Postgres DSN for the receipt archive")
	cmd.Flags().String("amqp-url", "", "RabbitMQ URL receipts are published to")
	cmd.Flags().String("redis-addr", "", "Redis address for rate limiting")
	cmd.Flags().BoolVar(&opts.ResetArchive, "reset-archive", false, "clear archived receipts from a previous run")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	genesis, err := app.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New("", reg)
	if err != nil {
		return err
	}

	nodeOpts := []app.NodeOption{
		app.WithLogger(logger),
		app.WithRecorder(collector),
		app.WithObserver(collector),
	}
	srvOpts := transporthttp.Options{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		Logger:      logger,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}

	if cfg.DatabaseURL != "" {
		repo, closeDB, err := openArchive(ctx, cfg.DatabaseURL, opts.ResetArchive, logger)
		if err != nil {
			return err
		}
		defer closeDB()
		nodeOpts = append(nodeOpts, app.WithReceiptSink(repo))
		srvOpts.Receipts = repo
	} else {
		logger.Warn("database url not set, receipts are not archived")
	}

	if cfg.AMQPURL != "" {
		conn, err := queue.Dial(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		pub, err := queue.NewPublisher(conn.Channel(), cfg.AMQPQueue)
		if err != nil {
			return err
		}
		nodeOpts = append(nodeOpts, app.WithReceiptSink(pub))
		logger.Info("publishing receipts", "queue", cfg.AMQPQueue)
	}

	if cfg.RedisAddr != "" && cfg.RateLimit.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		srvOpts.Limiter = transporthttp.NewRedisBucket(rdb, cfg.RateLimit)
	} else if cfg.RateLimit.Enabled {
		logger.Warn("redis address not set, rate limiting is disabled")
	}

	node, err := app.NewNode(ctx, clock.NewSystem(), genesis, nodeOpts...)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           transporthttp.NewServer(node, srvOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return listen(ctx, server, logger)
}

// openArchive connects to Postgres, applies migrations and checks that the
// archive does not hold receipts of an earlier run, clearing them when reset
// is set.
func openArchive(ctx context.Context, dsn string, reset bool, logger *slog.Logger) (*postgres.ReceiptRepository, func(), error) {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to db: %w", err)
	}
	fail := func(err error) (*postgres.ReceiptRepository, func(), error) {
		pool.Close()
		return nil, nil, err
	}

	if err := pool.Ping(startupCtx); err != nil {
		return fail(fmt.Errorf("db ping: %w", err))
	}
	applied, err := migrations.Apply(startupCtx, pool)
	if err != nil {
		return fail(fmt.Errorf("apply migrations: %w", err))
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", "names", applied)
	}

	repo := postgres.NewReceiptRepository(pool)
	latest, ok, err := repo.LatestSeq(startupCtx)
	if err != nil {
		return fail(err)
	}
	if ok {
		if !reset {
			return fail(fmt.Errorf("receipt archive already holds receipts up to seq %d; rerun with --reset-archive to clear it", latest))
		}
		if err := repo.Reset(startupCtx); err != nil {
			return fail(err)
		}
		logger.Warn("receipt archive cleared", "previous_seq", latest)
	}
	return repo, pool.Close, nil
}

func listen(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	logger.Info("gateway listening", "addr", server.Addr)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// requireDatabase returns the configured DSN or an error naming the variable.
func requireDatabase(cfg config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", errors.New("LEDGER_DATABASE_URL or --database-url is required")
	}
	return cfg.DatabaseURL, nil
}
