package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/config"
	"github.com/cimillas/ticket-ledger/internal/distributor"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/ledger"
	"github.com/cimillas/ticket-ledger/internal/marketplace"
	"github.com/cimillas/ticket-ledger/internal/storage/postgres"
)

// EventService is the part of the node the event routes use.
type EventService interface {
	CreateEvent(ctx context.Context, caller common.Address, in app.CreateEventInput) (app.CreatedEvent, error)
	UpdateEvent(ctx context.Context, caller common.Address, in app.UpdateEventInput) error
	WithdrawEventFunds(ctx context.Context, caller common.Address, eventID uint64) (*uint256.Int, error)
	Event(eventID uint64) (app.EventView, error)
}

// TicketService is the part of the node the ticket routes use.
type TicketService interface {
	BuyTicket(ctx context.Context, caller common.Address, value *uint256.Int, in marketplace.PrimarySaleInput) (uint64, error)
	BuyResale(ctx context.Context, caller common.Address, value *uint256.Int, eventID, ticketID uint64) (distributor.Split, error)
	SetResalePrice(ctx context.Context, caller common.Address, eventID, ticketID uint64, price *uint256.Int) error
	Refund(ctx context.Context, caller common.Address, in marketplace.RefundInput) (*uint256.Int, error)
	Ticket(eventID, ticketID uint64) (domain.Ticket, error)
	CustomerTickets(eventID uint64, owner common.Address) ([]uint64, error)
}

type AccountReader interface {
	Balance(addr common.Address) *uint256.Int
}

type Administrator interface {
	SetCapability(ctx context.Context, caller, id common.Address, c domain.Capability, enabled bool) error
	RegisterRole(ctx context.Context, caller common.Address, role domain.Role, id common.Address) error
}

type StatusReader interface {
	Status() app.Status
	Components() app.Components
}

// Node is everything the gateway needs from the ledger node.
type Node interface {
	EventService
	TicketService
	AccountReader
	Administrator
	StatusReader
}

// ReceiptStore serves archived receipts.
type ReceiptStore interface {
	ListReceipts(ctx context.Context, f postgres.ReceiptFilter) ([]ledger.Receipt, error)
	GetReceipt(ctx context.Context, seq uint64) (ledger.Receipt, error)
}

type Options struct {
	JWTSecret   string
	CORSOrigins []string
	RateLimit   config.RateLimit
	Limiter     Limiter
	Logger      *slog.Logger
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// Receipts enables the receipt archive routes when set.
	Receipts ReceiptStore
}

// NewServer builds the gateway. Reads are public; every operation that
// changes the ledger requires a bearer token.
func NewServer(node Node, opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Pre(RequestID())
	e.Pre(CORS(opts.CORSOrigins))
	e.Use(RequestLogger(logger))

	e.GET("/health", handleHealth(node))
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	limit := RateLimit(opts.Limiter, opts.RateLimit, logger)
	auth := JWTAuth(opts.JWTSecret)

	v1 := e.Group("/v1", limit)
	v1.GET("/status", handleStatus(node))
	v1.GET("/events/:id", handleGetEvent(node))
	v1.GET("/events/:id/tickets/:ticket", handleGetTicket(node))
	v1.GET("/accounts/:addr", handleGetAccount(node))
	v1.GET("/accounts/:addr/events/:id/tickets", handleCustomerTickets(node))
	if opts.Receipts != nil {
		v1.GET("/receipts", handleListReceipts(opts.Receipts))
		v1.GET("/receipts/:seq", handleGetReceipt(opts.Receipts))
	}

	// Authenticated routes are limited per caller rather than per IP.
	signed := e.Group("/v1", auth, limit)
	signed.POST("/events", handleCreateEvent(node))
	signed.PUT("/events/:id", handleUpdateEvent(node))
	signed.POST("/events/:id/withdraw", handleWithdraw(node))
	signed.POST("/events/:id/tickets", handleBuyTicket(node))
	signed.PUT("/events/:id/tickets/:ticket/resale-price", handleSetResalePrice(node))
	signed.POST("/events/:id/tickets/:ticket/purchase", handleBuyResale(node))
	signed.POST("/events/:id/tickets/:ticket/refund", handleRefund(node))
	signed.PUT("/admin/capabilities", handleSetCapability(node))
	signed.PUT("/admin/roles", handleRegisterRole(node))

	return e
}
