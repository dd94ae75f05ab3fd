package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/clock"
)

// ErrReentrant is returned when Execute is called from inside an operation.
var ErrReentrant = errors.New("ledger: operation already in progress")

// Ledger is the host every component runs on. Operations are executed one at
// a time; each one either commits all of its effects or none of them.
type Ledger struct {
	mu         sync.RWMutex
	clock      clock.Clock
	balances   map[common.Address]*uint256.Int
	components map[common.Address]any
	nonces     map[common.Address]uint64
	seq        uint64

	obsMu     sync.RWMutex
	observers []Observer
}

func New(clk clock.Clock) *Ledger {
	return &Ledger{
		clock:      clk,
		balances:   make(map[common.Address]*uint256.Int),
		components: make(map[common.Address]any),
		nonces:     make(map[common.Address]uint64),
	}
}

// Subscribe registers an observer for committed operations.
func (l *Ledger) Subscribe(o Observer) {
	l.obsMu.Lock()
	l.observers = append(l.observers, o)
	l.obsMu.Unlock()
}

// Execute runs fn as one atomic operation. The attached value moves from
// msg.From to msg.To before fn runs. If fn returns an error every state
// change, value transfer and log of the operation is rolled back.
func (l *Ledger) Execute(ctx context.Context, msg Message, fn func(ctx context.Context, call Call) error) (Receipt, error) {
	if InTransaction(ctx) {
		return Receipt{}, ErrReentrant
	}

	receipt, err := func() (Receipt, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.execute(ctx, msg, fn)
	}()
	if err != nil {
		return Receipt{}, err
	}

	l.obsMu.RLock()
	observers := l.observers
	l.obsMu.RUnlock()
	for _, o := range observers {
		o.ObserveReceipt(ctx, receipt)
	}
	return receipt, nil
}

func (l *Ledger) execute(ctx context.Context, msg Message, fn func(ctx context.Context, call Call) error) (_ Receipt, err error) {
	now := l.clock.Now()
	value := new(uint256.Int)
	if msg.Value != nil {
		value.Set(msg.Value)
	}

	j := &journal{}
	txCtx := context.WithValue(ctx, txKey{}, j)
	defer func() {
		if p := recover(); p != nil {
			j.revert()
			panic(p)
		}
	}()

	call := Call{
		Sender: msg.From,
		Origin: msg.From,
		Self:   msg.To,
		Value:  value.Clone(),
		Now:    now,
	}
	if err := l.Transfer(txCtx, msg.From, msg.To, value); err != nil {
		j.revert()
		return Receipt{}, err
	}
	if err := fn(txCtx, call); err != nil {
		j.revert()
		return Receipt{}, err
	}

	receipt := Receipt{
		ID:         uuid.New(),
		Seq:        l.seq,
		From:       msg.From,
		To:         msg.To,
		Method:     msg.Method,
		Value:      value,
		Logs:       j.logs,
		ExecutedAt: now,
	}
	l.seq++
	return receipt, nil
}

// Read runs fn while no operation is executing. Use it for every read made
// from outside an operation.
func (l *Ledger) Read(fn func(now time.Time)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.clock.Now())
}

// Height returns the number of committed operations.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Deploy registers a new component created by deployer. The component address
// is derived from the deployer and its deployment count, the way contract
// addresses are. Deploy must run inside an operation.
func Deploy[T any](ctx context.Context, l *Ledger, deployer common.Address, build func(self common.Address) T) (T, common.Address) {
	nonce := l.nonces[deployer]
	addr := crypto.CreateAddress(deployer, nonce)
	component := build(addr)

	l.nonces[deployer] = nonce + 1
	l.components[addr] = component
	OnRevert(ctx, func() {
		l.nonces[deployer] = nonce
		delete(l.components, addr)
	})
	return component, addr
}

// Resolve returns the component deployed at addr.
func (l *Ledger) Resolve(addr common.Address) (any, bool) {
	c, ok := l.components[addr]
	return c, ok
}

// IsComponent reports whether addr belongs to a deployed component rather
// than an end user.
func (l *Ledger) IsComponent(addr common.Address) bool {
	_, ok := l.components[addr]
	return ok
}

// ResolveAs returns the component at addr when it implements T.
func ResolveAs[T any](l *Ledger, addr common.Address) (T, bool) {
	var zero T
	c, ok := l.components[addr]
	if !ok {
		return zero, false
	}
	typed, ok := c.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
