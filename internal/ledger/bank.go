package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// BalanceOf returns a copy of the native balance held by addr.
func (l *Ledger) BalanceOf(addr common.Address) *uint256.Int {
	if bal, ok := l.balances[addr]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// Transfer moves amount from one identity to another as part of the current
// operation.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}

	prevFrom := l.balances[from]
	fromBal := l.BalanceOf(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("transfer %s from %s: %w", amount.Dec(), from.Hex(), domain.ErrInsufficientBalance)
	}
	l.balances[from] = new(uint256.Int).Sub(fromBal, amount)

	prevTo := l.balances[to]
	toBal, overflow := new(uint256.Int).AddOverflow(l.BalanceOf(to), amount)
	if overflow {
		l.balances[from] = prevFrom
		return fmt.Errorf("transfer %s to %s: %w", amount.Dec(), to.Hex(), domain.ErrAmountOverflow)
	}
	l.balances[to] = toBal

	OnRevert(ctx, func() {
		l.restore(to, prevTo)
		l.restore(from, prevFrom)
	})
	return nil
}

// Credit mints amount into addr. It is used to fund accounts from a genesis
// file and must run inside an operation.
func (l *Ledger) Credit(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	prev := l.balances[addr]
	bal, overflow := new(uint256.Int).AddOverflow(l.BalanceOf(addr), amount)
	if overflow {
		return fmt.Errorf("credit %s: %w", addr.Hex(), domain.ErrAmountOverflow)
	}
	l.balances[addr] = bal
	OnRevert(ctx, func() { l.restore(addr, prev) })
	return nil
}

// Invoke derives the call a component makes to another component and moves
// value from the calling component to the callee.
func (l *Ledger) Invoke(ctx context.Context, parent Call, to common.Address, value *uint256.Int) (Call, error) {
	v := new(uint256.Int)
	if value != nil {
		v.Set(value)
	}
	if err := l.Transfer(ctx, parent.Self, to, v); err != nil {
		return Call{}, err
	}
	return Call{
		Sender: parent.Self,
		Origin: parent.Origin,
		Self:   to,
		Value:  v,
		Now:    parent.Now,
	}, nil
}

func (l *Ledger) restore(addr common.Address, bal *uint256.Int) {
	if bal == nil {
		delete(l.balances, addr)
		return
	}
	l.balances[addr] = bal
}
