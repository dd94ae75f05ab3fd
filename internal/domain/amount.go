package domain

import "github.com/holiman/uint256"

// AddAmount returns a+b or ErrAmountOverflow.
func AddAmount(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return sum, nil
}

// SubAmount returns a-b or ErrEscrowUnderflow.
func SubAmount(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrEscrowUnderflow
	}
	return diff, nil
}

// Portion returns amount*numerator/denominator, truncated. The product must
// fit in 256 bits.
func Portion(amount *uint256.Int, numerator, denominator uint64) (*uint256.Int, error) {
	if denominator == 0 || numerator > denominator {
		return nil, ErrInvalidPercentage
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(numerator))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return product.Div(product, uint256.NewInt(denominator)), nil
}
