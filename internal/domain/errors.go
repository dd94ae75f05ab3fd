package domain

import "errors"

// Error kinds. Every concrete error below unwraps to exactly one of them.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrStateConflict       = errors.New("state conflict")
	ErrValueMismatch       = errors.New("value mismatch")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

var (
	ErrNotAdministrator   = newError(ErrUnauthorized, "caller is not the registry administrator")
	ErrRoleNotBound       = newError(ErrUnauthorized, "role is not bound")
	ErrCallerNotRole      = newError(ErrUnauthorized, "caller does not hold the required role")
	ErrMissingCapability  = newError(ErrUnauthorized, "caller lacks the required capability")
	ErrNotEventOwner      = newError(ErrUnauthorized, "caller is not the event owner")
	ErrNotTicketOwner     = newError(ErrUnauthorized, "caller is not the ticket owner")
	ErrNotComponentOwner  = newError(ErrUnauthorized, "caller is not the component owner")
	ErrSignerNotAllowed   = newError(ErrUnauthorized, "signer lacks sign-transaction capability")
	ErrInvalidSignature   = newError(ErrUnauthorized, "invalid signature")
	ErrNotInitialized     = newError(ErrUnauthorized, "component is not initialized")
	ErrEventNotFound      = newError(ErrNotFound, "event not found")
	ErrTicketNotFound     = newError(ErrNotFound, "ticket not found")
	ErrRegistryNotFound   = newError(ErrNotFound, "ticket registry not found")
	ErrComponentNotFound  = newError(ErrNotFound, "component not found")
	ErrReceiptNotFound    = newError(ErrNotFound, "receipt not found")
	ErrEventStarted       = newError(ErrStateConflict, "event has started")
	ErrEventNotStarted    = newError(ErrStateConflict, "event has not started")
	ErrSoldOut            = newError(ErrStateConflict, "not enough tickets available")
	ErrTicketNotListed    = newError(ErrStateConflict, "ticket is not listed for resale")
	ErrNothingToWithdraw  = newError(ErrStateConflict, "no collected funds")
	ErrReceiptExists      = newError(ErrStateConflict, "receipt already stored")
	ErrPaymentMismatch    = newError(ErrValueMismatch, "attached value does not match price")
	ErrInvalidQuantity    = newError(ErrInvariantViolation, "invalid tickets amount")
	ErrInvalidStartTime   = newError(ErrInvariantViolation, "start time must be in the future")
	ErrCapacityBelowSold  = newError(ErrInvariantViolation, "tickets amount below sold tickets")
	ErrShareExceedsMax    = newError(ErrInvariantViolation, "profit share exceeds its maximum")
	ErrResaleBelowPrice   = newError(ErrInvariantViolation, "resale price below previous price")
	ErrComponentOwnership = newError(ErrInvariantViolation, "components cannot own tickets")
	ErrEscrowUnderflow    = newError(ErrInvariantViolation, "escrow would go negative")
	ErrAmountOverflow     = newError(ErrInvariantViolation, "amount overflow")
	ErrZeroAddress        = newError(ErrInvariantViolation, "zero address")
	ErrInvalidPercentage  = newError(ErrInvariantViolation, "invalid percentage")
)

// Error is a named failure that belongs to one error kind.
type Error struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the error kind err belongs to, or nil when err is not a domain error.
func Kind(err error) error {
	for _, kind := range []error{
		ErrUnauthorized,
		ErrNotFound,
		ErrStateConflict,
		ErrValueMismatch,
		ErrInvariantViolation,
		ErrInsufficientBalance,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
