package ledger

import (
	"errors"
	"fmt"

	"github.com/hendo420/P2PLendingPlatform/internal/domain/collateral"
)

// Error is a ledger failure with a stable machine-readable code.
type Error struct {
	code string
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Code() string  { return e.code }

func newError(code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

var (
	ErrInvalidAmount               = newError("invalid_amount", "amount must be greater than zero")
	ErrInvalidRate                 = newError("invalid_rate", "interest rate must be between 0 and 100")
	ErrInvalidAccount              = newError("invalid_account", "account is required")
	ErrInsufficientLiquidity       = newError("insufficient_liquidity", "lending position has insufficient available amount")
	ErrInsufficientCollateral      = newError("insufficient_collateral", "collateral value below required ratio")
	ErrCollateralStillSufficient   = newError("collateral_still_sufficient", "position is not undercollateralized")
	ErrInsufficientCollateralValue = newError("insufficient_collateral_value", "collateral value does not cover due amount")
	ErrExceedsDue                  = newError("exceeds_due", "payment exceeds due amount")
	ErrUnauthorized                = newError("unauthorized", "caller is not permitted")
	ErrOracleUnavailable           = newError("oracle_unavailable", "price oracle unavailable")
	ErrInvalidPrice                = newError("invalid_price", "price oracle reported a non-positive rate")
	ErrInsufficientFunds           = newError("insufficient_funds", "account balance too low")
	ErrNotFound                    = newError("not_found", "position not found")
	ErrOverflow                    = newError("overflow", "arithmetic overflow")
)

// fromCollateral maps arithmetic failures onto the ledger taxonomy.
func fromCollateral(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, collateral.ErrOverflow):
		return ErrOverflow
	case errors.Is(err, collateral.ErrZeroRate):
		return ErrInvalidPrice
	case errors.Is(err, collateral.ErrInvalidRate):
		return ErrInvalidRate
	case errors.Is(err, collateral.ErrInsufficientValue):
		return ErrInsufficientCollateralValue
	default:
		return fmt.Errorf("collateral: %w", err)
	}
}
