// Package collateral holds the pure arithmetic behind loan origination and
// liquidation. Amounts are unsigned 256-bit integers and every product is
// overflow checked; the rate is quoted as loan-currency units per native unit.
package collateral

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// LoanToCollateralPercent is the maximum loan size as a share of collateral value.
	LoanToCollateralPercent = 60
	PercentScale            = 100
	MaxInterestRatePercent  = 100
)

var (
	ErrOverflow          = errors.New("collateral: arithmetic overflow")
	ErrZeroRate          = errors.New("collateral: rate must be positive")
	ErrInsufficientValue = errors.New("collateral: value does not cover due amount")
	ErrInvalidRate       = errors.New("collateral: interest rate above maximum")
	ErrUnknownPolicy     = errors.New("collateral: unknown shortfall policy")
)

var (
	ratio = uint256.NewInt(LoanToCollateralPercent)
	scale = uint256.NewInt(PercentScale)
)

// ShortfallPolicy decides who absorbs the gap when seized collateral is worth
// less than the amount due.
type ShortfallPolicy int

const (
	// ShortfallInsure pays the lender the full due amount out of the reserve.
	ShortfallInsure ShortfallPolicy = iota
	// ShortfallCap limits the lender's recovery to the collateral value.
	ShortfallCap
	// ShortfallReject refuses the liquidation.
	ShortfallReject
)

func ParseShortfallPolicy(s string) (ShortfallPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "insure":
		return ShortfallInsure, nil
	case "cap":
		return ShortfallCap, nil
	case "reject":
		return ShortfallReject, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p ShortfallPolicy) String() string {
	switch p {
	case ShortfallInsure:
		return "insure"
	case ShortfallCap:
		return "cap"
	case ShortfallReject:
		return "reject"
	default:
		return "unknown"
	}
}

// CollateralValue is amount * rate in loan-currency units.
func CollateralValue(amount, rate *uint256.Int) (*uint256.Int, error) {
	v, overflow := new(uint256.Int).MulOverflow(amount, rate)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// RequiredCollateral is the smallest native amount whose value keeps loan at or
// under the origination ratio: ceil(loan*100 / (60*rate)).
func RequiredCollateral(loan, rate *uint256.Int) (*uint256.Int, error) {
	if rate.IsZero() {
		return nil, ErrZeroRate
	}
	num, overflow := new(uint256.Int).MulOverflow(loan, scale)
	if overflow {
		return nil, ErrOverflow
	}
	den, overflow := new(uint256.Int).MulOverflow(ratio, rate)
	if overflow {
		return nil, ErrOverflow
	}
	return ceilDiv(num, den), nil
}

// MeetsOriginationRatio reports value*60 >= loan*100.
func MeetsOriginationRatio(collateral, loan, rate *uint256.Int) (bool, error) {
	if rate.IsZero() {
		return false, ErrZeroRate
	}
	value, err := CollateralValue(collateral, rate)
	if err != nil {
		return false, err
	}
	lhs, overflow := new(uint256.Int).MulOverflow(value, ratio)
	if overflow {
		return false, ErrOverflow
	}
	rhs, overflow := new(uint256.Int).MulOverflow(loan, scale)
	if overflow {
		return false, ErrOverflow
	}
	return !lhs.Lt(rhs), nil
}

// IsUndercollateralized reports value*100 < principal*60, measured against
// the original principal.
func IsUndercollateralized(collateral, principal, rate *uint256.Int) (bool, error) {
	if rate.IsZero() {
		return false, ErrZeroRate
	}
	value, err := CollateralValue(collateral, rate)
	if err != nil {
		return false, err
	}
	lhs, overflow := new(uint256.Int).MulOverflow(value, scale)
	if overflow {
		return false, ErrOverflow
	}
	rhs, overflow := new(uint256.Int).MulOverflow(principal, ratio)
	if overflow {
		return false, ErrOverflow
	}
	return lhs.Lt(rhs), nil
}

// DueAmountAtOrigination is principal + principal*ratePercent/100, with the
// interest term truncated.
func DueAmountAtOrigination(principal *uint256.Int, ratePercent uint64) (*uint256.Int, error) {
	if ratePercent > MaxInterestRatePercent {
		return nil, ErrInvalidRate
	}
	interest, overflow := new(uint256.Int).MulOverflow(principal, uint256.NewInt(ratePercent))
	if overflow {
		return nil, ErrOverflow
	}
	interest.Div(interest, scale)
	due, overflow := new(uint256.Int).AddOverflow(principal, interest)
	if overflow {
		return nil, ErrOverflow
	}
	return due, nil
}

// Payout splits a liquidated position between lender, borrower and reserve.
type Payout struct {
	CollateralValue    *uint256.Int
	RecoveredDue       *uint256.Int
	SeizedCollateral   *uint256.Int
	ReturnedCollateral *uint256.Int
	Shortfall          *uint256.Int
}

// LiquidationPayout values collateral at rate, pays the lender out of it and
// returns the rounded-down remainder to the borrower in native units.
func LiquidationPayout(collateral, due, rate *uint256.Int, policy ShortfallPolicy) (*Payout, error) {
	if rate.IsZero() {
		return nil, ErrZeroRate
	}
	value, err := CollateralValue(collateral, rate)
	if err != nil {
		return nil, err
	}

	if !value.Lt(due) {
		surplus := new(uint256.Int).Sub(value, due)
		returned := new(uint256.Int).Div(surplus, rate)
		return &Payout{
			CollateralValue:    value,
			RecoveredDue:       due.Clone(),
			SeizedCollateral:   new(uint256.Int).Sub(collateral, returned),
			ReturnedCollateral: returned,
			Shortfall:          new(uint256.Int),
		}, nil
	}

	shortfall := new(uint256.Int).Sub(due, value)
	out := &Payout{
		CollateralValue:    value,
		SeizedCollateral:   collateral.Clone(),
		ReturnedCollateral: new(uint256.Int),
		Shortfall:          shortfall,
	}
	switch policy {
	case ShortfallInsure:
		out.RecoveredDue = due.Clone()
	case ShortfallCap:
		out.RecoveredDue = value.Clone()
	case ShortfallReject:
		return nil, ErrInsufficientValue
	default:
		return nil, ErrUnknownPolicy
	}
	return out, nil
}

// Health is a point-in-time view of a borrowing position.
type Health struct {
	CollateralValue    *uint256.Int
	RequiredCollateral *uint256.Int
	RatioPercent       decimal.Decimal
	Liquidatable       bool
}

// Assess reports collateral value as a percentage of principal.
func Assess(collateral, principal, rate *uint256.Int) (*Health, error) {
	value, err := CollateralValue(collateral, rate)
	if err != nil {
		return nil, err
	}
	required, err := RequiredCollateral(principal, rate)
	if err != nil {
		return nil, err
	}
	under, err := IsUndercollateralized(collateral, principal, rate)
	if err != nil {
		return nil, err
	}
	h := &Health{
		CollateralValue:    value,
		RequiredCollateral: required,
		RatioPercent:       decimal.Zero,
		Liquidatable:       under,
	}
	if !principal.IsZero() {
		h.RatioPercent = decimal.NewFromBigInt(value.ToBig(), 0).
			Mul(decimal.NewFromInt(PercentScale)).
			DivRound(decimal.NewFromBigInt(principal.ToBig(), 0), 2)
	}
	return h, nil
}

func ceilDiv(num, den *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(num, den, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}
