package collateral

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestRequiredCollateralRoundsUp(t *testing.T) {
	require := require.New(t)

	got, err := RequiredCollateral(u(1200), u(2))
	require.NoError(err)
	require.Equal(uint64(1000), got.Uint64())

	got, err = RequiredCollateral(u(1201), u(2))
	require.NoError(err)
	require.Equal(uint64(1001), got.Uint64())

	_, err = RequiredCollateral(u(1), u(0))
	require.ErrorIs(err, ErrZeroRate)
}

func TestMeetsOriginationRatioBoundary(t *testing.T) {
	require := require.New(t)

	ok, err := MeetsOriginationRatio(u(1000), u(1200), u(2))
	require.NoError(err)
	require.True(ok)

	ok, err = MeetsOriginationRatio(u(1000), u(1201), u(2))
	require.NoError(err)
	require.False(ok)

	// 100 units at rate 1 supports exactly 60 of loan.
	ok, err = MeetsOriginationRatio(u(100), u(60), u(1))
	require.NoError(err)
	require.True(ok)
}

func TestIsUndercollateralized(t *testing.T) {
	require := require.New(t)

	under, err := IsUndercollateralized(u(1000), u(1200), u(2))
	require.NoError(err)
	require.False(under)

	under, err = IsUndercollateralized(u(700), u(1200), u(1))
	require.NoError(err)
	require.True(under)

	// value*100 == principal*60 is not under.
	under, err = IsUndercollateralized(u(720), u(1200), u(1))
	require.NoError(err)
	require.False(under)
}

func TestDueAmountAtOrigination(t *testing.T) {
	require := require.New(t)

	due, err := DueAmountAtOrigination(u(1000), 10)
	require.NoError(err)
	require.Equal(uint64(1100), due.Uint64())

	due, err = DueAmountAtOrigination(u(999), 10)
	require.NoError(err)
	require.Equal(uint64(1098), due.Uint64())

	due, err = DueAmountAtOrigination(u(500), 0)
	require.NoError(err)
	require.Equal(uint64(500), due.Uint64())

	_, err = DueAmountAtOrigination(u(500), 101)
	require.ErrorIs(err, ErrInvalidRate)
}

func TestOverflowIsReported(t *testing.T) {
	require := require.New(t)
	max := new(uint256.Int).SetAllOne()

	_, err := CollateralValue(max, u(2))
	require.ErrorIs(err, ErrOverflow)

	_, err = DueAmountAtOrigination(max, 50)
	require.ErrorIs(err, ErrOverflow)

	_, err = RequiredCollateral(max, u(1))
	require.ErrorIs(err, ErrOverflow)
}

func TestLiquidationPayoutWithSurplus(t *testing.T) {
	require := require.New(t)

	p, err := LiquidationPayout(u(1000), u(1100), u(3), ShortfallInsure)
	require.NoError(err)
	require.Equal(uint64(3000), p.CollateralValue.Uint64())
	require.Equal(uint64(1100), p.RecoveredDue.Uint64())
	// (3000-1100)/3 = 633 rounded down
	require.Equal(uint64(633), p.ReturnedCollateral.Uint64())
	require.Equal(uint64(367), p.SeizedCollateral.Uint64())
	require.True(p.Shortfall.IsZero())
}

func TestLiquidationPayoutShortfallPolicies(t *testing.T) {
	require := require.New(t)

	p, err := LiquidationPayout(u(1000), u(1100), u(1), ShortfallInsure)
	require.NoError(err)
	require.Equal(uint64(1100), p.RecoveredDue.Uint64())
	require.Equal(uint64(1000), p.SeizedCollateral.Uint64())
	require.True(p.ReturnedCollateral.IsZero())
	require.Equal(uint64(100), p.Shortfall.Uint64())

	p, err = LiquidationPayout(u(1000), u(1100), u(1), ShortfallCap)
	require.NoError(err)
	require.Equal(uint64(1000), p.RecoveredDue.Uint64())
	require.Equal(uint64(100), p.Shortfall.Uint64())

	_, err = LiquidationPayout(u(1000), u(1100), u(1), ShortfallReject)
	require.ErrorIs(err, ErrInsufficientValue)
}

func TestLiquidationPayoutConservesValue(t *testing.T) {
	require := require.New(t)

	for _, tc := range []struct{ collateral, due, rate uint64 }{
		{1000, 1100, 3}, {7, 5, 1}, {12345, 999, 7}, {10, 10, 1},
	} {
		p, err := LiquidationPayout(u(tc.collateral), u(tc.due), u(tc.rate), ShortfallCap)
		require.NoError(err)
		returnedValue := p.ReturnedCollateral.Uint64() * tc.rate
		require.LessOrEqual(p.RecoveredDue.Uint64()+returnedValue, p.CollateralValue.Uint64())
		require.Less(p.CollateralValue.Uint64()-(p.RecoveredDue.Uint64()+returnedValue), tc.rate)
		require.Equal(tc.collateral, p.SeizedCollateral.Uint64()+p.ReturnedCollateral.Uint64())
	}
}

func TestParseShortfallPolicy(t *testing.T) {
	require := require.New(t)

	p, err := ParseShortfallPolicy("")
	require.NoError(err)
	require.Equal(ShortfallInsure, p)

	p, err = ParseShortfallPolicy(" CAP ")
	require.NoError(err)
	require.Equal(ShortfallCap, p)
	require.Equal("cap", p.String())

	_, err = ParseShortfallPolicy("socialize")
	require.ErrorIs(err, ErrUnknownPolicy)
}

func TestAssess(t *testing.T) {
	require := require.New(t)

	h, err := Assess(u(1000), u(1200), u(2))
	require.NoError(err)
	require.Equal(uint64(2000), h.CollateralValue.Uint64())
	require.Equal(uint64(1000), h.RequiredCollateral.Uint64())
	require.Equal("166.67", h.RatioPercent.StringFixed(2))
	require.False(h.Liquidatable)

	h, err = Assess(u(700), u(1200), u(1))
	require.NoError(err)
	require.True(h.Liquidatable)
	require.Equal("58.33", h.RatioPercent.StringFixed(2))
}
