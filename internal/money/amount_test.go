package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	a, err := Parse("5")
	require.NoError(t, err)
	require.Equal(t, Amount(500), a)
	require.Equal(t, "5.00", a.String())

	a, err = Parse(" 0.125 ")
	require.NoError(t, err)
	require.Equal(t, Amount(13), a)

	_, err = Parse("five")
	require.Error(t, err)
}

func TestMulRateRoundsHalfAwayFromZero(t *testing.T) {
	rate := decimal.RequireFromString("0.1")
	require.Equal(t, Amount(100), Amount(1000).MulRate(rate))
	require.Equal(t, Amount(1), Amount(5).MulRate(rate))
	require.Equal(t, Amount(0), Amount(4).MulRate(rate))
	require.Equal(t, Amount(-1), Amount(-5).MulRate(rate))
	require.Equal(t, Amount(0), Amount(1000).MulRate(decimal.Zero))
}

func TestDecimalBoundary(t *testing.T) {
	d := Amount(123456).Decimal()
	require.Equal(t, "1234.56", d.String())
	require.Equal(t, Amount(123456), FromDecimal(d))
}
