package untron

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertParityNoFees(t *testing.T) {
	amount, fee := Convert(big.NewInt(100), big.NewInt(RateDenominator), FeeVariables{}, false, false)
	require.Equal(t, int64(100), amount.Int64())
	require.Zero(t, fee.Sign())
}

func TestConvertAppliesRate(t *testing.T) {
	// 1.5 local units per remote unit.
	amount, _ := Convert(big.NewInt(100), big.NewInt(1_500_000), FeeVariables{}, false, false)
	require.Equal(t, int64(150), amount.Int64())
	// Truncating division rounds down.
	amount, _ = Convert(big.NewInt(1), big.NewInt(1_500_000), FeeVariables{}, false, false)
	require.Equal(t, int64(1), amount.Int64())
}

func TestConvertRelayerFee(t *testing.T) {
	vars := FeeVariables{RelayerFee: 100_000, FeePoint: big.NewInt(0)} // 10%
	amount, fee := Convert(big.NewInt(100), big.NewInt(RateDenominator), vars, true, false)
	require.Equal(t, int64(90), amount.Int64())
	require.Equal(t, int64(10), fee.Int64())
}

func TestConvertFulfillerFeeClamped(t *testing.T) {
	vars := FeeVariables{FeePoint: big.NewInt(500)}
	amount, fee := Convert(big.NewInt(100), big.NewInt(RateDenominator), vars, false, true)
	require.Zero(t, amount.Sign(), "flat fee larger than the payout must clamp to zero, never go negative")
	require.Equal(t, int64(100), fee.Int64())
}

func TestConvertFeeConservation(t *testing.T) {
	vars := FeeVariables{RelayerFee: 37_500, FeePoint: big.NewInt(3)}
	for size := int64(0); size < 200; size++ {
		out, _ := Convert(big.NewInt(size), big.NewInt(1_234_567), FeeVariables{}, false, false)
		amount, fee := Convert(big.NewInt(size), big.NewInt(1_234_567), vars, true, true)
		require.Equal(t, out, new(big.Int).Add(amount, fee), "payout plus fee must equal the pre-fee conversion")
	}
}

func TestConvertMonotonicInSize(t *testing.T) {
	vars := FeeVariables{RelayerFee: 42_000, FeePoint: big.NewInt(7)}
	prev := big.NewInt(-1)
	for size := int64(0); size < 500; size++ {
		amount, _ := Convert(big.NewInt(size), big.NewInt(987_654), vars, true, true)
		require.GreaterOrEqual(t, amount.Cmp(prev), 0, "payout must be monotonic in size")
		prev = amount
	}
}

func TestConvertDoesNotMutateInputs(t *testing.T) {
	size := big.NewInt(100)
	rate := big.NewInt(RateDenominator)
	Convert(size, rate, FeeVariables{RelayerFee: 1000, FeePoint: big.NewInt(1)}, true, true)
	require.Equal(t, int64(100), size.Int64())
	require.Equal(t, int64(RateDenominator), rate.Int64())
}
