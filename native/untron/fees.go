package untron

import "math/big"

// RateDenominator is the fixed-point scale shared by provider rates and the
// relayer fee. A rate of exactly RateDenominator converts remote units to
// local units one to one.
const RateDenominator = 1_000_000

var rateDenominator = big.NewInt(RateDenominator)

// FeeVariables holds the protocol fee parameters applied during conversion.
// RelayerFee is expressed in parts of RateDenominator; FeePoint is the flat
// fee a fulfiller earns per order, in local-ledger units.
type FeeVariables struct {
	RelayerFee uint64
	FeePoint   *big.Int
}

// Clone returns a deep copy of the fee variables.
func (v FeeVariables) Clone() FeeVariables {
	return FeeVariables{RelayerFee: v.RelayerFee, FeePoint: cloneBigInt(v.FeePoint)}
}

// Convert maps a remote-ledger amount into a local-ledger payout and the fee
// withheld from it. All divisions truncate, so rounding always favours the fee
// side and never the payee. The result is monotonic in size for a fixed rate.
func Convert(size, rate *big.Int, vars FeeVariables, includeRelayerFee, includeFulfillerFee bool) (*big.Int, *big.Int) {
	out := new(big.Int).Mul(cloneBigInt(size), cloneBigInt(rate))
	out.Div(out, rateDenominator)

	amount := new(big.Int).Set(out)
	fee := big.NewInt(0)

	if includeRelayerFee {
		relayerFee := vars.RelayerFee
		if relayerFee > RateDenominator {
			relayerFee = RateDenominator
		}
		discounted := new(big.Int).SetUint64(RateDenominator - relayerFee)
		amount.Mul(amount, discounted)
		amount.Div(amount, rateDenominator)
		fee.Sub(out, amount)
	}
	if includeFulfillerFee {
		flat := cloneBigInt(vars.FeePoint)
		if flat.Cmp(amount) > 0 {
			flat.Set(amount)
		}
		amount.Sub(amount, flat)
		fee.Add(fee, flat)
	}
	return amount, fee
}
