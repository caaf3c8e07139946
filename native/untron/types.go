package untron

import (
	"fmt"
	"math/big"
)

// TronAddress is the fixed-size remote-chain receiver address format (one
// version byte followed by a 20-byte hash).
type TronAddress [21]byte

// Provider captures a liquidity provider's pool, quote parameters and the set
// of remote receiver addresses it controls.
type Provider struct {
	Address      [20]byte
	Liquidity    *big.Int
	Rate         *big.Int
	MinOrderSize *big.Int
	MinDeposit   *big.Int
	Receivers    []TronAddress
}

// Clone returns a deep copy of the provider so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Provider) Clone() *Provider {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Liquidity = cloneBigInt(p.Liquidity)
	clone.Rate = cloneBigInt(p.Rate)
	clone.MinOrderSize = cloneBigInt(p.MinOrderSize)
	clone.MinDeposit = cloneBigInt(p.MinDeposit)
	clone.Receivers = append([]TronAddress(nil), p.Receivers...)
	return &clone
}

// Transfer is the payout instruction attached to an order. The engine treats
// it as opaque and hands it to the transfers surface together with an amount;
// the bridge/swap fields are interpreted by that collaborator, not here.
type Transfer struct {
	Recipient        [20]byte
	ChainID          uint64
	BridgeFee        *big.Int
	DoSwap           bool
	OutToken         [20]byte
	MinOutputPerUSDT *big.Int
	FixedOutput      bool
	SwapData         []byte
}

// Clone returns a deep copy of the transfer instruction.
func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	clone := *t
	clone.BridgeFee = cloneBigInt(t.BridgeFee)
	clone.MinOutputPerUSDT = cloneBigInt(t.MinOutputPerUSDT)
	clone.SwapData = append([]byte(nil), t.SwapData...)
	return &clone
}

// Order is a reservation against a provider's liquidity. The identifier is the
// action-chain digest produced when the order was chained, so it is derived
// from content rather than assigned.
type Order struct {
	ID          [32]byte
	Timestamp   int64
	Creator     [20]byte
	Provider    [20]byte
	Receiver    TronAddress
	Size        *big.Int
	Rate        *big.Int
	MinDeposit  *big.Int
	Collateral  *big.Int
	IsFulfilled bool
	Transfer    Transfer
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Size = cloneBigInt(o.Size)
	clone.Rate = cloneBigInt(o.Rate)
	clone.MinDeposit = cloneBigInt(o.MinDeposit)
	clone.Collateral = cloneBigInt(o.Collateral)
	clone.Transfer = *o.Transfer.Clone()
	return &clone
}

// Inflow is one externally proved observation of how much value an order's
// creator actually sent on the remote chain. Inflows are consumed once per
// settlement batch and never persisted.
type Inflow struct {
	OrderID [32]byte
	Amount  *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func requirePositive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("untron: %s must be positive", name)
	}
	return nil
}
