package untron

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ultrasoundlabs/untron-v1/core/types"
)

// Verifier is the proof-verification capability. Given a proof and the raw
// public values it attests to, it accepts or rejects; the engine treats it as
// an opaque boolean oracle.
type Verifier interface {
	Verify(proof, publicValues []byte) error
}

// PublicValues is the decoded settlement batch a relayer submits alongside a
// proof: the new checkpoint block, the observer state transition, the latest
// action the proof attests to have observed, and the per-order inflows.
type PublicValues struct {
	BlockID              [32]byte
	OldStateHash         [32]byte
	NewStateHash         [32]byte
	LatestIncludedAction [32]byte
	Inflows              []Inflow
}

// The public-values encoding is a frozen wire contract shared with the
// observer program:
//
//	blockID[32] || oldStateHash[32] || newStateHash[32] ||
//	latestIncludedAction[32] || count[4, big-endian] ||
//	count * (orderID[32] || amount[32, big-endian])

// EncodePublicValues renders the batch in the canonical wire encoding.
func EncodePublicValues(pv PublicValues) []byte {
	buf := make([]byte, 0, 4*32+4+len(pv.Inflows)*64)
	buf = append(buf, pv.BlockID[:]...)
	buf = append(buf, pv.OldStateHash[:]...)
	buf = append(buf, pv.NewStateHash[:]...)
	buf = append(buf, pv.LatestIncludedAction[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(pv.Inflows)))
	for _, inflow := range pv.Inflows {
		buf = append(buf, inflow.OrderID[:]...)
		buf = append(buf, pad32(inflow.Amount)...)
	}
	return buf
}

// DecodePublicValues parses the canonical wire encoding.
func DecodePublicValues(raw []byte) (PublicValues, error) {
	var pv PublicValues
	if len(raw) < 4*32+4 {
		return pv, fmt.Errorf("untron: public values truncated")
	}
	copy(pv.BlockID[:], raw[0:32])
	copy(pv.OldStateHash[:], raw[32:64])
	copy(pv.NewStateHash[:], raw[64:96])
	copy(pv.LatestIncludedAction[:], raw[96:128])
	count := binary.BigEndian.Uint32(raw[128:132])
	body := raw[132:]
	if uint64(len(body)) != uint64(count)*64 {
		return pv, fmt.Errorf("untron: public values length mismatch")
	}
	pv.Inflows = make([]Inflow, count)
	for i := range pv.Inflows {
		entry := body[i*64 : (i+1)*64]
		copy(pv.Inflows[i].OrderID[:], entry[:32])
		pv.Inflows[i].Amount = new(big.Int).SetBytes(entry[32:64])
	}
	return pv, nil
}

func (e *Engine) verifyBatch(caller [20]byte, proof, publicValues []byte) error {
	if e.verifier != nil {
		return e.verifier.Verify(proof, publicValues)
	}
	relayer, ok := e.state.TrustedRelayer()
	if !ok {
		return fmt.Errorf("untron: no verifier or trusted relayer configured")
	}
	if caller != relayer {
		return fmt.Errorf("untron: caller is not the trusted relayer")
	}
	return nil
}

// SettlementResult summarises a committed settlement batch.
type SettlementResult struct {
	Closed      int
	TotalInflow *big.Int
	TotalFee    *big.Int
}

// CloseOrders settles a proved batch of remote-chain inflows. For each
// referenced order it pays out the converted effective inflow, disposes of the
// collateral, releases the receiver when it is still bound to the order,
// returns unconsumed liquidity to the provider and retires the order. The
// accumulated protocol fee is swept to the owner and the checkpoint markers
// advance. The whole batch is atomic.
func (e *Engine) CloseOrders(caller [20]byte, proof, publicValues []byte) (*SettlementResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if err := e.verifyBatch(caller, proof, publicValues); err != nil {
		return nil, err
	}
	pv, err := DecodePublicValues(publicValues)
	if err != nil {
		return nil, err
	}
	seen := make(map[[32]byte]struct{}, len(pv.Inflows))
	for _, inflow := range pv.Inflows {
		if _, dup := seen[inflow.OrderID]; dup {
			return nil, fmt.Errorf("untron: duplicate order in settlement batch")
		}
		seen[inflow.OrderID] = struct{}{}
	}
	result := &SettlementResult{TotalInflow: big.NewInt(0), TotalFee: big.NewInt(0)}
	err = e.runTxn(func(pending *[]*types.Event) error {
		now := e.now()
		chain := e.state.ChainState()
		if pv.OldStateHash != chain.StateHash {
			return fmt.Errorf("untron: stale state hash")
		}
		if !e.state.ActionKnown(pv.LatestIncludedAction) {
			return fmt.Errorf("untron: unknown latest included action")
		}
		feeVars := e.state.FeeVariables()
		totalFee := big.NewInt(0)
		for _, inflow := range pv.Inflows {
			order, ok := e.state.OrderGet(inflow.OrderID)
			if !ok {
				return errOrderNotFound
			}
			effective := cloneBigInt(inflow.Amount)
			if effective.Cmp(order.Size) > 0 {
				effective.Set(order.Size)
			}
			payout, fee := Convert(effective, order.Rate, feeVars, true, !order.IsFulfilled)
			totalFee.Add(totalFee, fee)
			if err := e.transfers.Payout(&order.Transfer, payout); err != nil {
				return err
			}
			if effective.Sign() == 0 {
				if err := e.transfers.Push(e.owner, order.Collateral); err != nil {
					return err
				}
			} else {
				if err := e.transfers.Push(order.Creator, order.Collateral); err != nil {
					return err
				}
			}
			if !order.IsFulfilled {
				// A force-released expired order no longer holds the busy
				// marker, and the receiver may already carry a newer order.
				// Only release the binding that still points at this order.
				if busyID, busy := e.state.ReceiverOrder(order.Receiver); busy && busyID == order.ID {
					if err := e.freeReceiver(now, order.Receiver, pending); err != nil {
						return err
					}
				}
			}
			remaining, _ := Convert(new(big.Int).Sub(order.Size, effective), order.Rate, feeVars, false, false)
			prov, ok := e.state.ProviderGet(order.Provider)
			if !ok {
				return errProviderUnknown
			}
			prov.Liquidity = new(big.Int).Add(prov.Liquidity, remaining)
			if err := e.state.ProviderPut(prov); err != nil {
				return err
			}
			if err := e.state.OrderDelete(order.ID); err != nil {
				return err
			}
			result.Closed++
			result.TotalInflow.Add(result.TotalInflow, effective)
			*pending = append(*pending, NewOrderClosedEvent(order, effective, payout))
		}
		if err := e.transfers.Push(e.owner, totalFee); err != nil {
			return err
		}
		chain.StateHash = pv.NewStateHash
		chain.LatestIncludedAction = pv.LatestIncludedAction
		chain.BlockID = pv.BlockID
		if err := e.state.SetChainState(chain); err != nil {
			return err
		}
		result.TotalFee.Set(totalFee)
		*pending = append(*pending, NewRelayUpdatedEvent(chain, len(pv.Inflows), totalFee))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
