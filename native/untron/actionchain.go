package untron

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
)

// The action chain is the only authenticated channel between the local engine
// and the remote observer program: the observer replays the identical digest
// formula to recognise the same events, so the encoding below is a frozen wire
// contract. Each entry is
//
//	SHA256(prevTip[32] || timestamp[8, big-endian] || receiver[21] ||
//	       minDeposit[32, big-endian] || size[32, big-endian])
//
// with the timestamp in remote-ledger (Tron) milliseconds. The degenerate
// tuple (minDeposit=0, size=0) marks a receiver release; any other tuple opens
// an order, and its digest doubles as the order identifier.

// chainAction computes the next action-chain digest from the current tip and
// the action tuple.
func chainAction(prevTip [32]byte, timestamp int64, receiver TronAddress, minDeposit, size *big.Int) [32]byte {
	buf := make([]byte, 0, 32+8+21+32+32)
	buf = append(buf, prevTip[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))
	buf = append(buf, receiver[:]...)
	buf = append(buf, pad32(minDeposit)...)
	buf = append(buf, pad32(size)...)
	return sha256.Sum256(buf)
}

func pad32(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil || v.Sign() <= 0 {
		return out
	}
	return v.FillBytes(out)
}

// advanceChain appends an action to the chain: it computes the next digest,
// records it in the membership set and moves the tip. The returned digest is
// the identifier of the chained action.
func (e *Engine) advanceChain(timestamp int64, receiver TronAddress, minDeposit, size *big.Int) ([32]byte, error) {
	tip := e.state.ActionTip()
	next := chainAction(tip, timestamp, receiver, minDeposit, size)
	if err := e.state.RecordAction(next); err != nil {
		return [32]byte{}, err
	}
	if err := e.state.SetActionTip(next); err != nil {
		return [32]byte{}, err
	}
	return next, nil
}
