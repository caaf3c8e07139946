package untron

import (
	"fmt"
	"math/big"
)

// Transfers is the value-movement surface the engine settles through. Pull
// moves funds from an address into the engine vault, Push moves vault funds to
// an address, and Payout delivers converted funds according to an order's
// payout instruction. Implementations must either complete the movement or
// report failure without losing funds; the engine aborts the whole operation
// on any error.
type Transfers interface {
	Pull(from [20]byte, amount *big.Int) error
	Push(to [20]byte, amount *big.Int) error
	Payout(instruction *Transfer, amount *big.Int) error
}

// LedgerTransfers implements the transfers surface against the account ledger
// held in the same state store as the rest of the engine, so a rolled-back
// operation unwinds its value movement together with its bookkeeping. Bridge
// and swap fields of the payout instruction are ignored here: funds are
// credited to the recipient's local account and any onward routing is an
// external concern.
type LedgerTransfers struct {
	state *StateStore
	vault [20]byte
}

// NewLedgerTransfers binds the ledger-backed transfers surface to a state
// store and a vault address holding escrowed funds.
func NewLedgerTransfers(state *StateStore, vault [20]byte) *LedgerTransfers {
	return &LedgerTransfers{state: state, vault: vault}
}

// Vault returns the escrow vault address.
func (l *LedgerTransfers) Vault() [20]byte { return l.vault }

// Pull moves funds from an account into the vault.
func (l *LedgerTransfers) Pull(from [20]byte, amount *big.Int) error {
	return l.move(from, l.vault, amount)
}

// Push moves funds from the vault to an account.
func (l *LedgerTransfers) Push(to [20]byte, amount *big.Int) error {
	return l.move(l.vault, to, amount)
}

// Payout delivers converted funds to the instruction's recipient.
func (l *LedgerTransfers) Payout(instruction *Transfer, amount *big.Int) error {
	if instruction == nil {
		return fmt.Errorf("untron transfers: nil payout instruction")
	}
	return l.move(l.vault, instruction.Recipient, amount)
}

func (l *LedgerTransfers) move(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("untron transfers: negative transfer amount")
	}
	if from == to {
		return nil
	}
	fromAcc := l.state.AccountGet(from)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("untron transfers: insufficient balance")
	}
	toAcc := l.state.AccountGet(to)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := l.state.AccountPut(from, fromAcc); err != nil {
		return err
	}
	return l.state.AccountPut(to, toAcc)
}
