package untron

import (
	"fmt"
	"math/big"
)

// CoreVariables bounds order creation and expiry. MaxOrderSize and
// RequiredCollateral are local-ledger amounts; OrderTTLMillis is measured on
// the remote-ledger clock.
type CoreVariables struct {
	MaxOrderSize       *big.Int
	RequiredCollateral *big.Int
	OrderTTLMillis     uint64
}

// Clone returns a deep copy of the core variables.
func (v CoreVariables) Clone() CoreVariables {
	return CoreVariables{
		MaxOrderSize:       cloneBigInt(v.MaxOrderSize),
		RequiredCollateral: cloneBigInt(v.RequiredCollateral),
		OrderTTLMillis:     v.OrderTTLMillis,
	}
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner {
		return fmt.Errorf("untron: caller is not the owner")
	}
	return nil
}

// SetCoreVariables force-sets the synchronisation markers together with the
// order bounds. This is bootstrap plumbing: it lets the owner seed the genesis
// chain state and retune limits, and is not part of any settlement path.
func (e *Engine) SetCoreVariables(caller [20]byte, blockID, actionChainTip, latestIncludedAction, stateHash [32]byte, vars CoreVariables) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if vars.MaxOrderSize == nil || vars.MaxOrderSize.Sign() < 0 {
		return fmt.Errorf("untron: max order size must be non-negative")
	}
	if vars.RequiredCollateral == nil || vars.RequiredCollateral.Sign() < 0 {
		return fmt.Errorf("untron: required collateral must be non-negative")
	}
	e.state.Begin()
	chain := ChainState{
		ActionTip:            actionChainTip,
		LatestIncludedAction: latestIncludedAction,
		StateHash:            stateHash,
		BlockID:              blockID,
	}
	if err := e.state.SetChainState(chain); err != nil {
		e.state.Rollback()
		return err
	}
	if actionChainTip != ([32]byte{}) {
		if err := e.state.RecordAction(actionChainTip); err != nil {
			e.state.Rollback()
			return err
		}
	}
	if err := e.state.SetCoreVariables(vars.Clone()); err != nil {
		e.state.Rollback()
		return err
	}
	return e.state.Commit()
}

// SetFeesVariables retunes the relayer and fulfiller fees.
func (e *Engine) SetFeesVariables(caller [20]byte, relayerFee uint64, feePoint *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if relayerFee > RateDenominator {
		return fmt.Errorf("untron: relayer fee out of range")
	}
	if feePoint == nil || feePoint.Sign() < 0 {
		return fmt.Errorf("untron: fee point must be non-negative")
	}
	e.state.Begin()
	if err := e.state.SetFeeVariables(FeeVariables{RelayerFee: relayerFee, FeePoint: cloneBigInt(feePoint)}); err != nil {
		e.state.Rollback()
		return err
	}
	return e.state.Commit()
}

// SetZKVariables configures proof verification: the verifier capability used
// for settlement batches and the trusted relayer accepted while no verifier is
// configured.
func (e *Engine) SetZKVariables(caller [20]byte, trustedRelayer [20]byte, verifier Verifier) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.state.Begin()
	if err := e.state.SetTrustedRelayer(trustedRelayer); err != nil {
		e.state.Rollback()
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.verifier = verifier
	return nil
}

// CoreVariables returns the current order bounds.
func (e *Engine) CoreVariables() CoreVariables {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return CoreVariables{MaxOrderSize: big.NewInt(0), RequiredCollateral: big.NewInt(0)}
	}
	return e.state.CoreVariables()
}

// FeeVariables returns the current fee parameters.
func (e *Engine) FeeVariables() FeeVariables {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return FeeVariables{FeePoint: big.NewInt(0)}
	}
	return e.state.FeeVariables()
}
