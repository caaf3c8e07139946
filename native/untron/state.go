package untron

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ultrasoundlabs/untron-v1/core/types"
	"github.com/ultrasoundlabs/untron-v1/storage"
)

// ChainState carries the settlement-level synchronisation markers: the action
// chain tip, the latest action attested by a proof, the fingerprint of the
// remote observer's internal state and the checkpoint block identifier.
type ChainState struct {
	ActionTip            [32]byte
	LatestIncludedAction [32]byte
	StateHash            [32]byte
	BlockID              [32]byte
}

// StateStore persists all engine state in a key-value database using RLP
// encoded records. Writes are buffered in an overlay until Commit so each
// public engine operation is all-or-nothing (Rollback discards the overlay).
type StateStore struct {
	db      storage.Database
	pending map[string]pendingWrite
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// NewStateStore binds a state store to the provided database.
func NewStateStore(db storage.Database) *StateStore {
	return &StateStore{db: db}
}

// Begin opens a write overlay. Until Commit, all mutations are staged in
// memory and visible only through this store.
func (s *StateStore) Begin() {
	s.pending = make(map[string]pendingWrite)
}

// Commit flushes the overlay to the underlying database and closes it. A
// failed flush leaves the database partially written only if the backend
// itself fails mid-batch; LevelDB and MemDB writes do not fail in practice.
func (s *StateStore) Commit() error {
	for key, write := range s.pending {
		if write.deleted {
			if err := s.db.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := s.db.Put([]byte(key), write.value); err != nil {
			return err
		}
	}
	s.pending = nil
	return nil
}

// Rollback discards the overlay.
func (s *StateStore) Rollback() {
	s.pending = nil
}

func (s *StateStore) put(key []byte, value []byte) error {
	if s.pending != nil {
		s.pending[string(key)] = pendingWrite{value: value}
		return nil
	}
	return s.db.Put(key, value)
}

func (s *StateStore) delete(key []byte) error {
	if s.pending != nil {
		s.pending[string(key)] = pendingWrite{deleted: true}
		return nil
	}
	return s.db.Delete(key)
}

func (s *StateStore) get(key []byte) ([]byte, bool) {
	if s.pending != nil {
		if write, ok := s.pending[string(key)]; ok {
			if write.deleted {
				return nil, false
			}
			return write.value, true
		}
	}
	value, err := s.db.Get(key)
	if err != nil {
		return nil, false
	}
	return value, true
}

func (s *StateStore) has(key []byte) bool {
	if s.pending != nil {
		if write, ok := s.pending[string(key)]; ok {
			return !write.deleted
		}
	}
	ok, err := s.db.Has(key)
	return err == nil && ok
}

func (s *StateStore) putRecord(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("untron state: encode record: %w", err)
	}
	return s.put(key, encoded)
}

func (s *StateStore) getRecord(key []byte, out interface{}) bool {
	encoded, ok := s.get(key)
	if !ok {
		return false
	}
	return rlp.DecodeBytes(encoded, out) == nil
}

// --- providers ---

type storedProvider struct {
	Liquidity    *big.Int
	Rate         *big.Int
	MinOrderSize *big.Int
	MinDeposit   *big.Int
	Receivers    []TronAddress
}

// ProviderGet loads a provider record by address.
func (s *StateStore) ProviderGet(addr [20]byte) (*Provider, bool) {
	var stored storedProvider
	if !s.getRecord(providerKey(addr), &stored) {
		return nil, false
	}
	return &Provider{
		Address:      addr,
		Liquidity:    cloneBigInt(stored.Liquidity),
		Rate:         cloneBigInt(stored.Rate),
		MinOrderSize: cloneBigInt(stored.MinOrderSize),
		MinDeposit:   cloneBigInt(stored.MinDeposit),
		Receivers:    append([]TronAddress(nil), stored.Receivers...),
	}, true
}

// ProviderPut persists a provider record keyed by its address.
func (s *StateStore) ProviderPut(p *Provider) error {
	if p == nil {
		return errors.New("untron state: nil provider")
	}
	return s.putRecord(providerKey(p.Address), &storedProvider{
		Liquidity:    cloneBigInt(p.Liquidity),
		Rate:         cloneBigInt(p.Rate),
		MinOrderSize: cloneBigInt(p.MinOrderSize),
		MinDeposit:   cloneBigInt(p.MinDeposit),
		Receivers:    append([]TronAddress(nil), p.Receivers...),
	})
}

// --- orders ---

type storedTransfer struct {
	Recipient        [20]byte
	ChainID          uint64
	BridgeFee        *big.Int
	DoSwap           bool
	OutToken         [20]byte
	MinOutputPerUSDT *big.Int
	FixedOutput      bool
	SwapData         []byte
}

type storedOrder struct {
	Timestamp   uint64
	Creator     [20]byte
	Provider    [20]byte
	Receiver    TronAddress
	Size        *big.Int
	Rate        *big.Int
	MinDeposit  *big.Int
	Collateral  *big.Int
	IsFulfilled bool
	Transfer    storedTransfer
}

// OrderGet loads an order record by identifier.
func (s *StateStore) OrderGet(id [32]byte) (*Order, bool) {
	var stored storedOrder
	if !s.getRecord(orderKey(id), &stored) {
		return nil, false
	}
	return &Order{
		ID:          id,
		Timestamp:   int64(stored.Timestamp),
		Creator:     stored.Creator,
		Provider:    stored.Provider,
		Receiver:    stored.Receiver,
		Size:        cloneBigInt(stored.Size),
		Rate:        cloneBigInt(stored.Rate),
		MinDeposit:  cloneBigInt(stored.MinDeposit),
		Collateral:  cloneBigInt(stored.Collateral),
		IsFulfilled: stored.IsFulfilled,
		Transfer: Transfer{
			Recipient:        stored.Transfer.Recipient,
			ChainID:          stored.Transfer.ChainID,
			BridgeFee:        cloneBigInt(stored.Transfer.BridgeFee),
			DoSwap:           stored.Transfer.DoSwap,
			OutToken:         stored.Transfer.OutToken,
			MinOutputPerUSDT: cloneBigInt(stored.Transfer.MinOutputPerUSDT),
			FixedOutput:      stored.Transfer.FixedOutput,
			SwapData:         append([]byte(nil), stored.Transfer.SwapData...),
		},
	}, true
}

// OrderPut persists an order record keyed by its identifier.
func (s *StateStore) OrderPut(o *Order) error {
	if o == nil {
		return errors.New("untron state: nil order")
	}
	return s.putRecord(orderKey(o.ID), &storedOrder{
		Timestamp:   uint64(o.Timestamp),
		Creator:     o.Creator,
		Provider:    o.Provider,
		Receiver:    o.Receiver,
		Size:        cloneBigInt(o.Size),
		Rate:        cloneBigInt(o.Rate),
		MinDeposit:  cloneBigInt(o.MinDeposit),
		Collateral:  cloneBigInt(o.Collateral),
		IsFulfilled: o.IsFulfilled,
		Transfer: storedTransfer{
			Recipient:        o.Transfer.Recipient,
			ChainID:          o.Transfer.ChainID,
			BridgeFee:        cloneBigInt(o.Transfer.BridgeFee),
			DoSwap:           o.Transfer.DoSwap,
			OutToken:         o.Transfer.OutToken,
			MinOutputPerUSDT: cloneBigInt(o.Transfer.MinOutputPerUSDT),
			FixedOutput:      o.Transfer.FixedOutput,
			SwapData:         append([]byte(nil), o.Transfer.SwapData...),
		},
	})
}

// OrderDelete removes an order record. Deletion is the terminal transition of
// every order lifecycle.
func (s *StateStore) OrderDelete(id [32]byte) error {
	return s.delete(orderKey(id))
}

// --- receivers ---

// ReceiverOwner returns the provider currently owning the receiver, if any.
func (s *StateStore) ReceiverOwner(receiver TronAddress) ([20]byte, bool) {
	var owner [20]byte
	if !s.getRecord(receiverOwnerKey(receiver), &owner) {
		return [20]byte{}, false
	}
	return owner, true
}

// SetReceiverOwner assigns the receiver to a provider.
func (s *StateStore) SetReceiverOwner(receiver TronAddress, owner [20]byte) error {
	return s.putRecord(receiverOwnerKey(receiver), &owner)
}

// ClearReceiverOwner releases receiver ownership.
func (s *StateStore) ClearReceiverOwner(receiver TronAddress) error {
	return s.delete(receiverOwnerKey(receiver))
}

// ReceiverOrder returns the open order currently bound to the receiver, if
// any.
func (s *StateStore) ReceiverOrder(receiver TronAddress) ([32]byte, bool) {
	var id [32]byte
	if !s.getRecord(receiverOrderKey(receiver), &id) {
		return [32]byte{}, false
	}
	return id, true
}

// SetReceiverOrder marks the receiver busy with the given order.
func (s *StateStore) SetReceiverOrder(receiver TronAddress, id [32]byte) error {
	return s.putRecord(receiverOrderKey(receiver), &id)
}

// ClearReceiverOrder marks the receiver idle.
func (s *StateStore) ClearReceiverOrder(receiver TronAddress) error {
	return s.delete(receiverOrderKey(receiver))
}

// --- action chain ---

// ChainState loads the settlement markers. A fresh store reports the zero
// value, which is the genesis chain state.
func (s *StateStore) ChainState() ChainState {
	var state ChainState
	s.getRecord(chainStateKey, &state)
	return state
}

// SetChainState persists the settlement markers.
func (s *StateStore) SetChainState(state ChainState) error {
	return s.putRecord(chainStateKey, &state)
}

// ActionTip returns the latest action-chain digest.
func (s *StateStore) ActionTip() [32]byte {
	return s.ChainState().ActionTip
}

// SetActionTip moves the action-chain tip.
func (s *StateStore) SetActionTip(tip [32]byte) error {
	state := s.ChainState()
	state.ActionTip = tip
	return s.SetChainState(state)
}

// ActionKnown reports whether the digest was ever produced by the chain.
func (s *StateStore) ActionKnown(digest [32]byte) bool {
	return s.has(actionKey(digest))
}

// RecordAction adds a digest to the membership set. Membership is append-only;
// digests are never removed.
func (s *StateStore) RecordAction(digest [32]byte) error {
	return s.put(actionKey(digest), []byte{1})
}

// --- parameters ---

type storedCoreVariables struct {
	MaxOrderSize       *big.Int
	RequiredCollateral *big.Int
	OrderTTLMillis     uint64
}

// CoreVariables loads the order-sizing and expiry parameters.
func (s *StateStore) CoreVariables() CoreVariables {
	var stored storedCoreVariables
	if !s.getRecord(coreVariablesKey, &stored) {
		return CoreVariables{MaxOrderSize: big.NewInt(0), RequiredCollateral: big.NewInt(0)}
	}
	return CoreVariables{
		MaxOrderSize:       cloneBigInt(stored.MaxOrderSize),
		RequiredCollateral: cloneBigInt(stored.RequiredCollateral),
		OrderTTLMillis:     stored.OrderTTLMillis,
	}
}

// SetCoreVariables persists the order-sizing and expiry parameters.
func (s *StateStore) SetCoreVariables(vars CoreVariables) error {
	return s.putRecord(coreVariablesKey, &storedCoreVariables{
		MaxOrderSize:       cloneBigInt(vars.MaxOrderSize),
		RequiredCollateral: cloneBigInt(vars.RequiredCollateral),
		OrderTTLMillis:     vars.OrderTTLMillis,
	})
}

type storedFeeVariables struct {
	RelayerFee uint64
	FeePoint   *big.Int
}

// FeeVariables loads the fee parameters used by the conversion engine.
func (s *StateStore) FeeVariables() FeeVariables {
	var stored storedFeeVariables
	if !s.getRecord(feeVariablesKey, &stored) {
		return FeeVariables{FeePoint: big.NewInt(0)}
	}
	return FeeVariables{RelayerFee: stored.RelayerFee, FeePoint: cloneBigInt(stored.FeePoint)}
}

// SetFeeVariables persists the fee parameters.
func (s *StateStore) SetFeeVariables(vars FeeVariables) error {
	return s.putRecord(feeVariablesKey, &storedFeeVariables{
		RelayerFee: vars.RelayerFee,
		FeePoint:   cloneBigInt(vars.FeePoint),
	})
}

// TrustedRelayer returns the bootstrap relayer identity, if configured.
func (s *StateStore) TrustedRelayer() ([20]byte, bool) {
	var relayer [20]byte
	if !s.getRecord(zkVariablesKey, &relayer) {
		return [20]byte{}, false
	}
	return relayer, true
}

// SetTrustedRelayer persists the bootstrap relayer identity.
func (s *StateStore) SetTrustedRelayer(relayer [20]byte) error {
	return s.putRecord(zkVariablesKey, &relayer)
}

// --- accounts ---

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// AccountGet loads a local-ledger account, returning a zero-balance account
// for unknown addresses.
func (s *StateStore) AccountGet(addr [20]byte) *types.Account {
	var stored storedAccount
	if !s.getRecord(accountKey(addr), &stored) {
		return &types.Account{Balance: big.NewInt(0)}
	}
	return &types.Account{Nonce: stored.Nonce, Balance: cloneBigInt(stored.Balance)}
}

// AccountPut persists a local-ledger account.
func (s *StateStore) AccountPut(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return errors.New("untron state: nil account")
	}
	balance := acc.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return s.putRecord(accountKey(addr), &storedAccount{
		Nonce:   acc.Nonce,
		Balance: new(big.Int).Set(balance),
	})
}
