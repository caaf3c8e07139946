package untron

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ultrasoundlabs/untron-v1/core/events"
	"github.com/ultrasoundlabs/untron-v1/core/types"
)

var (
	errNilState        = errors.New("untron engine: state not configured")
	errNilTransfers    = errors.New("untron engine: transfers surface not configured")
	errOrderNotFound   = errors.New("untron engine: order not found")
	errProviderUnknown = errors.New("untron engine: provider not found")
)

// Engine is the order/liquidity escrow and settlement core. Every public
// operation is atomic: it runs under the engine lock inside one state-store
// transaction, and any failure unwinds all of its effects, value movement
// included.
type Engine struct {
	mu        sync.Mutex
	state     *StateStore
	transfers Transfers
	verifier  Verifier
	emitter   events.Emitter
	owner     [20]byte
	nowFn     func() int64
}

// NewEngine creates an engine bound to a state store and a transfers surface,
// with a no-op emitter. Callers can override the emitter via SetEmitter.
func NewEngine(state *StateStore, transfers Transfers) *Engine {
	return &Engine{
		state:     state,
		transfers: transfers,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().UnixMilli() },
	}
}

// SetOwner configures the protocol owner: the identity allowed to retune
// parameters and the destination of slashed collateral and protocol fees.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// Owner returns the protocol owner.
func (e *Engine) Owner() [20]byte { return e.owner }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the remote-ledger clock, in unix milliseconds.
// Primarily intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().UnixMilli() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().UnixMilli()
	}
	return e.nowFn()
}

func (e *Engine) emit(evts []*types.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	for _, evt := range evts {
		if evt != nil {
			e.emitter.Emit(untronEvent{evt: evt})
		}
	}
}

// runTxn executes fn inside a state transaction and commits only on success.
// Events produced by fn are emitted after the commit so subscribers never see
// effects of a rolled-back operation.
func (e *Engine) runTxn(fn func(pending *[]*types.Event) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.transfers == nil {
		return errNilTransfers
	}
	var pending []*types.Event
	e.state.Begin()
	if err := fn(&pending); err != nil {
		e.state.Rollback()
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.emit(pending)
	return nil
}

func (e *Engine) orderExpired(order *Order, now int64) bool {
	ttl := e.state.CoreVariables().OrderTTLMillis
	return now > order.Timestamp+int64(ttl)
}

// freeReceiver releases a busy receiver: it clears the busy marker and chains
// the zero action so the remote observer stops attributing deposits to the
// closed order. A call on an idle receiver indicates a bug upstream and fails.
func (e *Engine) freeReceiver(now int64, receiver TronAddress, pending *[]*types.Event) error {
	if _, busy := e.state.ReceiverOrder(receiver); !busy {
		return fmt.Errorf("untron: receiver is not busy")
	}
	if err := e.state.ClearReceiverOrder(receiver); err != nil {
		return err
	}
	if _, err := e.advanceChain(now, receiver, big.NewInt(0), big.NewInt(0)); err != nil {
		return err
	}
	*pending = append(*pending, NewReceiverFreedEvent(receiver))
	return nil
}

// SetProvider registers the caller as a liquidity provider or updates its
// quote. The liquidity delta is settled immediately through the transfers
// surface and the receiver set is replaced wholesale; a currently busy
// receiver whose order has not expired fails the whole call.
func (e *Engine) SetProvider(caller [20]byte, liquidity, rate, minOrderSize, minDeposit *big.Int, receivers []TronAddress) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := requirePositive("liquidity", liquidity); err != nil {
		return err
	}
	if err := requirePositive("rate", rate); err != nil {
		return err
	}
	if err := requirePositive("min order size", minOrderSize); err != nil {
		return err
	}
	if err := requirePositive("min deposit", minDeposit); err != nil {
		return err
	}
	if minDeposit.Cmp(minOrderSize) > 0 {
		return fmt.Errorf("untron: min deposit exceeds min order size")
	}
	return e.runTxn(func(pending *[]*types.Event) error {
		now := e.now()
		current := big.NewInt(0)
		if existing, ok := e.state.ProviderGet(caller); ok {
			current = existing.Liquidity
			for _, receiver := range existing.Receivers {
				if id, busy := e.state.ReceiverOrder(receiver); busy {
					order, found := e.state.OrderGet(id)
					if found && !e.orderExpired(order, now) {
						return fmt.Errorf("untron: receiver is busy with an active order")
					}
					if err := e.freeReceiver(now, receiver, pending); err != nil {
						return err
					}
				}
				if err := e.state.ClearReceiverOwner(receiver); err != nil {
					return err
				}
			}
		}
		switch liquidity.Cmp(current) {
		case 1:
			if err := e.transfers.Pull(caller, new(big.Int).Sub(liquidity, current)); err != nil {
				return err
			}
		case -1:
			if err := e.transfers.Push(caller, new(big.Int).Sub(current, liquidity)); err != nil {
				return err
			}
		}
		for _, receiver := range receivers {
			if owner, owned := e.state.ReceiverOwner(receiver); owned && owner != caller {
				return fmt.Errorf("untron: receiver is owned by another provider")
			}
			if err := e.state.SetReceiverOwner(receiver, caller); err != nil {
				return err
			}
		}
		provider := &Provider{
			Address:      caller,
			Liquidity:    cloneBigInt(liquidity),
			Rate:         cloneBigInt(rate),
			MinOrderSize: cloneBigInt(minOrderSize),
			MinDeposit:   cloneBigInt(minDeposit),
			Receivers:    append([]TronAddress(nil), receivers...),
		}
		if err := e.state.ProviderPut(provider); err != nil {
			return err
		}
		*pending = append(*pending, NewProviderUpdatedEvent(provider))
		return nil
	})
}

// CreateOrder opens an order against a provider's receiver. The creator
// escrows the required collateral, the provider's liquidity is debited by the
// converted amount and the action chain is advanced; the new digest is the
// order identifier.
func (e *Engine) CreateOrder(creator, provider [20]byte, receiver TronAddress, size, rate *big.Int, transfer Transfer) ([32]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var orderID [32]byte
	err := e.runTxn(func(pending *[]*types.Event) error {
		now := e.now()
		feeVars := e.state.FeeVariables()
		coreVars := e.state.CoreVariables()
		amount, _ := Convert(size, rate, feeVars, false, false)
		if amount.Sign() <= 0 {
			return fmt.Errorf("untron: converted amount must be positive")
		}
		if id, busy := e.state.ReceiverOrder(receiver); busy {
			existing, found := e.state.OrderGet(id)
			if found && !e.orderExpired(existing, now) {
				return fmt.Errorf("untron: receiver is busy with an active order")
			}
			if err := e.freeReceiver(now, receiver, pending); err != nil {
				return err
			}
		}
		owner, owned := e.state.ReceiverOwner(receiver)
		if !owned || owner != provider {
			return fmt.Errorf("untron: receiver is not owned by the provider")
		}
		prov, ok := e.state.ProviderGet(provider)
		if !ok {
			return errProviderUnknown
		}
		if rate == nil || prov.Rate.Cmp(rate) != 0 {
			return fmt.Errorf("untron: rate does not match the provider's current rate")
		}
		if size == nil || size.Cmp(prov.MinOrderSize) < 0 {
			return fmt.Errorf("untron: order size below the provider minimum")
		}
		if size.Cmp(coreVars.MaxOrderSize) > 0 {
			return fmt.Errorf("untron: order size above the maximum")
		}
		if prov.Liquidity.Cmp(amount) < 0 {
			return fmt.Errorf("untron: provider liquidity is insufficient")
		}
		if err := e.transfers.Pull(creator, coreVars.RequiredCollateral); err != nil {
			return err
		}
		prov.Liquidity = new(big.Int).Sub(prov.Liquidity, amount)
		if err := e.state.ProviderPut(prov); err != nil {
			return err
		}
		id, err := e.advanceChain(now, receiver, prov.MinDeposit, size)
		if err != nil {
			return err
		}
		if err := e.state.SetReceiverOrder(receiver, id); err != nil {
			return err
		}
		order := &Order{
			ID:         id,
			Timestamp:  now,
			Creator:    creator,
			Provider:   provider,
			Receiver:   receiver,
			Size:       cloneBigInt(size),
			Rate:       cloneBigInt(rate),
			MinDeposit: cloneBigInt(prov.MinDeposit),
			Collateral: cloneBigInt(coreVars.RequiredCollateral),
			Transfer:   *transfer.Clone(),
		}
		if err := e.state.OrderPut(order); err != nil {
			return err
		}
		orderID = id
		*pending = append(*pending, NewOrderCreatedEvent(order))
		return nil
	})
	if err != nil {
		return [32]byte{}, err
	}
	return orderID, nil
}

// ChangeOrder replaces the payout instruction of a pending order. Only the
// current creator may change it, and only before fulfillment.
func (e *Engine) ChangeOrder(caller [20]byte, id [32]byte, transfer Transfer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runTxn(func(pending *[]*types.Event) error {
		order, ok := e.state.OrderGet(id)
		if !ok {
			return errOrderNotFound
		}
		if order.Creator != caller {
			return fmt.Errorf("untron: caller is not the order creator")
		}
		if order.IsFulfilled {
			return fmt.Errorf("untron: order is already fulfilled")
		}
		order.Transfer = *transfer.Clone()
		if err := e.state.OrderPut(order); err != nil {
			return err
		}
		*pending = append(*pending, NewOrderChangedEvent(order))
		return nil
	})
}

// StopOrder cancels a pending order before it expires. The receiver is
// released, the order's nominal size is credited back to the provider's
// liquidity and the collateral is refunded to the creator. Expired orders
// cannot be stopped: they must go through settlement.
func (e *Engine) StopOrder(caller [20]byte, id [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runTxn(func(pending *[]*types.Event) error {
		now := e.now()
		order, ok := e.state.OrderGet(id)
		if !ok {
			return errOrderNotFound
		}
		if order.Creator != caller {
			return fmt.Errorf("untron: caller is not the order creator")
		}
		if order.IsFulfilled {
			return fmt.Errorf("untron: order is already fulfilled")
		}
		if e.orderExpired(order, now) {
			return fmt.Errorf("untron: order has expired")
		}
		if err := e.freeReceiver(now, order.Receiver, pending); err != nil {
			return err
		}
		prov, ok := e.state.ProviderGet(order.Provider)
		if !ok {
			return errProviderUnknown
		}
		prov.Liquidity = new(big.Int).Add(prov.Liquidity, order.Size)
		if err := e.state.ProviderPut(prov); err != nil {
			return err
		}
		if err := e.transfers.Push(order.Creator, order.Collateral); err != nil {
			return err
		}
		if err := e.state.OrderDelete(id); err != nil {
			return err
		}
		*pending = append(*pending, NewOrderStoppedEvent(order))
		return nil
	})
}

// Fulfill advances the payout of a batch of orders in exchange for the flat
// fulfiller fee. The caller pre-declares a total that is pulled upfront; any
// surplus over the computed expense is refunded after the loop. The whole
// batch is atomic: one failing order aborts everything.
func (e *Engine) Fulfill(caller [20]byte, ids [][32]byte, total *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if total == nil || total.Sign() < 0 {
		return fmt.Errorf("untron: total must be non-negative")
	}
	return e.runTxn(func(pending *[]*types.Event) error {
		now := e.now()
		feeVars := e.state.FeeVariables()
		if err := e.transfers.Pull(caller, total); err != nil {
			return err
		}
		expected := big.NewInt(0)
		for _, id := range ids {
			order, ok := e.state.OrderGet(id)
			if !ok {
				return errOrderNotFound
			}
			if order.IsFulfilled {
				return fmt.Errorf("untron: order is already fulfilled")
			}
			amount, _ := Convert(order.Size, order.Rate, feeVars, true, true)
			expected.Add(expected, amount)
			if err := e.transfers.Payout(&order.Transfer, amount); err != nil {
				return err
			}
			if err := e.transfers.Push(order.Creator, order.Collateral); err != nil {
				return err
			}
			// Expired orders are force-released before the fulfiller gets
			// here; release the receiver only while it is still bound to
			// this order so a rebound receiver keeps its newer order.
			if busyID, busy := e.state.ReceiverOrder(order.Receiver); busy && busyID == order.ID {
				if err := e.freeReceiver(now, order.Receiver, pending); err != nil {
					return err
				}
			}
			order.Creator = caller
			order.Transfer = Transfer{Recipient: caller}
			order.IsFulfilled = true
			order.Collateral = big.NewInt(0)
			if err := e.state.OrderPut(order); err != nil {
				return err
			}
			*pending = append(*pending, NewOrderFulfilledEvent(order, caller))
		}
		if total.Cmp(expected) < 0 {
			return fmt.Errorf("untron: declared total below the computed expense")
		}
		if err := e.transfers.Push(caller, new(big.Int).Sub(total, expected)); err != nil {
			return err
		}
		return nil
	})
}

// CalculateFulfillerTotal computes the expense a fulfiller must declare to
// fulfill the given orders and the profit the flat fee earns across them.
// Already-fulfilled orders are skipped.
func (e *Engine) CalculateFulfillerTotal(ids [][32]byte) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, nil, errNilState
	}
	feeVars := e.state.FeeVariables()
	expense := big.NewInt(0)
	profit := big.NewInt(0)
	for _, id := range ids {
		order, ok := e.state.OrderGet(id)
		if !ok {
			return nil, nil, errOrderNotFound
		}
		if order.IsFulfilled {
			continue
		}
		withFlat, _ := Convert(order.Size, order.Rate, feeVars, true, true)
		withoutFlat, _ := Convert(order.Size, order.Rate, feeVars, true, false)
		expense.Add(expense, withFlat)
		profit.Add(profit, new(big.Int).Sub(withoutFlat, withFlat))
	}
	return expense, profit, nil
}

// --- read surface ---

// Provider returns the provider registered under the address.
func (e *Engine) Provider(addr [20]byte) (*Provider, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, false
	}
	return e.state.ProviderGet(addr)
}

// Order returns the open order with the given identifier.
func (e *Engine) Order(id [32]byte) (*Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, false
	}
	return e.state.OrderGet(id)
}

// ReceiverBusy returns the order currently bound to the receiver, if any.
func (e *Engine) ReceiverBusy(receiver TronAddress) ([32]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return [32]byte{}, false
	}
	return e.state.ReceiverOrder(receiver)
}

// ReceiverOwner returns the provider owning the receiver, if any.
func (e *Engine) ReceiverOwner(receiver TronAddress) ([20]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return [20]byte{}, false
	}
	return e.state.ReceiverOwner(receiver)
}

// ActionChainTip returns the latest action-chain digest.
func (e *Engine) ActionChainTip() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return [32]byte{}
	}
	return e.state.ActionTip()
}

// IsActionKnown reports whether the digest was ever produced by the chain.
func (e *Engine) IsActionKnown(digest [32]byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return false
	}
	return e.state.ActionKnown(digest)
}

// ChainState returns the settlement synchronisation markers.
func (e *Engine) ChainState() ChainState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ChainState{}
	}
	return e.state.ChainState()
}

// Balance returns the local-ledger balance of the address.
func (e *Engine) Balance(addr [20]byte) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return big.NewInt(0)
	}
	return e.state.AccountGet(addr).Balance
}

// Mint credits freshly bridged funds to the address. Only the protocol owner
// may mint; production deployments wire the bridge inbox to this entry point.
func (e *Engine) Mint(caller, to [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := requirePositive("mint amount", amount); err != nil {
		return err
	}
	return e.runTxn(func(pending *[]*types.Event) error {
		acc := e.state.AccountGet(to)
		acc.Balance = new(big.Int).Add(acc.Balance, amount)
		return e.state.AccountPut(to, acc)
	})
}
