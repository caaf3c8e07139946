package untron

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ultrasoundlabs/untron-v1/core/events"
	"github.com/ultrasoundlabs/untron-v1/storage"
)

type testClock struct {
	now int64
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestReceiver(fill byte) TronAddress {
	var receiver TronAddress
	copy(receiver[:], bytes.Repeat([]byte{fill}, 21))
	return receiver
}

var (
	testOwner     = newTestAddress(0x01)
	testProvider  = newTestAddress(0x02)
	testCreator   = newTestAddress(0x03)
	testFulfiller = newTestAddress(0x04)
	testRelayer   = newTestAddress(0x05)
	testRecipient = newTestAddress(0x06)
	testVault     = newTestAddress(0xEE)
)

const (
	testTTL        = uint64(300_000)
	testRelayerFee = uint64(100_000) // 10% of the converted amount
)

func setupEngine(t *testing.T) (*Engine, *StateStore, *testClock) {
	t.Helper()
	store := NewStateStore(storage.NewMemDB())
	transfers := NewLedgerTransfers(store, testVault)
	engine := NewEngine(store, transfers)
	engine.SetOwner(testOwner)
	clock := &testClock{now: 1_700_000_000_000}
	engine.SetNowFunc(func() int64 { return clock.now })
	coreVars := CoreVariables{
		MaxOrderSize:       big.NewInt(1_000_000),
		RequiredCollateral: big.NewInt(100),
		OrderTTLMillis:     testTTL,
	}
	if err := engine.SetCoreVariables(testOwner, [32]byte{}, [32]byte{}, [32]byte{}, [32]byte{}, coreVars); err != nil {
		t.Fatalf("set core variables: %v", err)
	}
	if err := engine.SetFeesVariables(testOwner, testRelayerFee, big.NewInt(1)); err != nil {
		t.Fatalf("set fee variables: %v", err)
	}
	if err := engine.SetZKVariables(testOwner, testRelayer, nil); err != nil {
		t.Fatalf("set zk variables: %v", err)
	}
	for _, addr := range [][20]byte{testProvider, testCreator, testFulfiller} {
		mint(t, store, addr, 1_000_000)
	}
	return engine, store, clock
}

func mint(t *testing.T, store *StateStore, addr [20]byte, amount int64) {
	t.Helper()
	acc := store.AccountGet(addr)
	acc.Balance = new(big.Int).Add(acc.Balance, big.NewInt(amount))
	if err := store.AccountPut(addr, acc); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func balance(store *StateStore, addr [20]byte) *big.Int {
	return store.AccountGet(addr).Balance
}

func registerProvider(t *testing.T, engine *Engine, receivers ...TronAddress) {
	t.Helper()
	if len(receivers) == 0 {
		receivers = []TronAddress{newTestReceiver(0xA1)}
	}
	err := engine.SetProvider(testProvider, big.NewInt(1000), big.NewInt(RateDenominator), big.NewInt(10), big.NewInt(5), receivers)
	if err != nil {
		t.Fatalf("set provider: %v", err)
	}
}

func createTestOrder(t *testing.T, engine *Engine, receiver TronAddress, size int64) [32]byte {
	t.Helper()
	id, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(size), big.NewInt(RateDenominator), Transfer{Recipient: testRecipient})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return id
}

func TestSetProviderValidation(t *testing.T) {
	engine, _, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	cases := []struct {
		name         string
		liquidity    int64
		rate         int64
		minOrderSize int64
		minDeposit   int64
	}{
		{"zero liquidity", 0, RateDenominator, 10, 5},
		{"zero rate", 1000, 0, 10, 5},
		{"zero min order size", 1000, RateDenominator, 0, 5},
		{"zero min deposit", 1000, RateDenominator, 10, 0},
		{"min deposit above min order size", 1000, RateDenominator, 10, 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.SetProvider(testProvider, big.NewInt(tc.liquidity), big.NewInt(tc.rate), big.NewInt(tc.minOrderSize), big.NewInt(tc.minDeposit), []TronAddress{receiver})
			if err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestSetProviderSettlesLiquidityDelta(t *testing.T) {
	engine, store, _ := setupEngine(t)
	registerProvider(t, engine)
	if got := balance(store, testProvider); got.Cmp(big.NewInt(999_000)) != 0 {
		t.Fatalf("provider balance after registration = %s, want 999000", got)
	}
	if got := balance(store, testVault); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("vault balance = %s, want 1000", got)
	}
	// Shrinking the pool pushes the difference back.
	err := engine.SetProvider(testProvider, big.NewInt(400), big.NewInt(RateDenominator), big.NewInt(10), big.NewInt(5), []TronAddress{newTestReceiver(0xA1)})
	if err != nil {
		t.Fatalf("shrink liquidity: %v", err)
	}
	if got := balance(store, testProvider); got.Cmp(big.NewInt(999_600)) != 0 {
		t.Fatalf("provider balance after shrink = %s, want 999600", got)
	}
	if got := balance(store, testVault); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("vault balance after shrink = %s, want 400", got)
	}
}

func TestSetProviderReceiverExclusivity(t *testing.T) {
	engine, _, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	other := newTestAddress(0x22)
	mintEngineAccount(t, engine, other, 10_000)
	err := engine.SetProvider(other, big.NewInt(500), big.NewInt(RateDenominator), big.NewInt(10), big.NewInt(5), []TronAddress{receiver})
	if err == nil {
		t.Fatalf("expected foreign receiver to be rejected")
	}
}

func mintEngineAccount(t *testing.T, engine *Engine, addr [20]byte, amount int64) {
	t.Helper()
	mint(t, engine.state, addr, amount)
}

func TestSetProviderBusyReceiver(t *testing.T) {
	engine, _, clock := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	createTestOrder(t, engine, receiver, 50)

	err := engine.SetProvider(testProvider, big.NewInt(1000), big.NewInt(RateDenominator), big.NewInt(10), big.NewInt(5), []TronAddress{receiver})
	if err == nil {
		t.Fatalf("expected busy receiver to block the update")
	}

	// Once the order has expired the receiver is force-released and the update
	// goes through.
	clock.now += int64(testTTL) + 1
	err = engine.SetProvider(testProvider, big.NewInt(1000), big.NewInt(RateDenominator), big.NewInt(10), big.NewInt(5), []TronAddress{receiver})
	if err != nil {
		t.Fatalf("expected expired busy receiver to be released: %v", err)
	}
	if _, busy := engine.ReceiverBusy(receiver); busy {
		t.Fatalf("receiver should be idle after forced release")
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	engine, store, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	creatorBefore := new(big.Int).Set(balance(store, testCreator))

	id := createTestOrder(t, engine, receiver, 50)

	order, ok := engine.Order(id)
	if !ok {
		t.Fatalf("order not persisted")
	}
	if order.Size.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("order size = %s, want 50", order.Size)
	}
	if order.Collateral.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("order collateral = %s, want 100", order.Collateral)
	}
	prov, _ := engine.Provider(testProvider)
	if prov.Liquidity.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("provider liquidity = %s, want 950", prov.Liquidity)
	}
	busyID, busy := engine.ReceiverBusy(receiver)
	if !busy || busyID != id {
		t.Fatalf("receiver not bound to the new order")
	}
	if engine.ActionChainTip() != id {
		t.Fatalf("order id must equal the action chain tip")
	}
	if !engine.IsActionKnown(id) {
		t.Fatalf("chained action must be recorded")
	}
	spent := new(big.Int).Sub(creatorBefore, balance(store, testCreator))
	if spent.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("creator escrowed %s, want 100", spent)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	engine, _, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)

	if _, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(50), big.NewInt(RateDenominator+1), Transfer{Recipient: testRecipient}); err == nil {
		t.Fatalf("rate mismatch must be rejected")
	}
	if _, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(5), big.NewInt(RateDenominator), Transfer{Recipient: testRecipient}); err == nil {
		t.Fatalf("size below provider minimum must be rejected")
	}
	if _, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(2_000_000), big.NewInt(RateDenominator), Transfer{Recipient: testRecipient}); err == nil {
		t.Fatalf("size above the maximum must be rejected")
	}
	if _, err := engine.CreateOrder(testCreator, testProvider, newTestReceiver(0xB2), big.NewInt(50), big.NewInt(RateDenominator), Transfer{Recipient: testRecipient}); err == nil {
		t.Fatalf("unowned receiver must be rejected")
	}
	if _, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(2000), big.NewInt(RateDenominator), Transfer{Recipient: testRecipient}); err == nil {
		t.Fatalf("order above provider liquidity must be rejected")
	}
}

func TestCreateOrderBusyReceiver(t *testing.T) {
	engine, _, clock := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	first := createTestOrder(t, engine, receiver, 50)

	if _, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(50), big.NewInt(RateDenominator), Transfer{Recipient: testRecipient}); err == nil {
		t.Fatalf("busy receiver must reject a second order")
	}

	// After expiry the stale order is force-released and the new order chains
	// on top of the release action.
	clock.now += int64(testTTL) + 1
	second := createTestOrder(t, engine, receiver, 50)
	if second == first {
		t.Fatalf("new order id must differ from the released one")
	}
	if got, _ := engine.ReceiverBusy(receiver); got != second {
		t.Fatalf("receiver must be bound to the new order")
	}
	if _, ok := engine.Order(first); !ok {
		t.Fatalf("released order stays in the ledger until settlement")
	}
}

func TestChangeOrder(t *testing.T) {
	engine, _, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	id := createTestOrder(t, engine, receiver, 50)

	next := Transfer{Recipient: newTestAddress(0x77), ChainID: 10}
	if err := engine.ChangeOrder(testFulfiller, id, next); err == nil {
		t.Fatalf("non-creator change must be rejected")
	}
	if err := engine.ChangeOrder(testCreator, id, next); err != nil {
		t.Fatalf("change order: %v", err)
	}
	order, _ := engine.Order(id)
	if order.Transfer.Recipient != next.Recipient || order.Transfer.ChainID != 10 {
		t.Fatalf("payout instruction was not replaced")
	}
}

func TestStopOrder(t *testing.T) {
	engine, store, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	creatorBefore := new(big.Int).Set(balance(store, testCreator))
	id := createTestOrder(t, engine, receiver, 50)

	if err := engine.StopOrder(testFulfiller, id); err == nil {
		t.Fatalf("non-creator stop must be rejected")
	}
	if err := engine.StopOrder(testCreator, id); err != nil {
		t.Fatalf("stop order: %v", err)
	}
	if _, ok := engine.Order(id); ok {
		t.Fatalf("stopped order must be deleted")
	}
	if _, busy := engine.ReceiverBusy(receiver); busy {
		t.Fatalf("receiver must be released")
	}
	if got := balance(store, testCreator); got.Cmp(creatorBefore) != 0 {
		t.Fatalf("collateral must be refunded in full")
	}
	prov, _ := engine.Provider(testProvider)
	if prov.Liquidity.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("provider liquidity = %s, want 1000", prov.Liquidity)
	}
}

// The stop path intentionally credits the order's nominal size rather than the
// converted amount debited at creation; with a rate away from parity the two
// differ. This pins the inherited accounting so any change to it is a
// deliberate decision.
func TestStopOrderCreditsNominalSize(t *testing.T) {
	engine, _, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	err := engine.SetProvider(testProvider, big.NewInt(1000), big.NewInt(2*RateDenominator), big.NewInt(10), big.NewInt(5), []TronAddress{receiver})
	if err != nil {
		t.Fatalf("set provider: %v", err)
	}
	id, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(50), big.NewInt(2*RateDenominator), Transfer{Recipient: testRecipient})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	prov, _ := engine.Provider(testProvider)
	if prov.Liquidity.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("creation must debit the converted amount: got %s, want 900", prov.Liquidity)
	}
	if err := engine.StopOrder(testCreator, id); err != nil {
		t.Fatalf("stop order: %v", err)
	}
	prov, _ = engine.Provider(testProvider)
	if prov.Liquidity.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("stop must credit the nominal size: got %s, want 950", prov.Liquidity)
	}
}

func TestStopOrderExpired(t *testing.T) {
	engine, _, clock := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	id := createTestOrder(t, engine, receiver, 50)
	clock.now += int64(testTTL) + 1
	if err := engine.StopOrder(testCreator, id); err == nil {
		t.Fatalf("expired order must go through settlement, not stop")
	}
}

func TestFulfill(t *testing.T) {
	engine, store, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	id := createTestOrder(t, engine, receiver, 50)
	fulfillerBefore := new(big.Int).Set(balance(store, testFulfiller))
	creatorBefore := new(big.Int).Set(balance(store, testCreator))

	// size 50 at parity: out 50, relayer fee 5, flat fee 1 -> amount 44.
	if err := engine.Fulfill(testFulfiller, [][32]byte{id}, big.NewInt(60)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if got := balance(store, testRecipient); got.Cmp(big.NewInt(44)) != 0 {
		t.Fatalf("recipient received %s, want 44", got)
	}
	spent := new(big.Int).Sub(fulfillerBefore, balance(store, testFulfiller))
	if spent.Cmp(big.NewInt(44)) != 0 {
		t.Fatalf("fulfiller spent %s, want 44 after surplus refund", spent)
	}
	refunded := new(big.Int).Sub(balance(store, testCreator), creatorBefore)
	if refunded.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("creator collateral refund = %s, want 100", refunded)
	}
	order, _ := engine.Order(id)
	if !order.IsFulfilled {
		t.Fatalf("order must be flagged fulfilled")
	}
	if order.Creator != testFulfiller {
		t.Fatalf("fulfilled order must belong to the fulfiller")
	}
	if order.Collateral.Sign() != 0 {
		t.Fatalf("fulfilled order must carry zero collateral")
	}
	if order.Transfer.Recipient != testFulfiller {
		t.Fatalf("payout instruction must point at the fulfiller")
	}
	if _, busy := engine.ReceiverBusy(receiver); busy {
		t.Fatalf("receiver must be released on fulfillment")
	}
}

func TestFulfillRejectsDoubleAndShortTotal(t *testing.T) {
	engine, store, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	id := createTestOrder(t, engine, receiver, 50)

	if err := engine.Fulfill(testFulfiller, [][32]byte{id}, big.NewInt(10)); err == nil {
		t.Fatalf("short total must abort the batch")
	}
	if got := balance(store, testFulfiller); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("aborted batch must not move funds: balance %s", got)
	}
	if err := engine.Fulfill(testFulfiller, [][32]byte{id}, big.NewInt(60)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if err := engine.Fulfill(testFulfiller, [][32]byte{id}, big.NewInt(60)); err == nil {
		t.Fatalf("double fulfillment must be rejected")
	}
}

func TestFulfillBatchIsAtomic(t *testing.T) {
	engine, store, _ := setupEngine(t)
	r1, r2 := newTestReceiver(0xA1), newTestReceiver(0xA2)
	registerProvider(t, engine, r1, r2)
	first := createTestOrder(t, engine, r1, 50)
	second := createTestOrder(t, engine, r2, 50)
	if err := engine.Fulfill(testFulfiller, [][32]byte{second}, big.NewInt(44)); err != nil {
		t.Fatalf("fulfill second: %v", err)
	}
	balanceBefore := new(big.Int).Set(balance(store, testFulfiller))

	// The second order is already fulfilled, so the whole batch must unwind.
	err := engine.Fulfill(testFulfiller, [][32]byte{first, second}, big.NewInt(100))
	if err == nil {
		t.Fatalf("batch with a fulfilled order must fail")
	}
	if got := balance(store, testFulfiller); got.Cmp(balanceBefore) != 0 {
		t.Fatalf("failed batch must not move funds")
	}
	order, _ := engine.Order(first)
	if order.IsFulfilled {
		t.Fatalf("failed batch must not mutate orders")
	}
	if _, busy := engine.ReceiverBusy(r1); !busy {
		t.Fatalf("failed batch must keep the receiver busy")
	}
}

func TestFulfillForceReleasedOrderKeepsRebinding(t *testing.T) {
	engine, _, clock := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	first := createTestOrder(t, engine, receiver, 50)

	// Expiry rebinds the receiver to a new order; fulfilling the stale one
	// must not disturb that binding.
	clock.now += int64(testTTL) + 1
	second := createTestOrder(t, engine, receiver, 60)
	tipBefore := engine.ActionChainTip()

	if err := engine.Fulfill(testFulfiller, [][32]byte{first}, big.NewInt(60)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if got, busy := engine.ReceiverBusy(receiver); !busy || got != second {
		t.Fatalf("receiver must stay bound to the live order")
	}
	if engine.ActionChainTip() != tipBefore {
		t.Fatalf("fulfilling a released order must not chain a release action")
	}
	order, _ := engine.Order(first)
	if !order.IsFulfilled {
		t.Fatalf("order must be flagged fulfilled")
	}
}

func TestFulfillForceReleasedOrderOnIdleReceiver(t *testing.T) {
	engine, _, clock := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	registerProvider(t, engine, receiver)
	first := createTestOrder(t, engine, receiver, 50)

	clock.now += int64(testTTL) + 1
	second := createTestOrder(t, engine, receiver, 50)
	if err := engine.StopOrder(testCreator, second); err != nil {
		t.Fatalf("stop order: %v", err)
	}

	if err := engine.Fulfill(testFulfiller, [][32]byte{first}, big.NewInt(60)); err != nil {
		t.Fatalf("fulfilling a released order on an idle receiver: %v", err)
	}
	if _, busy := engine.ReceiverBusy(receiver); busy {
		t.Fatalf("receiver must stay idle")
	}
}

func TestCalculateFulfillerTotal(t *testing.T) {
	engine, _, _ := setupEngine(t)
	r1, r2 := newTestReceiver(0xA1), newTestReceiver(0xA2)
	registerProvider(t, engine, r1, r2)
	first := createTestOrder(t, engine, r1, 50)
	second := createTestOrder(t, engine, r2, 100)

	expense, profit, err := engine.CalculateFulfillerTotal([][32]byte{first, second})
	if err != nil {
		t.Fatalf("calculate fulfiller total: %v", err)
	}
	// 50 -> 44 and 100 -> 89, one unit of flat fee each.
	if expense.Cmp(big.NewInt(133)) != 0 {
		t.Fatalf("expense = %s, want 133", expense)
	}
	if profit.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("profit = %s, want 2", profit)
	}
}

func TestOnlyOwnerMayRetuneParameters(t *testing.T) {
	engine, _, _ := setupEngine(t)
	if err := engine.SetFeesVariables(testCreator, 1000, big.NewInt(1)); err == nil {
		t.Fatalf("non-owner fee update must be rejected")
	}
	if err := engine.SetZKVariables(testCreator, testRelayer, nil); err == nil {
		t.Fatalf("non-owner zk update must be rejected")
	}
	vars := CoreVariables{MaxOrderSize: big.NewInt(1), RequiredCollateral: big.NewInt(1)}
	if err := engine.SetCoreVariables(testCreator, [32]byte{}, [32]byte{}, [32]byte{}, [32]byte{}, vars); err == nil {
		t.Fatalf("non-owner core update must be rejected")
	}
}

func TestEventsEmittedOnCommitOnly(t *testing.T) {
	engine, _, _ := setupEngine(t)
	receiver := newTestReceiver(0xA1)
	var seen []string
	engine.SetEmitter(emitterFunc(func(eventType string) { seen = append(seen, eventType) }))
	registerProvider(t, engine, receiver)
	if len(seen) != 1 || seen[0] != EventTypeProviderUpdated {
		t.Fatalf("expected a single provider update event, got %v", seen)
	}
	seen = nil
	if _, err := engine.CreateOrder(testCreator, testProvider, receiver, big.NewInt(5), big.NewInt(RateDenominator), Transfer{}); err == nil {
		t.Fatalf("expected rejection")
	}
	if len(seen) != 0 {
		t.Fatalf("failed operations must not emit events, got %v", seen)
	}
}

type emitterFunc func(eventType string)

func (f emitterFunc) Emit(evt events.Event) { f(evt.EventType()) }
