package untron

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ultrasoundlabs/untron-v1/core/types"
)

const (
	EventTypeProviderUpdated = "untron.provider.updated"
	EventTypeOrderCreated    = "untron.order.created"
	EventTypeOrderChanged    = "untron.order.changed"
	EventTypeOrderStopped    = "untron.order.stopped"
	EventTypeOrderFulfilled  = "untron.order.fulfilled"
	EventTypeOrderClosed     = "untron.order.closed"
	EventTypeReceiverFreed   = "untron.receiver.freed"
	EventTypeRelayUpdated    = "untron.relay.updated"
)

type untronEvent struct {
	evt *types.Event
}

func (e untronEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e untronEvent) Event() *types.Event { return e.evt }

// NewProviderUpdatedEvent returns the canonical payload emitted after a
// provider registration or update.
func NewProviderUpdatedEvent(p *Provider) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["provider"] = hex.EncodeToString(p.Address[:])
		attrs["liquidity"] = formatAmount(p.Liquidity)
		attrs["rate"] = formatAmount(p.Rate)
		attrs["minOrderSize"] = formatAmount(p.MinOrderSize)
		attrs["minDeposit"] = formatAmount(p.MinDeposit)
		attrs["receivers"] = strconv.Itoa(len(p.Receivers))
	}
	return &types.Event{Type: EventTypeProviderUpdated, Attributes: attrs}
}

// NewOrderCreatedEvent returns the canonical payload for a freshly chained
// order.
func NewOrderCreatedEvent(o *Order) *types.Event {
	return orderEvent(EventTypeOrderCreated, o, nil)
}

// NewOrderChangedEvent returns the payload emitted when an order's payout
// instruction is replaced.
func NewOrderChangedEvent(o *Order) *types.Event {
	return orderEvent(EventTypeOrderChanged, o, nil)
}

// NewOrderStoppedEvent returns the payload emitted when a pending order is
// cancelled by its creator.
func NewOrderStoppedEvent(o *Order) *types.Event {
	return orderEvent(EventTypeOrderStopped, o, nil)
}

// NewOrderFulfilledEvent returns the payload emitted when a fulfiller
// advances an order's payout.
func NewOrderFulfilledEvent(o *Order, fulfiller [20]byte) *types.Event {
	return orderEvent(EventTypeOrderFulfilled, o, map[string]string{
		"fulfiller": hex.EncodeToString(fulfiller[:]),
	})
}

// NewOrderClosedEvent returns the payload emitted when settlement retires an
// order.
func NewOrderClosedEvent(o *Order, inflow, payout *big.Int) *types.Event {
	return orderEvent(EventTypeOrderClosed, o, map[string]string{
		"inflow": formatAmount(inflow),
		"payout": formatAmount(payout),
	})
}

// NewReceiverFreedEvent returns the payload emitted when a busy receiver is
// released.
func NewReceiverFreedEvent(receiver TronAddress) *types.Event {
	return &types.Event{Type: EventTypeReceiverFreed, Attributes: map[string]string{
		"receiver": hex.EncodeToString(receiver[:]),
	}}
}

// NewRelayUpdatedEvent returns the payload emitted after a settlement batch
// advances the checkpoint.
func NewRelayUpdatedEvent(chain ChainState, closed int, fee *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRelayUpdated, Attributes: map[string]string{
		"blockId":              hex.EncodeToString(chain.BlockID[:]),
		"stateHash":            hex.EncodeToString(chain.StateHash[:]),
		"latestIncludedAction": hex.EncodeToString(chain.LatestIncludedAction[:]),
		"closedOrders":         strconv.Itoa(closed),
		"protocolFee":          formatAmount(fee),
	}}
}

func orderEvent(eventType string, o *Order, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if o != nil {
		attrs["id"] = hex.EncodeToString(o.ID[:])
		attrs["creator"] = hex.EncodeToString(o.Creator[:])
		attrs["provider"] = hex.EncodeToString(o.Provider[:])
		attrs["receiver"] = hex.EncodeToString(o.Receiver[:])
		attrs["timestamp"] = strconv.FormatInt(o.Timestamp, 10)
		attrs["size"] = formatAmount(o.Size)
		attrs["rate"] = formatAmount(o.Rate)
		attrs["collateral"] = formatAmount(o.Collateral)
		attrs["fulfilled"] = strconv.FormatBool(o.IsFulfilled)
	}
	for key, value := range extra {
		attrs[key] = value
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
