package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the directional classification produced by the strategy engine.
type Signal string

const (
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
	SignalFlat  Signal = "FLAT"
)

// Side is the order direction sent to a trading venue.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderIntent is a leveraged market order the orchestrator wants placed.
type OrderIntent struct {
	Symbol        string
	Side          Side
	Leverage      int
	Notional      decimal.Decimal // settlement currency, before leverage
	Subaccount    string
	ClientOrderID string
}

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderAccepted OrderStatus = "ACCEPTED"
	OrderRejected OrderStatus = "REJECTED"
)

// OrderResult is the validated venue response for a placed order.
type OrderResult struct {
	OrderID   string
	Status    OrderStatus
	FillPrice float64
	Simulated bool
	Timestamp time.Time
}
