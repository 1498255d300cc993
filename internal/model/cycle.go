package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SwapQuote is a native->settlement conversion quote. Raw is passed back
// verbatim to the venue when the swap is executed.
type SwapQuote struct {
	InAmount  decimal.Decimal
	OutAmount decimal.Decimal
	Raw       json.RawMessage
}

// CycleReport summarizes one orchestrator run, including failed ones.
type CycleReport struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Snapshot       RewardSnapshot
	Converted      decimal.Decimal
	CarriedIn      decimal.Decimal
	Total          decimal.Decimal
	Routed         decimal.Decimal
	RouteSignature string
	CarriedOut     decimal.Decimal
	Closes         int
	Signal         Signal
	Order          *OrderResult
	OrderSide      Side
	FailedStage    string
	Err            string
}

// Succeeded reports whether the cycle reached its commit point.
func (r *CycleReport) Succeeded() bool {
	return r.FailedStage == ""
}
