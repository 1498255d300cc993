package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CycleState is the only record carried between cycles.
type CycleState struct {
	LastProcessedPosition    uint64          `json:"lastProcessedPosition"`
	CarriedSettlementBalance decimal.Decimal `json:"carriedSettlementBalance"`
}

// MarshalJSON writes the carried balance as a JSON number. Decoding goes
// through decimal.Decimal, which accepts both numbers and strings.
func (s CycleState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		LastProcessedPosition    uint64      `json:"lastProcessedPosition"`
		CarriedSettlementBalance json.Number `json:"carriedSettlementBalance"`
	}{
		LastProcessedPosition:    s.LastProcessedPosition,
		CarriedSettlementBalance: json.Number(s.CarriedSettlementBalance.String()),
	})
}

// RewardSnapshot is the treasury view taken at the start of a cycle.
type RewardSnapshot struct {
	CurrentPosition   uint64
	NativeBalance     decimal.Decimal
	SettlementBalance decimal.Decimal
}
