// Package recorder keeps an append-only history of cycles for /history and offline analysis.
package recorder

import (
	"time"

	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/model"
)

// CycleRecord is one row of cycle history.
type CycleRecord struct {
	ID          int64
	StartedAt   time.Time
	Duration    time.Duration
	Position    uint64
	Converted   decimal.Decimal
	Total       decimal.Decimal
	Routed      decimal.Decimal
	CarriedOut  decimal.Decimal
	Signal      model.Signal
	OrderSide   model.Side
	OrderID     string
	FailedStage string
	Err         string
}

// Recorder persists cycle reports.
type Recorder interface {
	RecordCycle(rep *model.CycleReport) error
	RecentCycles(limit int) ([]CycleRecord, error)
	Close() error
}
