package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/model"
)

func TestSQLiteRecorder_RecordAndRead(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "data", "history.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	defer r.Close()

	start := time.Unix(1714557600, 0)
	first := &model.CycleReport{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Snapshot:   model.RewardSnapshot{CurrentPosition: 100, NativeBalance: decimal.RequireFromString("0.05")},
		Converted:  decimal.RequireFromString("4.5"),
		Total:      decimal.RequireFromString("4.5"),
		CarriedOut: decimal.RequireFromString("4.5"),
		Signal:     model.SignalFlat,
	}
	second := &model.CycleReport{
		StartedAt:      start.Add(time.Hour),
		FinishedAt:     start.Add(time.Hour + time.Second),
		Snapshot:       model.RewardSnapshot{CurrentPosition: 200},
		Total:          decimal.RequireFromString("30"),
		Routed:         decimal.RequireFromString("30"),
		RouteSignature: "sig",
		Signal:         model.SignalLong,
		OrderSide:      model.SideBuy,
		Order:          &model.OrderResult{OrderID: "o-9", Status: model.OrderFilled, FillPrice: 60001, Simulated: true, Timestamp: start},
	}
	failed := &model.CycleReport{StartedAt: start.Add(2 * time.Hour), FailedStage: "treasury", Err: "treasury: rpc down"}

	for _, rep := range []*model.CycleReport{first, second, failed} {
		if err := r.RecordCycle(rep); err != nil {
			t.Fatalf("RecordCycle: %v", err)
		}
	}

	recs, err := r.RecentCycles(2)
	if err != nil {
		t.Fatalf("RecentCycles: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].FailedStage != "treasury" || recs[0].Err == "" {
		t.Errorf("expected newest record to be the failed cycle, got %+v", recs[0])
	}
	got := recs[1]
	if got.Signal != model.SignalLong || got.OrderSide != model.SideBuy || got.OrderID != "o-9" {
		t.Errorf("unexpected order columns %+v", got)
	}
	if !got.Routed.Equal(decimal.NewFromInt(30)) || got.Position != 200 {
		t.Errorf("unexpected amounts %+v", got)
	}

	all, err := r.RecentCycles(0)
	if err != nil {
		t.Fatalf("RecentCycles: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[2].Duration != 1500*time.Millisecond || !all[2].Converted.Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("unexpected oldest record %+v", all[2])
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.RecordCycle(&model.CycleReport{}); err != nil {
		t.Errorf("RecordCycle: %v", err)
	}
	if recs, err := r.RecentCycles(5); err != nil || len(recs) != 0 {
		t.Errorf("expected empty history, got %v, %v", recs, err)
	}
}
