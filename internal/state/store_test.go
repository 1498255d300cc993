package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/model"
)

func TestLoad_MissingFileIsZero(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"), zerolog.Nop())
	st := s.Load()
	if st.LastProcessedPosition != 0 || !st.CarriedSettlementBalance.IsZero() {
		t.Fatalf("expected zero state, got %+v", st)
	}
}

func TestLoad_CorruptFileIsZero(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage", "{not json"},
		{"truncated", `{"lastProcessedPosition": 12`},
		{"wrong types", `{"lastProcessedPosition": "abc", "carriedSettlementBalance": 1}`},
		{"negative carry", `{"lastProcessedPosition": 5, "carriedSettlementBalance": -3}`},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
			t.Fatalf("%s: write: %v", tt.name, err)
		}
		st := NewFileStore(path, zerolog.Nop()).Load()
		if st.LastProcessedPosition != 0 || !st.CarriedSettlementBalance.IsZero() {
			t.Errorf("%s: expected zero state, got %+v", tt.name, st)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(path, zerolog.Nop())
	want := model.CycleState{
		LastProcessedPosition:    287654321,
		CarriedSettlementBalance: decimal.RequireFromString("17.250001"),
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := s.Load()
	if got.LastProcessedPosition != want.LastProcessedPosition {
		t.Errorf("position: expected %d, got %d", want.LastProcessedPosition, got.LastProcessedPosition)
	}
	if !got.CarriedSettlementBalance.Equal(want.CarriedSettlementBalance) {
		t.Errorf("carry: expected %s, got %s", want.CarriedSettlementBalance, got.CarriedSettlementBalance)
	}

	// save(load()) leaves the record unchanged
	before, _ := os.ReadFile(path)
	if err := s.Save(s.Load()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Errorf("expected identical record, got\n%s\nvs\n%s", before, after)
	}
}

func TestSave_RecordHasExactlyTwoFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path, zerolog.Nop())
	if err := s.Save(model.CycleState{LastProcessedPosition: 1, CarriedSettlementBalance: decimal.NewFromInt(2)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(path)
	out := string(data)
	if !strings.Contains(out, `"lastProcessedPosition"`) || !strings.Contains(out, `"carriedSettlementBalance"`) {
		t.Fatalf("unexpected record: %s", out)
	}
	if strings.Count(out, ":") != 2 {
		t.Errorf("expected exactly two fields, got %s", out)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "state.json"), zerolog.Nop())
	for i := 0; i < 3; i++ {
		if err := s.Save(model.CycleState{LastProcessedPosition: uint64(i)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only state.json, got %d entries", len(entries))
	}
}

func TestLoad_AcceptsNumericCarry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"lastProcessedSlot": 9, "lastProcessedPosition": 9, "carriedSettlementBalance": 30.5}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	st := NewFileStore(path, zerolog.Nop()).Load()
	if st.LastProcessedPosition != 9 || !st.CarriedSettlementBalance.Equal(decimal.RequireFromString("30.5")) {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestSave_CarryIsJSONNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path, zerolog.Nop())
	if err := s.Save(model.CycleState{LastProcessedPosition: 4, CarriedSettlementBalance: decimal.RequireFromString("2.25")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"carriedSettlementBalance": 2.25`) {
		t.Fatalf("expected numeric carry, got %s", data)
	}
	st := s.Load()
	if !st.CarriedSettlementBalance.Equal(decimal.RequireFromString("2.25")) {
		t.Fatalf("unexpected carry after reload: %s", st.CarriedSettlementBalance)
	}
}
