package recorder

import "TreasuryCycler/internal/model"

// NoopRecorder is used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCycle(_ *model.CycleReport) error    { return nil }
func (n *NoopRecorder) RecentCycles(_ int) ([]CycleRecord, error) { return nil, nil }
func (n *NoopRecorder) Close() error                              { return nil }
