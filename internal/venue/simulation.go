package venue

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"TreasuryCycler/internal/model"
)

const (
	simBasePrice  = 60000.0
	simFloorPrice = 1000.0
	simFillWindow = 300
)

// Simulation is the paper venue: a synthetic hourly series and instant fills.
// Everything derived within the same wall-clock hour is identical.
type Simulation struct {
	clock func() time.Time
}

// NewSimulation creates a paper venue. A nil clock means time.Now.
func NewSimulation(clock func() time.Time) *Simulation {
	if clock == nil {
		clock = time.Now
	}
	return &Simulation{clock: clock}
}

func (s *Simulation) Name() string { return KindPaper }

func (s *Simulation) FetchRecentCloses(_ context.Context, _ string, limit int) []float64 {
	if limit <= 0 {
		return []float64{}
	}
	return s.series(limit)
}

// PlaceOrder always fills at the last synthetic price of the current hour.
func (s *Simulation) PlaceOrder(_ context.Context, intent model.OrderIntent) (*model.OrderResult, error) {
	if intent.Side != model.SideBuy && intent.Side != model.SideSell {
		return nil, &OrderRejectedError{Message: fmt.Sprintf("invalid side %q", intent.Side)}
	}
	now := s.clock()
	closes := s.series(simFillWindow)
	return &model.OrderResult{
		OrderID:   "paper-" + intent.ClientOrderID,
		Status:    model.OrderFilled,
		FillPrice: closes[len(closes)-1],
		Simulated: true,
		Timestamp: now,
	}, nil
}

// series walks a sine drift plus seeded noise from the base price.
func (s *Simulation) series(limit int) []float64 {
	hour := s.clock().Unix() / 3600
	rng := rand.New(rand.NewSource(hour))
	out := make([]float64, 0, limit)
	p := simBasePrice
	for i := limit; i > 0; i-- {
		p += math.Sin(float64(hour+int64(i))*0.7)*40 + (rng.Float64()-0.5)*35
		out = append(out, math.Max(simFloorPrice, p))
	}
	return out
}
