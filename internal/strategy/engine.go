package strategy

import (
	"math"

	"TreasuryCycler/internal/calculator"
	"TreasuryCycler/internal/model"
)

const (
	// MinHistory is the shortest series the engine will trust.
	MinHistory = 100

	rsiPeriod     = 14
	fastEMAPeriod = 21
	slowEMAPeriod = 55

	longRSI  = 52.0
	shortRSI = 48.0
)

// Indicators holds the latest indicator values behind a signal.
type Indicators struct {
	RSI     float64
	EMAFast float64
	EMASlow float64
	Samples int
}

// Evaluate classifies market direction from closes ordered oldest to newest.
func Evaluate(closes []float64) model.Signal {
	sig, _ := EvaluateWithIndicators(closes)
	return sig
}

// EvaluateWithIndicators is Evaluate that also returns the indicator values.
// Indicators are zero when the series is too short.
func EvaluateWithIndicators(closes []float64) (model.Signal, Indicators) {
	clean := finite(closes)
	ind := Indicators{Samples: len(clean)}
	if len(clean) < MinHistory {
		return model.SignalFlat, ind
	}

	// Lengths are already checked against every period above.
	ind.RSI, _ = calculator.CalculateRSI(clean, rsiPeriod)
	ind.EMAFast, _ = calculator.CalculateEMA(clean, fastEMAPeriod)
	ind.EMASlow, _ = calculator.CalculateEMA(clean, slowEMAPeriod)

	switch {
	case ind.EMAFast > ind.EMASlow && ind.RSI >= longRSI:
		return model.SignalLong, ind
	case ind.EMAFast < ind.EMASlow && ind.RSI <= shortRSI:
		return model.SignalShort, ind
	default:
		return model.SignalFlat, ind
	}
}

// SideFor maps a signal to an order side; ok is false for FLAT.
func SideFor(sig model.Signal) (side model.Side, ok bool) {
	switch sig {
	case model.SignalLong:
		return model.SideBuy, true
	case model.SignalShort:
		return model.SideSell, true
	default:
		return "", false
	}
}

func finite(in []float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
