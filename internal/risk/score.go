package risk

import (
	"math"
	"time"

	"github.com/digitalrebelz/arbitrage-app/internal/arbitrage"
)

const (
	volatilityWeight = 0.4
	stalenessWeight  = 0.3
	thinnessWeight   = 0.3
)

// spreadWindow is a fixed-size ring of the most recent spreads seen on a route.
type spreadWindow struct {
	values []float64
	next   int
	full   bool
}

func newSpreadWindow(size int) *spreadWindow {
	return &spreadWindow{values: make([]float64, size)}
}

func (w *spreadWindow) add(v float64) {
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
	if w.next == 0 {
		w.full = true
	}
}

func (w *spreadWindow) samples() []float64 {
	if w.full {
		return w.values
	}
	return w.values[:w.next]
}

// coefficientOfVariation returns stddev/|mean| of the window, clamped to [0,1].
// Fewer than two samples carry no volatility information.
func (w *spreadWindow) coefficientOfVariation() float64 {
	s := w.samples()
	if len(s) < 2 {
		return 0
	}

	var sum float64
	for _, v := range s {
		sum += v
	}
	mean := sum / float64(len(s))

	var sq float64
	for _, v := range s {
		sq += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(sq / float64(len(s)))

	if mean == 0 {
		if stddev == 0 {
			return 0
		}
		return 1
	}
	return clamp01(stddev / math.Abs(mean))
}

// scoreLocked records opp's spread on its route and returns
// 0.4*volatility + 0.3*staleness + 0.3*thinness, each term in [0,1].
func (m *Manager) scoreLocked(opp *arbitrage.Opportunity) float64 {
	key := opp.RouteKey()
	w, ok := m.spreads[key]
	if !ok {
		w = newSpreadWindow(m.window)
		m.spreads[key] = w
	}
	w.add(opp.SpreadPercent.InexactFloat64())

	return Score(w.coefficientOfVariation(), opp.DataAge, m.staleness, thinness(opp))
}

// Score combines the three risk terms. Higher is riskier.
func Score(volatility float64, dataAge, stalenessBound time.Duration, thinness float64) float64 {
	staleness := 0.0
	if stalenessBound > 0 {
		staleness = clamp01(float64(dataAge) / float64(stalenessBound))
	}
	return clamp01(volatilityWeight*clamp01(volatility) + stalenessWeight*staleness + thinnessWeight*clamp01(thinness))
}

// thinness is 1 - min(1, executable/size): zero when depth covers the trade.
func thinness(opp *arbitrage.Opportunity) float64 {
	if !opp.Size.IsPositive() {
		return 1
	}
	ratio := opp.MaxExecutableSize.Div(opp.Size).InexactFloat64()
	return 1 - math.Min(1, math.Max(0, ratio))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
