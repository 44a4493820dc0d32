package strategy

import (
	"math"
	"time"
)

// minRemainingDays floors the remaining horizon so the spread formula does not
// degenerate as the horizon closes.
const minRemainingDays = 0.001

// RiskModel converts inventory and market state into spread offsets around the
// mid-price using the Avellaneda-Stoikov closed-form approximation. It is a
// pure formula evaluator: callers guard preconditions (sigma > 0) upstream.
type RiskModel struct {
	gamma float64
	k     float64
}

func NewRiskModel(p Parameters) *RiskModel {
	return &RiskModel{gamma: p.Gamma, k: p.K}
}

// OptimalBidSpread is increasing in inventory: the longer we are, the further
// our bid backs away from mid, discouraging further accumulation.
func (m *RiskModel) OptimalBidSpread(inventory, remainingDays, sigma float64) float64 {
	return (2*inventory+1)*m.gamma*sigma*sigma*remainingDays/2 +
		math.Log(1+m.gamma/m.k)/m.gamma
}

// OptimalAskSpread is decreasing in inventory, mirroring the bid side.
func (m *RiskModel) OptimalAskSpread(inventory, remainingDays, sigma float64) float64 {
	return (1-2*inventory)*m.gamma*sigma*sigma*remainingDays/2 +
		math.Log(1+m.gamma/m.k)/m.gamma
}

// RemainingDays computes the floored time left on a horizon that started at
// start and runs for horizonDays.
func RemainingDays(start time.Time, horizonDays float64, now time.Time) float64 {
	elapsed := now.Sub(start).Seconds() / 86400
	return math.Max(minRemainingDays, horizonDays-elapsed)
}
