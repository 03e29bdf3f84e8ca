package usecase

import "github.com/vitos/points_trading/internal/domain"

// DefaultLeverage is the system-wide multiplier applied to the effective
// percentage change at settlement.
const DefaultLeverage = 10

// EffectiveChangePct returns the percentage change between entry and current
// price, negated for SHORT positions so that a favorable move is positive.
// entry must be > 0, which open-time validation guarantees.
func EffectiveChangePct(entry, current float64, direction domain.Direction) float64 {
	pct := (current - entry) / entry * 100
	if direction == domain.DirectionShort {
		pct = -pct
	}
	return pct
}

// LeveragedChangePct is the display form of the effective change. It stays
// derived from EffectiveChangePct so it can never diverge from settlement.
func LeveragedChangePct(entry, current float64, direction domain.Direction, leverage int) float64 {
	return EffectiveChangePct(entry, current, direction) * float64(leverage)
}

// ComputeProfitLoss returns the settlement amount net of stake in whole
// points, truncated toward zero.
func ComputeProfitLoss(entry, current float64, direction domain.Direction, stake int64, leverage int) int64 {
	pct := EffectiveChangePct(entry, current, direction)
	return int64(float64(stake) * pct * float64(leverage) / 100)
}
