package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/points_trading/internal/domain"
	"github.com/vitos/points_trading/internal/usecase"
)

func TestComputeProfitLoss(t *testing.T) {
	tests := []struct {
		name      string
		entry     float64
		current   float64
		direction domain.Direction
		stake     int64
		want      int64
	}{
		{"Long 10% up", 100, 110, domain.DirectionLong, 100, 100},
		{"Short 10% up", 100, 110, domain.DirectionShort, 100, -100},
		{"Flat price", 100, 100, domain.DirectionLong, 50, 0},
		{"Long 5% down", 100, 95, domain.DirectionLong, 200, -100},
		{"Short 5% down", 100, 95, domain.DirectionShort, 200, 100},
		{"Truncates toward zero, positive", 100, 101, domain.DirectionLong, 33, 3},
		{"Truncates toward zero, negative", 100, 101, domain.DirectionShort, 33, -3},
		{"Total loss exceeds stake", 100, 80, domain.DirectionLong, 100, -200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usecase.ComputeProfitLoss(tt.entry, tt.current, tt.direction, tt.stake, usecase.DefaultLeverage)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveChangePct(t *testing.T) {
	assert.InDelta(t, 10.0, usecase.EffectiveChangePct(100, 110, domain.DirectionLong), 1e-9)
	assert.InDelta(t, -10.0, usecase.EffectiveChangePct(100, 110, domain.DirectionShort), 1e-9)
	assert.InDelta(t, 0.0, usecase.EffectiveChangePct(100, 100, domain.DirectionShort), 1e-9)
}

// The display percentage must stay derived from the same effective change the
// settlement uses.
func TestLeveragedChangePct(t *testing.T) {
	entry, current := 100.0, 104.0
	pct := usecase.EffectiveChangePct(entry, current, domain.DirectionLong)
	leveraged := usecase.LeveragedChangePct(entry, current, domain.DirectionLong, 10)
	assert.InDelta(t, pct*10, leveraged, 1e-9)
	assert.InDelta(t, 40.0, leveraged, 1e-9)
}
