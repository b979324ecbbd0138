package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout_bot/internal/models"
)

func samples(prices ...float64) []models.PriceSample {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = models.PriceSample{Pair: "BTC-USDT", Time: t0.Add(time.Duration(i) * time.Minute), Price: p}
	}
	return out
}

func vShape(down, up int) []models.PriceSample {
	prices := make([]float64, 0, down+up)
	p := 100.0
	for i := 0; i < down; i++ {
		p -= 0.5
		prices = append(prices, p)
	}
	for i := 0; i < up; i++ {
		p += 1.0
		prices = append(prices, p)
	}
	return samples(prices...)
}

func TestComputeSignalInsufficientData(t *testing.T) {
	for n := 0; n < 21; n++ {
		_, err := ComputeSignal(vShape(n, 0), 7, 21)
		require.ErrorIs(t, err, models.ErrInsufficientData, "len=%d", n)
	}
}

func TestComputeSignalBadPeriods(t *testing.T) {
	hist := vShape(10, 20)

	_, err := ComputeSignal(hist, 21, 7)
	require.ErrorIs(t, err, models.ErrCalculation)

	_, err = ComputeSignal(hist, 0, 21)
	require.ErrorIs(t, err, models.ErrCalculation)
}

func TestComputeSignalNonFinitePrice(t *testing.T) {
	hist := vShape(10, 20)
	hist[15].Price = math.NaN()

	_, err := ComputeSignal(hist, 7, 21)
	require.ErrorIs(t, err, models.ErrCalculation)

	hist[15].Price = math.Inf(1)
	_, err = ComputeSignal(hist, 7, 21)
	require.ErrorIs(t, err, models.ErrCalculation)
}

func TestGoldenCrossOnReversal(t *testing.T) {
	hist := vShape(30, 30)

	// до разворота короткая WMA ниже длинной
	early, err := ComputeSignal(hist[:31], 7, 21)
	require.NoError(t, err)
	assert.Equal(t, models.DirBearish, early.Direction)

	idx := CrossIndex(hist, 7, 21)
	require.Greater(t, idx, 30, "cross must happen after the reversal point")

	// ровно на индексе кросса: флип bearish -> bullish и golden cross
	at, err := ComputeSignal(hist[:idx+1], 7, 21)
	require.NoError(t, err)
	assert.Equal(t, models.DirBullish, at.Direction)
	assert.Equal(t, models.CrossGolden, at.Crossover)

	before, err := ComputeSignal(hist[:idx], 7, 21)
	require.NoError(t, err)
	assert.Equal(t, models.DirBearish, before.Direction)
	assert.Equal(t, models.CrossNone, before.Crossover)
}

func TestStrengthClamped(t *testing.T) {
	hist := vShape(0, 60)
	sig, err := ComputeSignal(hist, 7, 21)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sig.Strength, 0.0)
	assert.LessOrEqual(t, sig.Strength, 1.0)
}

func TestComputeSignalDeterministic(t *testing.T) {
	hist := vShape(25, 25)
	first, err := ComputeSignal(hist, 7, 21)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := ComputeSignal(hist, 7, 21)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestContributionSignAndBonus(t *testing.T) {
	bull := models.TrendSignal{Direction: models.DirBullish, Strength: 0.4}
	bear := models.TrendSignal{Direction: models.DirBearish, Strength: 0.4}
	flat := models.TrendSignal{Direction: models.DirNeutral, Strength: 0.9}

	assert.InDelta(t, 0.4, bull.Contribution(), 1e-12)
	assert.InDelta(t, -0.4, bear.Contribution(), 1e-12)
	assert.Zero(t, flat.Contribution())

	bull.Crossover = models.CrossGolden
	assert.InDelta(t, 0.7, bull.Contribution(), 1e-12)

	// бонус не выводит за [-1,1]
	bull.Strength = 0.9
	assert.Equal(t, 1.0, bull.Contribution())
}
