package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout_bot/internal/models"
	"scout_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testSettings() Settings {
	return Settings{
		MinOutcomes:  20,
		PatternN:     10,
		MaxStep:      0.1,
		VolRef:       0.05,
		MinScoutMult: 0.5,
		MaxScoutMult: 2.0,
		MinTrendW:    0.1,
		MaxTrendW:    0.6,
	}
}

func outcomes(n int, pnl float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = pnl
	}
	return out
}

// altReturns — знакопеременные доходности с большим разбросом.
func altReturns(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

type memParamStore struct {
	params map[string]*models.AIParameter
}

func (s *memParamStore) Save(_ context.Context, p *models.AIParameter) error {
	cp := *p
	s.params[p.Name] = &cp
	return nil
}

func (s *memParamStore) Load(_ context.Context, name string) (*models.AIParameter, error) {
	return s.params[name], nil
}

func TestRecommendInsufficientHistory(t *testing.T) {
	a := NewAdapter(true, testSettings(), nil)
	a.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }

	mult, w := a.Recommend(context.Background(), Input{
		Outcomes:         outcomes(15, 0.5),
		Returns:          outcomes(15, 0.01),
		CurrentScoutMult: 1.0,
		CurrentTrendW:    0.3,
	})

	assert.Equal(t, 1.0, mult.Recommended, "мало истории — текущее значение")
	assert.Equal(t, 0.3, w.Recommended)
	assert.Zero(t, mult.Confidence)
	assert.Zero(t, w.Confidence)
}

func TestRecommendBoundsNeverExceeded(t *testing.T) {
	a := NewAdapter(true, testSettings(), nil)

	// дикая волатильность и длинная полоса проигрышей давят множитель вверх,
	// но рекомендация остаётся внутри границ
	in := Input{
		Outcomes:         outcomes(50, -2.0),
		Returns:          altReturns(50, 0.5),
		CurrentScoutMult: 1.95,
		CurrentTrendW:    0.58,
	}
	for i := 0; i < 30; i++ {
		mult, w := a.Recommend(context.Background(), in)
		require.GreaterOrEqual(t, mult.Recommended, 0.5)
		require.LessOrEqual(t, mult.Recommended, 2.0)
		require.GreaterOrEqual(t, w.Recommended, 0.1)
		require.LessOrEqual(t, w.Recommended, 0.6)
		in.CurrentScoutMult = mult.Recommended
		in.CurrentTrendW = w.Recommended
	}
}

func TestRecommendMaxStepPerUpdate(t *testing.T) {
	a := NewAdapter(true, testSettings(), nil)

	mult, _ := a.Recommend(context.Background(), Input{
		Outcomes:         outcomes(50, -2.0),
		Returns:          altReturns(50, 0.5), // volFrac=1 -> raw у верхней границы
		CurrentScoutMult: 1.0,
		CurrentTrendW:    0.3,
	})
	assert.InDelta(t, 1.1, mult.Recommended, 1e-9, "за один апдейт не дальше MaxStep")
}

func TestRecommendDeterministic(t *testing.T) {
	a := NewAdapter(true, testSettings(), nil)
	a.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }

	in := Input{
		Outcomes:         []float64{0.5, -0.2, 1.1, -0.7, 0.3, 0.9, -0.1, 0.2, 0.4, -0.5, 0.6, 0.1, -0.3, 0.8, 0.2, -0.6, 0.7, 0.3, -0.2, 0.5},
		Returns:          []float64{0.01, -0.02, 0.015, 0.005, -0.01, 0.02, -0.005, 0.01, 0.0, -0.015},
		CurrentScoutMult: 1.0,
		CurrentTrendW:    0.3,
	}
	firstMult, firstW := a.Recommend(context.Background(), in)
	for i := 0; i < 10; i++ {
		mult, w := a.Recommend(context.Background(), in)
		assert.Equal(t, firstMult, mult)
		assert.Equal(t, firstW, w)
	}
}

func TestLosingStreakLowersTrendWeight(t *testing.T) {
	a := NewAdapter(true, testSettings(), nil)

	_, w := a.Recommend(context.Background(), Input{
		Outcomes:         outcomes(30, -1.0),
		Returns:          outcomes(30, 0.001),
		CurrentScoutMult: 1.0,
		CurrentTrendW:    0.4,
	})
	assert.Less(t, w.Recommended, 0.4)
}

func TestConfidenceGrowsWithHistory(t *testing.T) {
	a := NewAdapter(true, testSettings(), nil)

	small, _ := a.Recommend(context.Background(), Input{
		Outcomes: outcomes(20, 0.5), Returns: outcomes(20, 0.01),
		CurrentScoutMult: 1.0, CurrentTrendW: 0.3,
	})
	big, _ := a.Recommend(context.Background(), Input{
		Outcomes: outcomes(40, 0.5), Returns: outcomes(40, 0.01),
		CurrentScoutMult: 1.0, CurrentTrendW: 0.3,
	})
	assert.Greater(t, big.Confidence, small.Confidence)
}

func TestClampMethod(t *testing.T) {
	p := models.AIParameter{Recommended: 3.0, Min: 0.5, Max: 2.0}
	assert.True(t, p.Clamp())
	assert.Equal(t, 2.0, p.Recommended)

	p.Recommended = 1.0
	assert.False(t, p.Clamp())
}

func TestSetMaxStepValidation(t *testing.T) {
	a := NewAdapter(true, testSettings(), nil)

	var verr *models.ValidationError
	require.ErrorAs(t, a.SetMaxStep(0), &verr)
	require.ErrorAs(t, a.SetMaxStep(1.5), &verr)
	require.NoError(t, a.SetMaxStep(0.2))
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := &memParamStore{params: map[string]*models.AIParameter{}}

	a := NewAdapter(true, testSettings(), store)
	a.Recommend(ctx, Input{
		Outcomes:         outcomes(50, -2.0),
		Returns:          altReturns(50, 0.5),
		CurrentScoutMult: 1.0,
		CurrentTrendW:    0.3,
	})

	fresh := NewAdapter(true, testSettings(), store)
	_, _, ok := fresh.Restored()
	require.False(t, ok, "до рестора персиста не видно")

	require.NoError(t, fresh.Restore(ctx))
	mult, w, ok := fresh.Restored()
	require.True(t, ok)
	assert.InDelta(t, 1.1, mult, 1e-9, "адаптивный дрейф переживает рестарт")
	assert.InDelta(t, 0.2, w, 1e-9)
}

func TestRestoreClampsToCurrentBounds(t *testing.T) {
	store := &memParamStore{params: map[string]*models.AIParameter{
		models.ParamScoutMultiplier: {Name: models.ParamScoutMultiplier, Recommended: 5.0},
		models.ParamTrendWeight:     {Name: models.ParamTrendWeight, Recommended: 0.3},
	}}

	a := NewAdapter(true, testSettings(), store)
	require.NoError(t, a.Restore(context.Background()))

	mult, _, ok := a.Restored()
	require.True(t, ok)
	assert.Equal(t, 2.0, mult, "сохранённое вне актуальных границ — зажимаем")
}

func TestRestoreEmptyStoreKeepsDefaults(t *testing.T) {
	a := NewAdapter(true, testSettings(), &memParamStore{params: map[string]*models.AIParameter{}})
	require.NoError(t, a.Restore(context.Background()))

	_, _, ok := a.Restored()
	assert.False(t, ok)
}

func TestSetEnabled(t *testing.T) {
	a := NewAdapter(false, testSettings(), nil)
	assert.False(t, a.Enabled())
	a.SetEnabled(true)
	assert.True(t, a.Enabled())
}
