package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ur1k/SFP-Strategy-Bot/pkg/models"
)

func testParams() Params {
	return Params{
		SwingN:         2,
		PivotWindow:    10,
		MAPeriod:       5,
		MinDistance:    2,
		VolumeLookback: 3,
		ATRPeriod:      5,
		ATRMultiplier:  4.0,
	}
}

// sfpScenario builds 20 closed bars in a slow uptrend with a single swing low
// at bar 10 (low 93, confirmed at bar 12) and a swing-failure candle at the
// end: a wick to 92.5 through the pivot with a close back above it on high
// volume.
func sfpScenario() []models.Bar {
	bars := make([]models.Bar, 20)
	for i := range bars {
		c := 90 + 0.5*float64(i)
		bars[i] = models.Bar{
			Timestamp: int64(i) * 1_800_000,
			Open:      c - 0.2,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    10,
		}
	}
	bars[10].Low = 93

	last := &bars[19]
	last.Open = 99
	last.High = 101.5
	last.Low = 92.5
	last.Close = 101
	last.Volume = 50
	return bars
}

func TestComputeEntrySignal(t *testing.T) {
	engine := NewEngine(testParams())
	result := engine.Compute(sfpScenario())

	assert.True(t, result.EntryEligible)

	require.NotNil(t, result.Invalidation)
	assert.InDelta(t, 92.5, *result.Invalidation, 1e-9)

	require.NotNil(t, result.PivotLow)
	assert.InDelta(t, 93, *result.PivotLow, 1e-9)

	// Take profit is the trailing window max high as of the previous bar.
	require.NotNil(t, result.TakeProfit)
	assert.InDelta(t, 99.5, *result.TakeProfit, 1e-9)
}

func TestComputeIsDeterministic(t *testing.T) {
	engine := NewEngine(testParams())
	bars := sfpScenario()

	first := engine.Compute(bars)
	second := engine.Compute(bars)

	assert.Equal(t, first, second)
}

func TestComputeRejectsShortWindow(t *testing.T) {
	engine := NewEngine(testParams())
	bars := sfpScenario()[:testParams().MinBars()-1]

	result := engine.Compute(bars)

	assert.False(t, result.EntryEligible)
	assert.Nil(t, result.Invalidation)
	assert.Nil(t, result.TakeProfit)
	assert.Nil(t, result.PivotLow)
}

func TestComputeNoWickBelowPivot(t *testing.T) {
	engine := NewEngine(testParams())
	bars := sfpScenario()
	bars[19].Low = 93.5 // stays above the 93 pivot

	result := engine.Compute(bars)

	assert.False(t, result.EntryEligible)
	// Levels are still reported for logging even without an entry.
	require.NotNil(t, result.Invalidation)
	assert.InDelta(t, 93.5, *result.Invalidation, 1e-9)
}

func TestComputeVolumeGate(t *testing.T) {
	engine := NewEngine(testParams())
	bars := sfpScenario()
	bars[19].Volume = 5 // below the trailing average of 10

	assert.False(t, engine.Compute(bars).EntryEligible)
}

func TestComputeBlowOffGate(t *testing.T) {
	params := testParams()
	params.ATRMultiplier = 1.0
	engine := NewEngine(params)

	assert.False(t, engine.Compute(sfpScenario()).EntryEligible)
}

func TestComputeDistanceGate(t *testing.T) {
	params := testParams()
	params.MinDistance = 8 // swing low confirmed 7 bars ago
	engine := NewEngine(params)

	assert.False(t, engine.Compute(sfpScenario()).EntryEligible)
}

func TestComputeTrendGate(t *testing.T) {
	engine := NewEngine(testParams())
	bars := sfpScenario()
	// Flatten the trend: identical closes make the rolling mean non-rising.
	for i := 13; i < 19; i++ {
		bars[i].Close = 96
	}
	bars[19].Close = 93.5 // still above the pivot, still bullish vs open
	bars[19].Open = 93.2

	assert.False(t, engine.Compute(bars).EntryEligible)
}

func TestLevelsAt(t *testing.T) {
	engine := NewEngine(testParams())
	bars := sfpScenario()

	inv, tp := engine.LevelsAt(bars, 15*1_800_000)
	require.NotNil(t, inv)
	require.NotNil(t, tp)
	assert.InDelta(t, 97, *inv, 1e-9)
	assert.InDelta(t, 97.5, *tp, 1e-9)

	// Timestamp not in the window anymore.
	inv, tp = engine.LevelsAt(bars, 999)
	assert.Nil(t, inv)
	assert.Nil(t, tp)

	// Too little history behind the bar for a pivot high.
	inv, tp = engine.LevelsAt(bars, 5*1_800_000)
	assert.Nil(t, inv)
	assert.Nil(t, tp)
}

func TestDefaultParamsMinBars(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 660, p.MinBars())
}
