// Package signals implements the bullish swing-failure-pattern detector.
//
// Everything in here is a pure function over a window of closed bars: same
// window in, same result out, no clock, no I/O. The control loop owns all
// side effects.
package signals

import (
	"math"

	"github.com/Ur1k/SFP-Strategy-Bot/pkg/models"
)

// Params are the strategy knobs. PivotWindow and MAPeriod govern the minimum
// history required; keep them consistent with the candle fetch limit.
type Params struct {
	SwingN         int     // bars each side to confirm a swing low
	PivotWindow    int     // lookback for the rolling pivot low level
	MAPeriod       int     // trend MA period
	MinDistance    int     // min bars since last confirmed swing low
	VolumeLookback int     // bars for the average-volume baseline
	ATRPeriod      int     // ATR period
	ATRMultiplier  float64 // max candle range = ATR * this multiplier
}

func DefaultParams() Params {
	return Params{
		SwingN:         6,
		PivotWindow:    273,
		MAPeriod:       644,
		MinDistance:    4,
		VolumeLookback: 12,
		ATRPeriod:      21,
		ATRMultiplier:  2.2,
	}
}

// MinBars is the shortest window Compute will evaluate.
func (p Params) MinBars() int {
	return p.MAPeriod + p.SwingN + 10
}

type Engine struct {
	params Params
}

func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// MinBars is the shortest window Compute will evaluate.
func (e *Engine) MinBars() int {
	return e.params.MinBars()
}

// LevelsAt re-derives the entry levels for the bar opened at timestamp:
// invalidation is that bar's low, take profit the rolling PivotWindow max
// high as of the bar before it. Returns nils when the bar is not in the
// window or has too little history behind it.
func (e *Engine) LevelsAt(bars []models.Bar, timestamp int64) (*float64, *float64) {
	for i, b := range bars {
		if b.Timestamp != timestamp {
			continue
		}
		if i < e.params.PivotWindow {
			return nil, nil
		}
		tp := bars[i-e.params.PivotWindow].High
		for j := i - e.params.PivotWindow + 1; j <= i-1; j++ {
			if bars[j].High > tp {
				tp = bars[j].High
			}
		}
		return floatPtr(b.Low), floatPtr(tp)
	}
	return nil, nil
}

// Compute evaluates the last bar of the window (the most recently closed
// candle). Windows shorter than MinBars are rejected with a non-eligible,
// level-less result.
func (e *Engine) Compute(bars []models.Bar) models.SignalResult {
	n := len(bars)
	p := e.params
	if n < p.MinBars() {
		return models.SignalResult{}
	}

	t := n - 1
	last := bars[t]

	// Confirmed swing lows: a bar is a swing low when its low is the minimum
	// of the centered 2N+1 window; confirmation lands N bars later so the
	// decision at bar t never sees data past t.
	confirmed := make([]float64, n)
	for i := range confirmed {
		confirmed[i] = math.NaN()
	}
	for j := p.SwingN; j <= n-1-p.SwingN; j++ {
		isSwingLow := true
		for k := j - p.SwingN; k <= j+p.SwingN; k++ {
			if bars[k].Low < bars[j].Low {
				isSwingLow = false
				break
			}
		}
		if isSwingLow {
			confirmed[j+p.SwingN] = bars[j].Low
		}
	}

	// Rolling pivot low over the trailing PivotWindow confirmations, shifted
	// by one bar: the reference for bar t excludes bar t itself.
	pivotLow := math.NaN()
	lo := t - p.PivotWindow
	if lo < 0 {
		lo = 0
	}
	for i := lo; i <= t-1; i++ {
		if !math.IsNaN(confirmed[i]) && (math.IsNaN(pivotLow) || confirmed[i] < pivotLow) {
			pivotLow = confirmed[i]
		}
	}

	// Distance in bars since the last confirmed swing low.
	distance := -1
	for i := t; i >= 0; i-- {
		if !math.IsNaN(confirmed[i]) {
			distance = t - i
			break
		}
	}

	atr := e.averageTrueRange(bars, t)
	candleRange := last.High - last.Low

	maRising := e.rollingCloseMean(bars, t) > e.rollingCloseMean(bars, t-1)

	volumeOK := false
	if avg, ok := e.trailingVolumeAvg(bars, t-1); ok {
		volumeOK = last.Volume > avg
	}

	// Raw SFP: wick below the pivot, close back above it, bullish body.
	sfpRaw := !math.IsNaN(pivotLow) &&
		last.Low < pivotLow &&
		last.Close > pivotLow &&
		last.Close > last.Open

	entry := sfpRaw &&
		maRising &&
		distance >= p.MinDistance &&
		volumeOK &&
		candleRange < p.ATRMultiplier*atr

	result := models.SignalResult{
		EntryEligible: entry,
		Invalidation:  floatPtr(last.Low),
	}
	if !math.IsNaN(pivotLow) {
		result.PivotLow = floatPtr(pivotLow)
	}

	// Take profit: the trailing PivotWindow max high as of the previous bar,
	// a resistance target independent of whether the entry triggers.
	if t >= p.PivotWindow {
		tp := bars[t-p.PivotWindow].High
		for i := t - p.PivotWindow + 1; i <= t-1; i++ {
			if bars[i].High > tp {
				tp = bars[i].High
			}
		}
		result.TakeProfit = floatPtr(tp)
	}

	return result
}

// averageTrueRange is a simple rolling mean of true range up to and including
// bar t. True range = max(high-low, |high-prevClose|, |low-prevClose|).
func (e *Engine) averageTrueRange(bars []models.Bar, t int) float64 {
	start := t - e.params.ATRPeriod + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	for i := start; i <= t; i++ {
		tr := bars[i].High - bars[i].Low
		if i > 0 {
			prevClose := bars[i-1].Close
			if v := math.Abs(bars[i].High - prevClose); v > tr {
				tr = v
			}
			if v := math.Abs(bars[i].Low - prevClose); v > tr {
				tr = v
			}
		}
		sum += tr
		count++
	}
	return sum / float64(count)
}

func (e *Engine) rollingCloseMean(bars []models.Bar, t int) float64 {
	start := t - e.params.MAPeriod + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for i := start; i <= t; i++ {
		sum += bars[i].Close
	}
	return sum / float64(t-start+1)
}

// trailingVolumeAvg is the full-window average volume ending at bar t; the
// entry gate uses the value as of the previous bar to avoid leakage.
func (e *Engine) trailingVolumeAvg(bars []models.Bar, t int) (float64, bool) {
	if t < e.params.VolumeLookback-1 {
		return 0, false
	}
	sum := 0.0
	for i := t - e.params.VolumeLookback + 1; i <= t; i++ {
		sum += bars[i].Volume
	}
	return sum / float64(e.params.VolumeLookback), true
}

func floatPtr(v float64) *float64 {
	return &v
}
