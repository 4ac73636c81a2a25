package baseline

import "math"

// HoltWinters is a triple exponential smoother with additive seasonality.
// It serves as a secondary baseline for streams with a known period: the
// fitted value tracks where the signal should sit at this point in the
// cycle, so residuals against it stay small through ordinary seasonal
// swings. It never affects per-sample classification.
type HoltWinters struct {
	alpha  float64 // level smoothing
	beta   float64 // trend smoothing
	gamma  float64 // seasonal smoothing
	period int

	level    float64
	trend    float64
	seasonal []float64
	resVar   float64 // smoothed squared one-step residual
	samples  int
	ready    bool
}

// NewHoltWinters creates a seasonal smoother. period is the number of
// samples per cycle (e.g. 24 for hourly samples with a daily rhythm);
// periods below two fall back to 24. Smoothing factors are clamped to
// [0, 1].
func NewHoltWinters(alpha, beta, gamma float64, period int) *HoltWinters {
	if period < 2 {
		period = 24
	}
	return &HoltWinters{
		alpha:    clamp(alpha),
		beta:     clamp(beta),
		gamma:    clamp(gamma),
		period:   period,
		seasonal: make([]float64, period),
	}
}

// Update absorbs one value. The first full period only accumulates raw
// values; once a complete cycle has been seen the model primes itself and
// starts smoothing level, trend, and seasonal components.
func (hw *HoltWinters) Update(value float64) {
	hw.samples++
	idx := (hw.samples - 1) % hw.period

	if !hw.ready {
		hw.seasonal[idx] = value
		if hw.samples == hw.period {
			hw.prime()
		}
		return
	}

	// Residual against the one-step-ahead prediction, taken before the
	// components absorb this sample.
	res := value - (hw.level + hw.trend + hw.seasonal[idx])
	hw.resVar = hw.alpha*res*res + (1-hw.alpha)*hw.resVar

	prevLevel := hw.level
	hw.level = hw.alpha*(value-hw.seasonal[idx]) + (1-hw.alpha)*(prevLevel+hw.trend)
	hw.trend = hw.beta*(hw.level-prevLevel) + (1-hw.beta)*hw.trend
	hw.seasonal[idx] = hw.gamma*(value-hw.level) + (1-hw.gamma)*hw.seasonal[idx]
}

// prime derives the initial level and seasonal offsets from the first
// complete cycle. The trend starts flat: one cycle cannot tell drift apart
// from seasonality.
func (hw *HoltWinters) prime() {
	hw.ready = true

	sum := 0.0
	for _, v := range hw.seasonal {
		sum += v
	}
	hw.level = sum / float64(hw.period)
	hw.trend = 0

	for i := range hw.seasonal {
		hw.seasonal[i] -= hw.level
	}
}

// Forecast returns the projected value steps ahead of the latest sample.
// Returns 0 until a full period has been seen.
func (hw *HoltWinters) Forecast(steps int) float64 {
	if !hw.ready {
		return 0
	}
	idx := (hw.samples + steps - 1) % hw.period
	return hw.level + float64(steps)*hw.trend + hw.seasonal[idx]
}

// Fitted returns the model's expectation for the most recent sample.
// Returns 0 until a full period has been seen.
func (hw *HoltWinters) Fitted() float64 {
	if !hw.ready {
		return 0
	}
	idx := (hw.samples - 1) % hw.period
	return hw.level + hw.seasonal[idx]
}

// Ready reports whether a full period has been absorbed.
func (hw *HoltWinters) Ready() bool { return hw.ready }

// Level returns the current deseasonalized level.
func (hw *HoltWinters) Level() float64 { return hw.level }

// Trend returns the current per-sample trend estimate.
func (hw *HoltWinters) Trend() float64 { return hw.trend }

// ResidualStdDev returns the smoothed standard deviation of one-step
// forecast errors, a spread estimate for the seasonal model. Returns 0
// until a full period has been seen.
func (hw *HoltWinters) ResidualStdDev() float64 { return math.Sqrt(hw.resVar) }

// Samples returns how many values the model has absorbed.
func (hw *HoltWinters) Samples() int { return hw.samples }

// Period returns the configured samples-per-cycle.
func (hw *HoltWinters) Period() int { return hw.period }

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
