package anomaly

import "math"

// Drift directions reported by the CUSUM tracker.
const (
	DriftUp   = "up"
	DriftDown = "down"
)

// CUSUM accumulates standardized deviations to catch slow baseline drift
// that individual z-scores stay blind to. It is a secondary signal: it
// never influences per-sample classification.
type CUSUM struct {
	slack     float64 // allowable per-sample drift before the sums grow
	threshold float64 // decision threshold on either cumulative sum
	high      float64
	low       float64
}

// DriftResult reports the CUSUM state after one observation.
type DriftResult struct {
	Drifting  bool
	Direction string
	High      float64
	Low       float64
}

// NewCUSUM creates a drift tracker. Typical values: slack 0.5, threshold 5.
func NewCUSUM(slack, threshold float64) *CUSUM {
	return &CUSUM{slack: slack, threshold: threshold}
}

// Observe folds in one standardized deviation (deviation divided by spread)
// and reports whether either cumulative sum crossed the threshold. A
// crossing resets that sum so the next drift episode is counted from zero.
func (c *CUSUM) Observe(standardized float64) DriftResult {
	c.high = math.Max(0, c.high+standardized-c.slack)
	c.low = math.Max(0, c.low-standardized-c.slack)

	res := DriftResult{High: c.high, Low: c.low}
	if c.high > c.threshold {
		res.Drifting = true
		res.Direction = DriftUp
		c.high = 0
	}
	if c.low > c.threshold {
		res.Drifting = true
		res.Direction = DriftDown
		c.low = 0
	}
	return res
}

// Reset clears both accumulators.
func (c *CUSUM) Reset() {
	c.high = 0
	c.low = 0
}
