// Package baseline provides the adaptive statistics a detector tracks per
// stream: an exponentially weighted mean and variance, plus an optional
// Holt-Winters seasonal model for periodic signals.
package baseline

import "math"

// EWMA tracks an exponentially weighted moving average of a signal together
// with an exponentially weighted estimate of its variance. The variance is
// driven by the squared deviation of each sample from the mean as it stood
// before that sample was absorbed.
type EWMA struct {
	Alpha   float64 // Weight of the newest sample (0 < alpha < 1)
	Mean    float64 // Current smoothed mean
	Var     float64 // Smoothed squared-deviation estimate, never negative
	Samples uint64  // Number of samples absorbed
}

// NewEWMA creates a tracker with the given smoothing factor. Factors outside
// (0, 1) fall back to 0.2.
func NewEWMA(alpha float64) *EWMA {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.2
	}
	return &EWMA{Alpha: alpha}
}

// Update absorbs a new value. The first value seeds the mean directly and
// leaves the variance at zero; every later value applies
//
//	mean     = alpha*value + (1-alpha)*mean
//	variance = alpha*deviation^2 + (1-alpha)*variance
//
// where deviation is measured against the mean before this update.
func (e *EWMA) Update(value float64) {
	e.Samples++
	if e.Samples == 1 {
		e.Mean = value
		e.Var = 0
		return
	}
	deviation := value - e.Mean
	e.Mean = e.Alpha*value + (1-e.Alpha)*e.Mean
	e.Var = e.Alpha*deviation*deviation + (1-e.Alpha)*e.Var
}

// StdDev returns the current spread estimate.
func (e *EWMA) StdDev() float64 {
	return math.Sqrt(e.Var)
}
