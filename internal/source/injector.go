package source

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ErrUnknownInjector is returned when a stream names an injector that does
// not exist.
var ErrUnknownInjector = errors.New("unknown injector")

// Injector perturbs a generated value into an out-of-distribution event.
// Implementations must return a finite value for any finite input; the
// detector downstream treats injected samples like any other.
type Injector interface {
	Name() string
	Inject(value float64, rng *rand.Rand) float64
}

// InjectorByName returns the named injection strategy.
func InjectorByName(name string) (Injector, error) {
	switch name {
	case "spike":
		return spikeInjector{}, nil
	case "drop":
		return dropInjector{}, nil
	case "outlier":
		return outlierInjector{}, nil
	case "mixed":
		return mixedInjector{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInjector, name)
	}
}

// spikeInjector triples the value.
type spikeInjector struct{}

func (spikeInjector) Name() string { return "spike" }

func (spikeInjector) Inject(value float64, _ *rand.Rand) float64 {
	return value * 3
}

// dropInjector collapses the value to a tenth.
type dropInjector struct{}

func (dropInjector) Name() string { return "drop" }

func (dropInjector) Inject(value float64, _ *rand.Rand) float64 {
	return value * 0.1
}

// outlierInjector adds gaussian noise with a standard deviation as wide as
// the value itself, producing deviations in either direction.
type outlierInjector struct{}

func (outlierInjector) Name() string { return "outlier" }

func (outlierInjector) Inject(value float64, rng *rand.Rand) float64 {
	scale := math.Abs(value)
	if scale == 0 {
		scale = 1
	}
	return value + rng.NormFloat64()*scale
}

// mixedInjector picks one of the other strategies uniformly per event.
type mixedInjector struct{}

func (mixedInjector) Name() string { return "mixed" }

func (mixedInjector) Inject(value float64, rng *rand.Rand) float64 {
	switch rng.IntN(3) {
	case 0:
		return spikeInjector{}.Inject(value, rng)
	case 1:
		return dropInjector{}.Inject(value, rng)
	default:
		return outlierInjector{}.Inject(value, rng)
	}
}
