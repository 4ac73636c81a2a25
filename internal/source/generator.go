package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Stream kinds. Synthetic streams are generated locally, probe streams
// measure a real host, push streams receive their samples over the API.
const (
	KindSynthetic = "synthetic"
	KindProbe     = "probe"
	KindPush      = "push"
)

var (
	// ErrUnknownKind is returned when a stream names a kind that does not
	// exist.
	ErrUnknownKind = errors.New("unknown stream kind")

	// ErrInvalidParams is returned when a stream's params blob fails to
	// parse or validate for its kind.
	ErrInvalidParams = errors.New("invalid stream parameters")
)

// SynthParams configures a synthetic generator stream. The series follows
// base + amplitude*sin(2*pi*step/period) plus uniform noise of up to
// noise*base in either direction, with events injected at inject_probability
// per step.
type SynthParams struct {
	Base              float64 `json:"base"`
	Amplitude         float64 `json:"amplitude"`
	Period            int     `json:"period"`
	Noise             float64 `json:"noise"`
	InjectProbability float64 `json:"inject_probability"`
	Injector          string  `json:"injector"`
	Seed              uint64  `json:"seed,omitempty"`
}

// DefaultSynthParams returns the demo daily pattern: base 10 with a
// 24-step seasonal swing of 5 and a 1% event rate.
func DefaultSynthParams() SynthParams {
	return SynthParams{
		Base:              10,
		Amplitude:         5,
		Period:            24,
		Noise:             0.05,
		InjectProbability: 0.01,
		Injector:          "mixed",
	}
}

// Validate checks all parameter ranges.
func (p SynthParams) Validate() error {
	if !isFinite(p.Base) || !isFinite(p.Amplitude) || !isFinite(p.Noise) {
		return fmt.Errorf("%w: base, amplitude and noise must be finite", ErrInvalidParams)
	}
	if p.Period < 1 {
		return fmt.Errorf("%w: period %d must be at least 1", ErrInvalidParams, p.Period)
	}
	if p.Amplitude < 0 {
		return fmt.Errorf("%w: amplitude %v must not be negative", ErrInvalidParams, p.Amplitude)
	}
	if p.Noise < 0 {
		return fmt.Errorf("%w: noise %v must not be negative", ErrInvalidParams, p.Noise)
	}
	if p.InjectProbability < 0 || p.InjectProbability > 1 {
		return fmt.Errorf("%w: inject_probability %v outside [0, 1]", ErrInvalidParams, p.InjectProbability)
	}
	if p.Injector != "" {
		if _, err := InjectorByName(p.Injector); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	return nil
}

// ProbeParams configures a probe stream.
type ProbeParams struct {
	Target string `json:"target"`
}

// Generator produces a synthetic value series. It is deterministic for a
// fixed non-zero seed; a zero seed picks a time-based one. Not safe for
// concurrent use.
type Generator struct {
	params SynthParams
	inj    Injector
	rng    *rand.Rand
	step   uint64
}

// NewGenerator builds a generator from validated params.
func NewGenerator(p SynthParams) (*Generator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{params: p}
	if p.Injector != "" && p.InjectProbability > 0 {
		inj, err := InjectorByName(p.Injector)
		if err != nil {
			return nil, err
		}
		g.inj = inj
	}
	seed := p.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // G115: timestamp seed for simulation
	}
	g.rng = rand.New(rand.NewPCG(seed, seed))
	return g, nil
}

// Next returns the next value in the series and advances the step counter.
// Every returned value is finite.
func (g *Generator) Next() float64 {
	v := g.params.Base
	if g.params.Amplitude != 0 {
		v += g.params.Amplitude * math.Sin(2*math.Pi*float64(g.step)/float64(g.params.Period))
	}
	if g.params.Noise != 0 {
		v += (g.rng.Float64()*2 - 1) * g.params.Noise * g.params.Base
	}
	if g.inj != nil && g.rng.Float64() < g.params.InjectProbability {
		v = g.inj.Inject(v, g.rng)
	}
	g.step++
	return v
}

// Step returns how many values have been produced.
func (g *Generator) Step() uint64 { return g.step }

// parseSynthParams decodes a params blob over the defaults and validates it.
func parseSynthParams(s string) (SynthParams, error) {
	p := DefaultSynthParams()
	if s != "" {
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return SynthParams{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	if err := p.Validate(); err != nil {
		return SynthParams{}, err
	}
	return p, nil
}

// parseProbeParams decodes and validates a probe params blob.
func parseProbeParams(s string) (ProbeParams, error) {
	var p ProbeParams
	if s != "" {
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return ProbeParams{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	if p.Target == "" {
		return ProbeParams{}, fmt.Errorf("%w: probe target is required", ErrInvalidParams)
	}
	return p, nil
}

// validateStreamParams checks a params blob against its stream kind.
func validateStreamParams(kind, params string) error {
	switch kind {
	case KindSynthetic:
		_, err := parseSynthParams(params)
		return err
	case KindProbe:
		_, err := parseProbeParams(params)
		return err
	case KindPush:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
