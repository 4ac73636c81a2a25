package source

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

const floatTol = 1e-9

func TestGenerator_DeterministicForSeed(t *testing.T) {
	p := DefaultSynthParams()
	p.Seed = 42

	g1, err := NewGenerator(p)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	g2, err := NewGenerator(p)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	for i := 0; i < 500; i++ {
		v1, v2 := g1.Next(), g2.Next()
		if v1 != v2 {
			t.Fatalf("step %d: generators diverged, %v != %v", i, v1, v2)
		}
	}
}

func TestGenerator_SeasonalShape(t *testing.T) {
	// Noise and injection off: the series is the pure seasonal curve.
	p := SynthParams{Base: 10, Amplitude: 5, Period: 24, Seed: 1}
	g, err := NewGenerator(p)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	for step := 0; step < 48; step++ {
		want := 10 + 5*math.Sin(2*math.Pi*float64(step)/24)
		got := g.Next()
		if math.Abs(got-want) > floatTol {
			t.Fatalf("step %d: got %v, want %v", step, got, want)
		}
	}
	if g.Step() != 48 {
		t.Errorf("Step() = %d, want 48", g.Step())
	}
}

func TestGenerator_AlwaysFinite(t *testing.T) {
	p := SynthParams{
		Base:              10,
		Amplitude:         5,
		Period:            24,
		Noise:             0.2,
		InjectProbability: 0.5,
		Injector:          "mixed",
		Seed:              7,
	}
	g, err := NewGenerator(p)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	for i := 0; i < 10000; i++ {
		if v := g.Next(); !isFinite(v) {
			t.Fatalf("step %d: produced non-finite value %v", i, v)
		}
	}
}

func TestGenerator_NoiseBounded(t *testing.T) {
	// No injection: every value stays within base +- amplitude +- noise*base.
	p := SynthParams{Base: 10, Amplitude: 5, Period: 24, Noise: 0.1, Seed: 3}
	g, err := NewGenerator(p)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	lo, hi := 10.0-5-1, 10.0+5+1
	for i := 0; i < 1000; i++ {
		v := g.Next()
		if v < lo-floatTol || v > hi+floatTol {
			t.Fatalf("step %d: value %v outside [%v, %v]", i, v, lo, hi)
		}
	}
}

func TestSynthParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SynthParams)
		wantErr bool
	}{
		{"defaults", func(_ *SynthParams) {}, false},
		{"zero period", func(p *SynthParams) { p.Period = 0 }, true},
		{"negative amplitude", func(p *SynthParams) { p.Amplitude = -1 }, true},
		{"negative noise", func(p *SynthParams) { p.Noise = -0.1 }, true},
		{"probability above one", func(p *SynthParams) { p.InjectProbability = 1.5 }, true},
		{"negative probability", func(p *SynthParams) { p.InjectProbability = -0.1 }, true},
		{"unknown injector", func(p *SynthParams) { p.Injector = "bogus" }, true},
		{"no injector", func(p *SynthParams) { p.Injector = "" }, false},
		{"nan base", func(p *SynthParams) { p.Base = math.NaN() }, true},
		{"inf amplitude", func(p *SynthParams) { p.Amplitude = math.Inf(1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultSynthParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("error %v does not wrap ErrInvalidParams", err)
			}
		})
	}
}

func TestInjectorByName(t *testing.T) {
	for _, name := range []string{"spike", "drop", "outlier", "mixed"} {
		inj, err := InjectorByName(name)
		if err != nil {
			t.Fatalf("InjectorByName(%q) error = %v", name, err)
		}
		if inj.Name() != name {
			t.Errorf("Name() = %q, want %q", inj.Name(), name)
		}
	}

	_, err := InjectorByName("bogus")
	if !errors.Is(err, ErrUnknownInjector) {
		t.Errorf("InjectorByName(bogus) error = %v, want ErrUnknownInjector", err)
	}
}

func TestInjectors_Perturbation(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	if got := (spikeInjector{}).Inject(10, rng); math.Abs(got-30) > floatTol {
		t.Errorf("spike Inject(10) = %v, want 30", got)
	}
	if got := (dropInjector{}).Inject(10, rng); math.Abs(got-1) > floatTol {
		t.Errorf("drop Inject(10) = %v, want 1", got)
	}

	// Outlier adds gaussian deviation scaled by the value; a zero value
	// still moves.
	for i := 0; i < 100; i++ {
		got := (outlierInjector{}).Inject(10, rng)
		if !isFinite(got) {
			t.Fatalf("outlier Inject produced non-finite %v", got)
		}
	}
	moved := false
	for i := 0; i < 20; i++ {
		if got := (outlierInjector{}).Inject(0, rng); got != 0 {
			moved = true
			if !isFinite(got) {
				t.Fatalf("outlier Inject(0) produced non-finite %v", got)
			}
		}
	}
	if !moved {
		t.Error("outlier Inject(0) never perturbed the value")
	}

	// Mixed delegates to one of the three strategies.
	for i := 0; i < 100; i++ {
		if got := (mixedInjector{}).Inject(10, rng); !isFinite(got) {
			t.Fatalf("mixed Inject produced non-finite %v", got)
		}
	}
}

func TestParseSynthParams(t *testing.T) {
	p, err := parseSynthParams("")
	if err != nil {
		t.Fatalf("parseSynthParams(empty) error = %v", err)
	}
	if p.Base != 10 || p.Period != 24 {
		t.Errorf("defaults not applied: %+v", p)
	}

	p, err = parseSynthParams(`{"base": 50, "period": 10, "seed": 9}`)
	if err != nil {
		t.Fatalf("parseSynthParams(override) error = %v", err)
	}
	if p.Base != 50 {
		t.Errorf("Base = %v, want 50", p.Base)
	}
	if p.Period != 10 {
		t.Errorf("Period = %d, want 10", p.Period)
	}
	if p.Amplitude != 5 {
		t.Errorf("Amplitude = %v, want default 5", p.Amplitude)
	}

	if _, err := parseSynthParams(`{not json`); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("parseSynthParams(malformed) error = %v, want ErrInvalidParams", err)
	}
	if _, err := parseSynthParams(`{"period": 0}`); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("parseSynthParams(bad range) error = %v, want ErrInvalidParams", err)
	}
}

func TestParseProbeParams(t *testing.T) {
	p, err := parseProbeParams(`{"target": "192.0.2.1"}`)
	if err != nil {
		t.Fatalf("parseProbeParams() error = %v", err)
	}
	if p.Target != "192.0.2.1" {
		t.Errorf("Target = %q, want 192.0.2.1", p.Target)
	}

	if _, err := parseProbeParams(""); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("parseProbeParams(empty) error = %v, want ErrInvalidParams", err)
	}
	if _, err := parseProbeParams(`{}`); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("parseProbeParams(no target) error = %v, want ErrInvalidParams", err)
	}
}

func TestValidateStreamParams(t *testing.T) {
	if err := validateStreamParams(KindSynthetic, ""); err != nil {
		t.Errorf("synthetic defaults: %v", err)
	}
	if err := validateStreamParams(KindProbe, `{"target": "h"}`); err != nil {
		t.Errorf("probe with target: %v", err)
	}
	if err := validateStreamParams(KindPush, ""); err != nil {
		t.Errorf("push: %v", err)
	}
	if err := validateStreamParams("bogus", ""); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind error = %v, want ErrUnknownKind", err)
	}
}
