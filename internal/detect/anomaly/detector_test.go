package anomaly

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-6

func mustDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) = %v", cfg, err)
	}
	return d
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"alpha zero", func(c *Config) { c.Alpha = 0 }},
		{"alpha one", func(c *Config) { c.Alpha = 1 }},
		{"alpha negative", func(c *Config) { c.Alpha = -0.1 }},
		{"alpha above one", func(c *Config) { c.Alpha = 1.5 }},
		{"threshold zero", func(c *Config) { c.Threshold = 0 }},
		{"threshold negative", func(c *Config) { c.Threshold = -3 }},
		{"window zero", func(c *Config) { c.WindowSize = 0 }},
		{"window negative", func(c *Config) { c.WindowSize = -10 }},
		{"epsilon zero", func(c *Config) { c.Epsilon = 0 }},
		{"epsilon negative", func(c *Config) { c.Epsilon = -1e-3 }},
		{"min samples negative", func(c *Config) { c.MinSamples = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			d, err := New(cfg)
			if err == nil {
				t.Fatal("New() should fail for invalid configuration")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if d != nil {
				t.Error("no detector should be created on invalid configuration")
			}
		})
	}
}

func TestNew_DefaultConfigIsValid(t *testing.T) {
	d := mustDetector(t, DefaultConfig())
	cfg := d.Config()
	if cfg.Threshold != 3.0 {
		t.Errorf("Threshold = %v, want 3.0", cfg.Threshold)
	}
	if cfg.WindowSize != 100 {
		t.Errorf("WindowSize = %d, want 100", cfg.WindowSize)
	}
	if cfg.Epsilon != 1e-3 {
		t.Errorf("Epsilon = %v, want 1e-3", cfg.Epsilon)
	}
}

func TestProcess_FirstSampleSeedsBaseline(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"positive", 42.0},
		{"zero", 0.0},
		{"negative", -17.5},
		{"large", 1e9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDetector(t, DefaultConfig())

			c, err := d.Process(tt.value)
			if err != nil {
				t.Fatalf("Process(%v) = %v", tt.value, err)
			}
			if c.IsAnomaly {
				t.Error("first sample must never be anomalous")
			}
			if math.Abs(c.Baseline-tt.value) > epsilon {
				t.Errorf("Baseline = %v, want %v", c.Baseline, tt.value)
			}
			if c.Spread != 0 {
				t.Errorf("Spread = %v, want 0", c.Spread)
			}
			if c.ZScore != 0 {
				t.Errorf("ZScore = %v, want 0", c.ZScore)
			}
			if d.Samples() != 1 {
				t.Errorf("Samples() = %d, want 1", d.Samples())
			}
			if h := d.History(); len(h) != 1 || h[0] != tt.value {
				t.Errorf("History() = %v, want [%v]", h, tt.value)
			}
		})
	}
}

func TestProcess_RejectsNonFiniteInput(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
	}

	for _, tt := range tests {
		bad := tt.value
		t.Run(tt.name, func(t *testing.T) {
			d := mustDetector(t, DefaultConfig())
			for _, v := range []float64{10, 11, 9, 10.5} {
				if _, err := d.Process(v); err != nil {
					t.Fatalf("Process(%v) = %v", v, err)
				}
			}

			beforeBaseline := d.Baseline()
			beforeSpread := d.Spread()
			beforeSamples := d.Samples()
			beforeHistory := d.History()

			_, err := d.Process(bad)
			if err == nil {
				t.Fatalf("Process(%v) should fail", bad)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}

			if d.Baseline() != beforeBaseline {
				t.Errorf("Baseline changed: %v -> %v", beforeBaseline, d.Baseline())
			}
			if d.Spread() != beforeSpread {
				t.Errorf("Spread changed: %v -> %v", beforeSpread, d.Spread())
			}
			if d.Samples() != beforeSamples {
				t.Errorf("Samples changed: %d -> %d", beforeSamples, d.Samples())
			}
			afterHistory := d.History()
			if len(afterHistory) != len(beforeHistory) {
				t.Fatalf("History length changed: %d -> %d", len(beforeHistory), len(afterHistory))
			}
			for i := range beforeHistory {
				if afterHistory[i] != beforeHistory[i] {
					t.Errorf("History[%d] changed: %v -> %v", i, beforeHistory[i], afterHistory[i])
				}
			}
		})
	}
}

func TestProcess_SpikeAfterStablePhase(t *testing.T) {
	d := mustDetector(t, Config{
		Alpha:      0.2,
		Threshold:  3.0,
		WindowSize: 100,
		Epsilon:    1e-3,
	})

	for i := 0; i < 4; i++ {
		c, err := d.Process(10.0)
		if err != nil {
			t.Fatalf("Process(10) sample %d = %v", i+1, err)
		}
		if c.IsAnomaly {
			t.Errorf("sample %d of stable phase flagged anomalous", i+1)
		}
	}

	c, err := d.Process(100.0)
	if err != nil {
		t.Fatalf("Process(100) = %v", err)
	}
	if !c.IsAnomaly {
		t.Error("spike after stable phase must be anomalous")
	}
	// deviation 90 against spread 0 plus epsilon 1e-3.
	if math.Abs(c.ZScore-90000.0) > 1e-3 {
		t.Errorf("ZScore = %v, want 90000", c.ZScore)
	}

	// Statistics absorb the spike regardless of classification, and the
	// returned values are post-update: mean = 0.2*100 + 0.8*10 = 28,
	// variance = 0.2*90^2 = 1620.
	if math.Abs(c.Baseline-28.0) > epsilon {
		t.Errorf("Baseline = %v, want 28.0", c.Baseline)
	}
	if math.Abs(c.Spread-math.Sqrt(1620.0)) > epsilon {
		t.Errorf("Spread = %v, want sqrt(1620) = %v", c.Spread, math.Sqrt(1620.0))
	}
}

func TestProcess_ReturnsPostUpdateStats(t *testing.T) {
	d := mustDetector(t, Config{
		Alpha:      0.5,
		Threshold:  3.0,
		WindowSize: 10,
		Epsilon:    1e-3,
	})

	if _, err := d.Process(10.0); err != nil {
		t.Fatal(err)
	}
	c, err := d.Process(20.0)
	if err != nil {
		t.Fatal(err)
	}

	// Pre-update mean was 10, so the returned baseline must already be
	// 0.5*20 + 0.5*10 = 15.
	if math.Abs(c.Baseline-15.0) > epsilon {
		t.Errorf("Baseline = %v, want post-update 15.0", c.Baseline)
	}
	// variance = 0.5 * 10^2 = 50.
	if math.Abs(c.Spread-math.Sqrt(50.0)) > epsilon {
		t.Errorf("Spread = %v, want sqrt(50)", c.Spread)
	}
}

func TestProcess_BoundaryZScoreIsNormal(t *testing.T) {
	// Inject state so the z-score denominator is exactly 1.0:
	// spread = sqrt(0.25) = 0.5, epsilon = 0.5. A sample at distance 3.0
	// from the mean then scores exactly the threshold and must be normal.
	d := mustDetector(t, Config{
		Alpha:      0.2,
		Threshold:  3.0,
		WindowSize: 10,
		Epsilon:    0.5,
	})
	d.stats.Mean = 0
	d.stats.Var = 0.25
	d.stats.Samples = 5

	c, err := d.Process(3.0)
	if err != nil {
		t.Fatal(err)
	}
	if c.ZScore != 3.0 {
		t.Fatalf("ZScore = %v, want exactly 3.0", c.ZScore)
	}
	if c.IsAnomaly {
		t.Error("z-score equal to the threshold must be classified normal")
	}

	// The same distance nudged past the threshold flips the classification.
	d2 := mustDetector(t, Config{
		Alpha:      0.2,
		Threshold:  3.0,
		WindowSize: 10,
		Epsilon:    0.5,
	})
	d2.stats.Mean = 0
	d2.stats.Var = 0.25
	d2.stats.Samples = 5

	c2, err := d2.Process(3.5)
	if err != nil {
		t.Fatal(err)
	}
	if !c2.IsAnomaly {
		t.Errorf("ZScore = %v strictly above threshold, want anomaly", c2.ZScore)
	}
}

func TestProcess_ThresholdMonotonicity(t *testing.T) {
	// A stricter threshold can only flag a subset of what a looser one
	// flags on the identical input sequence.
	values := make([]float64, 0, 120)
	for i := 0; i < 120; i++ {
		v := 50.0 + 5.0*math.Sin(float64(i)/4.0)
		if i%13 == 0 {
			v += 35.0
		}
		if i%29 == 0 {
			v -= 40.0
		}
		values = append(values, v)
	}

	thresholds := []float64{1.5, 2.5, 3.5}
	counts := make([]int, len(thresholds))
	for ti, threshold := range thresholds {
		d := mustDetector(t, Config{
			Alpha:      0.2,
			Threshold:  threshold,
			WindowSize: 100,
			Epsilon:    1e-3,
		})
		for _, v := range values {
			c, err := d.Process(v)
			if err != nil {
				t.Fatal(err)
			}
			if c.IsAnomaly {
				counts[ti]++
			}
		}
	}

	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[i-1] {
			t.Errorf("threshold %v flagged %d anomalies, more than looser threshold %v with %d",
				thresholds[i], counts[i], thresholds[i-1], counts[i-1])
		}
	}
	if counts[0] == 0 {
		t.Error("loosest threshold flagged nothing; input sequence is too tame for this test")
	}
}

func TestProcess_ConvergenceOnConstantInput(t *testing.T) {
	d := mustDetector(t, Config{
		Alpha:      0.2,
		Threshold:  3.0,
		WindowSize: 50,
		Epsilon:    1e-3,
	})

	anomalies := 0
	var last float64
	for i := 0; i < 200; i++ {
		c, err := d.Process(42.0)
		if err != nil {
			t.Fatal(err)
		}
		if c.IsAnomaly {
			anomalies++
		}
		last = c.Baseline
	}

	if math.Abs(last-42.0) > epsilon {
		t.Errorf("Baseline = %v, want 42.0", last)
	}
	// Constant input yields zero deviations, so the spread stays at zero.
	if d.Spread() != 0 {
		t.Errorf("Spread = %v, want exactly 0", d.Spread())
	}
	if anomalies != 0 {
		t.Errorf("constant input produced %d anomalies, want 0", anomalies)
	}
}

func TestProcess_HistoryBounded(t *testing.T) {
	d := mustDetector(t, Config{
		Alpha:      0.2,
		Threshold:  3.0,
		WindowSize: 5,
		Epsilon:    1e-3,
	})

	for i := 1; i <= 12; i++ {
		if _, err := d.Process(float64(i)); err != nil {
			t.Fatal(err)
		}
	}

	want := []float64{8, 9, 10, 11, 12}
	got := d.History()
	if len(got) != len(want) {
		t.Fatalf("History() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("History()[%d] = %v, want %v (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestProcess_SpreadNeverNegative(t *testing.T) {
	d := mustDetector(t, DefaultConfig())
	values := []float64{5, -3, 120, 0, -88, 1000, -1000, 0.001, 42, 7}
	for i, v := range values {
		c, err := d.Process(v)
		if err != nil {
			t.Fatal(err)
		}
		if c.Spread < 0 {
			t.Fatalf("Spread = %v after sample %d (%v), want >= 0", c.Spread, i, v)
		}
	}
}

func TestProcess_MinSamplesWarmup(t *testing.T) {
	d := mustDetector(t, Config{
		Alpha:      0.2,
		Threshold:  3.0,
		WindowSize: 50,
		Epsilon:    1e-3,
		MinSamples: 3,
	})

	for i := 0; i < 2; i++ {
		if _, err := d.Process(10.0); err != nil {
			t.Fatal(err)
		}
	}

	// Third sample: only 2 absorbed so far, flagging still suppressed even
	// though the score is far past the threshold.
	c, err := d.Process(100.0)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsAnomaly {
		t.Error("warmup must suppress flagging")
	}
	if c.ZScore <= 3.0 {
		t.Errorf("ZScore = %v, want far above threshold (suppression, not a low score)", c.ZScore)
	}
	// Statistics still updated through the warmup.
	if math.Abs(c.Baseline-28.0) > epsilon {
		t.Errorf("Baseline = %v, want 28.0 (stats must update during warmup)", c.Baseline)
	}

	// Fourth sample: warmup over, an extreme value flags normally.
	c, err = d.Process(1000.0)
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsAnomaly {
		t.Errorf("post-warmup spike not flagged (z = %v)", c.ZScore)
	}
}

func BenchmarkDetector_Process(b *testing.B) {
	d, err := New(DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = d.Process(float64(i % 100))
	}
}
