package anomaly

import "testing"

func TestGrade(t *testing.T) {
	tests := []struct {
		name      string
		z         float64
		threshold float64
		want      string
	}{
		{"just past threshold", 3.01, 3.0, SeverityWarning},
		{"halfway to critical", 3.5, 3.0, SeverityWarning},
		{"just below critical", 3.99, 3.0, SeverityWarning},
		{"at critical boundary", 4.0, 3.0, SeverityCritical},
		{"far past critical", 12.0, 3.0, SeverityCritical},
		{"custom threshold warning", 2.3, 2.0, SeverityWarning},
		{"custom threshold critical", 3.1, 2.0, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Grade(tt.z, tt.threshold); got != tt.want {
				t.Errorf("Grade(%v, %v) = %q, want %q", tt.z, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		baseline float64
		want     string
	}{
		{"above baseline", 150.0, 100.0, KindSpike},
		{"below baseline", 20.0, 100.0, KindDrop},
		{"at baseline", 100.0, 100.0, KindSpike},
		{"negative territory drop", -50.0, -10.0, KindDrop},
		{"negative territory spike", -2.0, -10.0, KindSpike},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.value, tt.baseline); got != tt.want {
				t.Errorf("Kind(%v, %v) = %q, want %q", tt.value, tt.baseline, got, tt.want)
			}
		})
	}
}
