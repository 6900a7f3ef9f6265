package stats

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    Summary
	}{
		{"empty", nil, Summary{}},
		{"single", []float64{0.5}, Summary{Count: 1, Mean: 0.5, Max: 0.5}},
		{"pair", []float64{1, 3}, Summary{Count: 2, Mean: 2, Variance: 2, StdDev: math.Sqrt2, Max: 3}},
		{"four", []float64{2, 4, 4, 6}, Summary{Count: 4, Mean: 4, Variance: 8.0 / 3, StdDev: math.Sqrt(8.0 / 3), Max: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.samples)
			if got.Count != tt.want.Count {
				t.Fatalf("Count = %d, want %d", got.Count, tt.want.Count)
			}
			for _, f := range []struct {
				field     string
				got, want float64
			}{
				{"Mean", got.Mean, tt.want.Mean},
				{"Variance", got.Variance, tt.want.Variance},
				{"StdDev", got.StdDev, tt.want.StdDev},
				{"Max", got.Max, tt.want.Max},
			} {
				if math.Abs(f.got-f.want) > 1e-12 {
					t.Errorf("%s = %v, want %v", f.field, f.got, f.want)
				}
			}
		})
	}
}

func TestStdDevMatchesVariance(t *testing.T) {
	s := Summarize([]float64{0.010, 0.020, 0.045, 0.003, 0.017})
	if math.Abs(s.StdDev*s.StdDev-s.Variance) > 1e-15 {
		t.Errorf("StdDev^2 = %v, Variance = %v", s.StdDev*s.StdDev, s.Variance)
	}
}

func TestMeanEmpty(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v", got)
	}
}
