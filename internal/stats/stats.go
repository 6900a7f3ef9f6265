// Package stats summarizes timing samples.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a sample list. Variance and StdDev both use the
// unbiased (n-1) denominator and are 0 for fewer than two samples.
type Summary struct {
	Count    int
	Mean     float64
	StdDev   float64
	Variance float64
	Max      float64
}

// Summarize returns the summary of samples; an empty list yields zeros.
func Summarize(samples []float64) Summary {
	s := Summary{Count: len(samples)}
	switch len(samples) {
	case 0:
		return s
	case 1:
		s.Mean = samples[0]
		s.Max = samples[0]
		return s
	}
	s.Mean, s.Variance = stat.MeanVariance(samples, nil)
	s.StdDev = math.Sqrt(s.Variance)
	s.Max = floats.Max(samples)
	return s
}

// Mean is the arithmetic mean of samples, 0 when empty.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}
