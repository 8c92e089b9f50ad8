package series

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-rhythm/internal/testutil"
)

const tolerance = 1e-10

func summarize(values []float64) Summary {
	var s Streaming
	for _, x := range values {
		s.Add(x)
	}
	return s.Result()
}

func TestEmpty(t *testing.T) {
	var s Streaming
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
	if got := s.Result(); got != (Summary{}) {
		t.Fatalf("Result() = %+v, want zero", got)
	}
}

func TestKnownValues(t *testing.T) {
	got := summarize([]float64{118, 120, 122, 120})

	if got.Count != 4 {
		t.Fatalf("Count = %d, want 4", got.Count)
	}
	testutil.RequireNearlyEqual(t, "Mean", got.Mean, 120, tolerance)
	testutil.RequireNearlyEqual(t, "Variance", got.Variance, 2, tolerance)
	testutil.RequireNearlyEqual(t, "StdDev", got.StdDev, math.Sqrt2, tolerance)
	testutil.RequireNearlyEqual(t, "Range", got.Range, 4, tolerance)
	if got.Min != 118 || got.MinPos != 0 {
		t.Fatalf("Min = %v at %d, want 118 at 0", got.Min, got.MinPos)
	}
	if got.Max != 122 || got.MaxPos != 2 {
		t.Fatalf("Max = %v at %d, want 122 at 2", got.Max, got.MaxPos)
	}
}

func TestMatchesTwoPassStatistics(t *testing.T) {
	data := testutil.DeterministicNoise(5, 3, 1000)
	for i := range data {
		data[i] += 120
	}

	mean := 0.0
	for _, x := range data {
		mean += x
	}
	mean /= float64(len(data))

	variance := 0.0
	for _, x := range data {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(data))

	got := summarize(data)
	if got.Count != len(data) {
		t.Fatalf("Count = %d, want %d", got.Count, len(data))
	}
	testutil.RequireNearlyEqual(t, "Mean", got.Mean, mean, tolerance)
	testutil.RequireNearlyEqual(t, "Variance", got.Variance, variance, 1e-9)
}

func TestSingleValue(t *testing.T) {
	got := summarize([]float64{-5})
	if got.Min != -5 || got.Max != -5 || got.Variance != 0 || got.Range != 0 {
		t.Fatalf("single value: %+v", got)
	}
}
