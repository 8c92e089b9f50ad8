// Package series summarises a track of values, such as the tempo reported
// by successive compute cycles, one value at a time.
package series

import "math"

// Summary holds statistics of a value track.
type Summary struct {
	Count    int
	Mean     float64
	Variance float64 // population variance
	StdDev   float64
	Min      float64
	MinPos   int
	Max      float64
	MaxPos   int
	Range    float64 // max - min
}

// Streaming accumulates a Summary incrementally using Welford's online
// algorithm. The zero value is ready to use.
type Streaming struct {
	n      int
	mean   float64
	m2     float64
	maxVal float64
	maxPos int
	minVal float64
	minPos int
}

// Add appends one value.
func (s *Streaming) Add(x float64) {
	s.n++

	delta := x - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (x - s.mean)

	if s.n == 1 || x > s.maxVal {
		s.maxVal = x
		s.maxPos = s.n - 1
	}
	if s.n == 1 || x < s.minVal {
		s.minVal = x
		s.minPos = s.n - 1
	}
}

// Len returns the number of values added.
func (s *Streaming) Len() int { return s.n }

// Result computes the statistics of all values added so far. An empty
// track yields a zero Summary.
func (s *Streaming) Result() Summary {
	if s.n == 0 {
		return Summary{}
	}

	variance := s.m2 / float64(s.n)

	return Summary{
		Count:    s.n,
		Mean:     s.mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Min:      s.minVal,
		MinPos:   s.minPos,
		Max:      s.maxVal,
		MaxPos:   s.maxPos,
		Range:    s.maxVal - s.minVal,
	}
}
