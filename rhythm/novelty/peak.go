package novelty

import (
	"cmp"
	"slices"
)

// SortOrder selects how a PeakSet presents its peaks.
type SortOrder int

const (
	// ByValue orders peaks by descending strength.
	ByValue SortOrder = iota
	// ByIndex orders peaks chronologically (ascending buffer offset).
	ByIndex
)

// String returns the order name.
func (o SortOrder) String() string {
	switch o {
	case ByValue:
		return "value"
	case ByIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Peak is a local maximum of the peak-filtered novelty curve.
// Index is the offset from the write pointer (0 is the oldest sample).
type Peak struct {
	Index int
	Value float64
}

// PeakSet is a bounded peak collection backed by one array allocated at
// construction. Sorting reorders that array in place and never allocates.
type PeakSet struct {
	peaks []Peak
	n     int
}

// NewPeakSet returns an empty set holding at most capacity peaks.
func NewPeakSet(capacity int) *PeakSet {
	if capacity < 0 {
		capacity = 0
	}
	return &PeakSet{peaks: make([]Peak, capacity)}
}

// Len returns the number of stored peaks.
func (s *PeakSet) Len() int { return s.n }

// Cap returns the fixed capacity.
func (s *PeakSet) Cap() int { return len(s.peaks) }

// At returns peak i, or the zero Peak if i is out of range.
func (s *PeakSet) At(i int) Peak {
	if i < 0 || i >= s.n {
		return Peak{}
	}
	return s.peaks[i]
}

// Peaks returns a view of the stored peaks. The view is invalidated by the
// next mutation of the set.
func (s *PeakSet) Peaks() []Peak { return s.peaks[:s.n] }

// Append adds p and reports whether there was room.
func (s *PeakSet) Append(p Peak) bool {
	if s.n >= len(s.peaks) {
		return false
	}
	s.peaks[s.n] = p
	s.n++
	return true
}

// Reset empties the set without releasing storage.
func (s *PeakSet) Reset() {
	clear(s.peaks[:s.n])
	s.n = 0
}

// Sort reorders the stored peaks. Equal keys keep their current order.
func (s *PeakSet) Sort(order SortOrder) {
	sortPeaks(s.peaks[:s.n], order)
}

func sortPeaks(p []Peak, order SortOrder) {
	if order == ByIndex {
		slices.SortStableFunc(p, compareIndex)
		return
	}
	slices.SortStableFunc(p, compareValue)
}

func compareValue(a, b Peak) int { return cmp.Compare(b.Value, a.Value) }

func compareIndex(a, b Peak) int { return cmp.Compare(a.Index, b.Index) }
