package testutil

import "testing"

func TestRequireHelpersAcceptMatchingData(t *testing.T) {
	RequireNearlyEqual(t, "x", 1.0, 1.0+1e-12, 1e-9)
	RequireSliceNearlyEqual(t, []float64{1, 2}, []float64{1, 2 + 1e-12}, 1e-9)
	RequireFinite(t, []float64{0, -1, 1e300})
	RequireUnitRange(t, []float64{0, 0.5, 1})
}
