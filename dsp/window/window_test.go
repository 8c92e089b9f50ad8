package window

import (
	"math"
	"testing"
)

func TestGenerateFinite(t *testing.T) {
	for _, typ := range []Type{TypeRectangular, TypeHann, TypeHamming, TypeBlackman} {
		t.Run(typ.String(), func(t *testing.T) {
			w := Generate(typ, 64)
			if len(w) != 64 {
				t.Fatalf("len=%d, want 64", len(w))
			}

			for i, v := range w {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("coefficient[%d] invalid: %v", i, v)
				}
				if v < -1e-12 || v > 1+1e-12 {
					t.Fatalf("coefficient[%d] = %v outside [0, 1]", i, v)
				}
			}
		})
	}
}

func TestGenerateEmpty(t *testing.T) {
	if w := Generate(TypeHann, 0); w != nil {
		t.Fatalf("Generate(0) = %v, want nil", w)
	}
	if w := Generate(TypeHann, -1); w != nil {
		t.Fatalf("Generate(-1) = %v, want nil", w)
	}
}

func TestSymmetricHannEndpoints(t *testing.T) {
	w := Generate(TypeHann, 17)
	if math.Abs(w[0]) > 1e-15 || math.Abs(w[16]) > 1e-15 {
		t.Fatalf("endpoints = %v %v, want 0", w[0], w[16])
	}
	if math.Abs(w[8]-1) > 1e-15 {
		t.Fatalf("center = %v, want 1", w[8])
	}
	for i := range w {
		if math.Abs(w[i]-w[16-i]) > 1e-12 {
			t.Fatalf("not symmetric at %d: %v vs %v", i, w[i], w[16-i])
		}
	}
}

func TestPeriodicDiffersFromSymmetric(t *testing.T) {
	a := Generate(TypeHann, 16)
	b := Generate(TypeHann, 16, WithPeriodic())

	if math.Abs(b[8]-1) > 1e-15 {
		t.Fatalf("periodic center = %v, want 1", b[8])
	}
	if math.Abs(a[8]-b[8]) < 1e-6 {
		t.Fatalf("periodic and symmetric windows match at 8: %v", a[8])
	}
}

func TestApplyCoefficientsInPlace(t *testing.T) {
	buf := []float64{2, 2, 2, 2, 2, 2, 2, 2}
	w := Generate(TypeHamming, 8)
	if err := ApplyCoefficientsInPlace(buf, w); err != nil {
		t.Fatalf("ApplyCoefficientsInPlace() error = %v", err)
	}

	for i := range buf {
		if math.Abs(buf[i]-2*w[i]) > 1e-12 {
			t.Fatalf("buf[%d] = %v, want %v", i, buf[i], 2*w[i])
		}
	}

	if err := ApplyCoefficientsInPlace(buf, w[:4]); err == nil {
		t.Fatal("mismatched lengths accepted")
	}
}

func TestCoherentGain(t *testing.T) {
	g, err := CoherentGain(Generate(TypeHann, 1024, WithPeriodic()))
	if err != nil {
		t.Fatalf("CoherentGain() error = %v", err)
	}
	if math.Abs(g-0.5) > 1e-12 {
		t.Fatalf("periodic Hann gain = %v, want 0.5", g)
	}

	if _, err := CoherentGain(nil); err == nil {
		t.Fatal("empty coefficients accepted")
	}
	if _, err := CoherentGain([]float64{1, -1}); err == nil {
		t.Fatal("zero gain accepted")
	}
}

func TestParse(t *testing.T) {
	for _, typ := range []Type{TypeRectangular, TypeHann, TypeHamming, TypeBlackman} {
		got, err := Parse(" " + typ.String() + " ")
		if err != nil || got != typ {
			t.Fatalf("Parse(%q) = %v, %v", typ.String(), got, err)
		}
	}
	if got, err := Parse("HANN"); err != nil || got != TypeHann {
		t.Fatalf("Parse(HANN) = %v, %v", got, err)
	}
	if _, err := Parse("kaiser"); err == nil {
		t.Fatal("Parse(kaiser) error = nil")
	}
	if s := Type(42).String(); s != "Type(42)" {
		t.Fatalf("String() = %q", s)
	}
}
