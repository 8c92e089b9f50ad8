package stft

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-rhythm/dsp/window"
	"github.com/cwbudde/algo-rhythm/internal/testutil"
)

func newAnalyzer(t *testing.T, cfg Config) *Analyzer {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

// drain feeds samples and returns a copy of every completed frame.
func drain(a *Analyzer, samples []float64) [][]float64 {
	var frames [][]float64
	for len(samples) > 0 {
		n := a.Write(samples)
		samples = samples[n:]
		if a.Available() {
			f := make([]float64, a.Bins())
			a.Read(f)
			frames = append(frames, f)
		}
	}
	return frames
}

func sine(bin, length, windowLength int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * float64(bin) * float64(i) / float64(windowLength))
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []Config{
		{WindowLength: 128, Step: 128},
		{WindowLength: 1000, Step: 500},
		{WindowLength: 8192, Step: 512},
		{WindowLength: 1024, Step: 128},
		{WindowLength: 1024, Step: 2048},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%+v: Validate() = %v, want ErrInvalidConfig", cfg, err)
		}
		if _, err := New(cfg); err == nil {
			t.Fatalf("%+v: New() accepted invalid config", cfg)
		}
	}
}

func TestWriteStopsAtFrameBoundary(t *testing.T) {
	a := newAnalyzer(t, Config{WindowLength: 512, Step: 256, Window: window.TypeHann})

	if n := a.Write(make([]float64, 100)); n != 100 {
		t.Fatalf("Write(100) = %d, want 100", n)
	}
	if a.Available() {
		t.Fatal("frame available before a full step")
	}

	if n := a.Write(make([]float64, 300)); n != 156 {
		t.Fatalf("Write(300) = %d, want 156", n)
	}
	if !a.Available() {
		t.Fatal("frame not available after a full step")
	}
	if a.Available() {
		t.Fatal("Available() did not clear")
	}
	if a.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", a.Frames())
	}
}

func TestSineMagnitude(t *testing.T) {
	cfg := Config{WindowLength: 256, Step: 256, Window: window.TypeHann}
	a := newAnalyzer(t, cfg)

	frames := drain(a, sine(16, 512, 256))
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	last := frames[1]
	if len(last) != 128 {
		t.Fatalf("bins = %d, want 128", len(last))
	}

	testutil.RequireNearlyEqual(t, "bin 16", last[16], 1, 1e-9)
	testutil.RequireNearlyEqual(t, "bin 15", last[15], 0.5, 1e-9)
	testutil.RequireNearlyEqual(t, "bin 17", last[17], 0.5, 1e-9)
	for k, v := range last {
		if k >= 15 && k <= 17 {
			continue
		}
		if v > 1e-9 {
			t.Fatalf("bin %d = %v, want 0", k, v)
		}
	}
}

func TestRectangularWindowGain(t *testing.T) {
	a := newAnalyzer(t, Config{WindowLength: 256, Step: 256, Window: window.TypeRectangular})
	frames := drain(a, sine(10, 256, 256))
	testutil.RequireNearlyEqual(t, "bin 10", frames[0][10], 1, 1e-9)
}

func TestReset(t *testing.T) {
	a := newAnalyzer(t, Config{WindowLength: 256, Step: 256, Window: window.TypeHann})
	drain(a, sine(16, 512, 256))
	a.Reset()

	if a.Frames() != 0 || a.Available() {
		t.Fatalf("after Reset: frames=%d", a.Frames())
	}
	f := make([]float64, a.Bins())
	a.Read(f)
	for k, v := range f {
		if v != 0 {
			t.Fatalf("after Reset: bin %d = %v", k, v)
		}
	}
}
