// Package tempo estimates the dominant tempo of a novelty curve from its
// Fourier spectrum.
//
// The whole novelty history is transformed with a forward FFT. Candidate bins
// around a target tempo are weighted with a log-normal kernel over the beat
// period, the strongest weighted bin is refined by parabolic interpolation and
// converted to BPM.
package tempo

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// ErrInvalidConfig is wrapped by every configuration error of this package.
var ErrInvalidConfig = errors.New("tempo: invalid config")

// Source is a normalised novelty history, oldest value at offset 0.
type Source interface {
	Len() int
	Read(i int) float64
}

// Config holds the estimator parameters.
type Config struct {
	// Length is the transform length; it must match the novelty history.
	Length int
	// SampleRate is the audio sample rate in Hz.
	SampleRate float64
	// HopLength is the number of audio samples per novelty hop.
	HopLength int
	// BinDivisor divides the bin spacing:
	// Hz per bin = SampleRate / (HopLength * Length * BinDivisor).
	BinDivisor float64
	// KernelWidth is the standard deviation of the log-period weighting.
	KernelWidth float64
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Length:      1024,
		SampleRate:  44000,
		HopLength:   512,
		BinDivisor:  4,
		KernelWidth: 0.4,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Length < 4 || c.Length&(c.Length-1) != 0:
		return fmt.Errorf("%w: length must be a power of two >= 4: %d", ErrInvalidConfig, c.Length)
	case !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0):
		return fmt.Errorf("%w: sample rate must be > 0: %f", ErrInvalidConfig, c.SampleRate)
	case c.HopLength <= 0:
		return fmt.Errorf("%w: hop length must be > 0: %d", ErrInvalidConfig, c.HopLength)
	case !(c.BinDivisor > 0) || math.IsInf(c.BinDivisor, 0):
		return fmt.Errorf("%w: bin divisor must be > 0: %f", ErrInvalidConfig, c.BinDivisor)
	case !(c.KernelWidth > 0) || math.IsInf(c.KernelWidth, 0):
		return fmt.Errorf("%w: kernel width must be > 0: %f", ErrInvalidConfig, c.KernelWidth)
	}
	return nil
}

// Estimator owns the FFT plan and all scratch memory; Load and Compute do
// not allocate.
type Estimator struct {
	cfg  Config
	plan *algofft.Plan[complex128]

	in  []complex128
	out []complex128

	re, im []float64
	mag    []float64 // first Length/2 bins

	binHz  float64
	binBPM float64
}

// New builds an estimator and its FFT plan.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	plan, err := algofft.NewPlan64(cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("tempo: failed to create FFT plan: %w", err)
	}

	half := cfg.Length / 2
	binHz := cfg.SampleRate / (float64(cfg.HopLength) * float64(cfg.Length) * cfg.BinDivisor)

	return &Estimator{
		cfg:    cfg,
		plan:   plan,
		in:     make([]complex128, cfg.Length),
		out:    make([]complex128, cfg.Length),
		re:     make([]float64, half),
		im:     make([]float64, half),
		mag:    make([]float64, half),
		binHz:  binHz,
		binBPM: binHz * 60,
	}, nil
}

// Config returns the estimator parameters.
func (e *Estimator) Config() Config { return e.cfg }

// Bins returns the number of magnitude bins (half the transform length).
func (e *Estimator) Bins() int { return len(e.mag) }

// ResolutionHz returns the spacing of adjacent bins in Hz.
func (e *Estimator) ResolutionHz() float64 { return e.binHz }

// ResolutionBPM returns the spacing of adjacent bins in BPM.
func (e *Estimator) ResolutionBPM() float64 { return e.binBPM }

// Load copies the novelty history into the transform input. Offsets beyond
// src.Len() are zero-padded.
func (e *Estimator) Load(src Source) {
	n := min(src.Len(), len(e.in))
	for i := range n {
		e.in[i] = complex(src.Read(i), 0)
	}
	clear(e.in[n:])
}

// LoadSlice copies oldest-first novelty values into the transform input.
func (e *Estimator) LoadSlice(values []float64) {
	n := min(len(values), len(e.in))
	for i, v := range values[:n] {
		e.in[i] = complex(v, 0)
	}
	clear(e.in[n:])
}

// Compute transforms the loaded history and updates the magnitude spectrum.
// On transform failure the spectrum is cleared, so BPM falls back to its
// center argument.
func (e *Estimator) Compute() error {
	if err := e.plan.Forward(e.out, e.in); err != nil {
		clear(e.mag)
		return fmt.Errorf("tempo: forward transform: %w", err)
	}

	for i := range e.mag {
		e.re[i] = real(e.out[i])
		e.im[i] = imag(e.out[i])
	}
	vecmath.Magnitude(e.mag, e.re, e.im)

	return nil
}

// Magnitude returns the raw magnitude of bin i, 0 outside [0, Bins()).
func (e *Estimator) Magnitude(i int) float64 {
	if i < 0 || i >= len(e.mag) {
		return 0
	}
	return e.mag[i]
}

// Spectrum writes the magnitude spectrum normalised to its maximum into dst
// and returns the number of bins written.
func (e *Estimator) Spectrum(dst []float64) int {
	n := min(len(dst), len(e.mag))
	peak := 0.0
	for _, v := range e.mag {
		peak = math.Max(peak, v)
	}
	if peak == 0 {
		clear(dst[:n])
		return n
	}
	scale := 1 / peak
	for i := range n {
		dst[i] = e.mag[i] * scale
	}
	return n
}

// PeakBin returns the bin with the largest kernel-weighted magnitude among
// the bins covering [center/2, 2*center) BPM. It returns 0 when no bin has
// positive weighted magnitude.
func (e *Estimator) PeakBin(centerBPM float64) int {
	if !(centerBPM > 0) || math.IsInf(centerBPM, 0) {
		return 0
	}

	bottom := max(int((centerBPM/2)/e.binBPM), 1)
	top := int(math.Min(centerBPM*2/e.binBPM, float64(len(e.mag))))

	best := 0.0
	bestBin := 0
	for i := bottom; i < top; i++ {
		w := e.weight(i, centerBPM) * e.mag[i]
		if w > best {
			best = w
			bestBin = i
		}
	}

	return bestBin
}

// weight is the log-normal period kernel: 1 when bin i matches the center
// tempo, falling off with the log ratio of the two beat periods.
func (e *Estimator) weight(i int, centerBPM float64) float64 {
	period := 1 / (float64(i) * e.binBPM)
	x := math.Log(period*centerBPM) / e.cfg.KernelWidth
	return math.Exp(-0.5 * x * x)
}

// Interpolate refines bin k with a parabola through its neighbours and
// returns the fractional bin position. Neighbours wrap around the spectrum.
func (e *Estimator) Interpolate(k int) float64 {
	n := len(e.mag)
	if k < 0 || k >= n {
		return math.NaN()
	}

	y1 := e.mag[(k+n-1)%n]
	y2 := e.mag[k]
	y3 := e.mag[(k+1)%n]
	delta := (y3 - y1) / (2 * (2*y2 - y1 - y3))

	return float64(k) + delta
}

// BPM returns the refined tempo near centerBPM. Non-finite or non-positive
// results fall back to centerBPM.
func (e *Estimator) BPM(centerBPM float64) float64 {
	bpm := e.Interpolate(e.PeakBin(centerBPM)) * e.binBPM
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm <= 0 {
		return centerBPM
	}
	return bpm
}
