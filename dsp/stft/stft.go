// Package stft turns a stream of audio samples into magnitude spectra, one
// frame every Step samples.
//
// The analyzer keeps the most recent WindowLength samples, applies the
// analysis window and transforms them with a forward FFT. Magnitudes are
// scaled so a full-scale sinusoid centred on a bin reads 1.
package stft

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-rhythm/dsp/window"
	"github.com/cwbudde/algo-rhythm/internal/ring"
)

const (
	minWindow = 128
	maxWindow = 4096
	minStep   = 128
)

// ErrInvalidConfig is wrapped by every configuration error of this package.
var ErrInvalidConfig = errors.New("stft: invalid config")

// Config holds analyzer parameters.
type Config struct {
	// WindowLength is the frame length, a power of two in (128, 4096].
	WindowLength int
	// Step is the hop between frames in samples, in (128, WindowLength].
	Step int
	// Window is the analysis window; it is generated in periodic form.
	Window window.Type
}

// DefaultConfig returns 1024-sample Hann frames every 512 samples.
func DefaultConfig() Config {
	return Config{
		WindowLength: 1024,
		Step:         512,
		Window:       window.TypeHann,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.WindowLength <= minWindow || c.WindowLength > maxWindow || c.WindowLength&(c.WindowLength-1) != 0:
		return fmt.Errorf("%w: window length must be a power of two in (%d, %d]: %d",
			ErrInvalidConfig, minWindow, maxWindow, c.WindowLength)
	case c.Step <= minStep || c.Step > c.WindowLength:
		return fmt.Errorf("%w: step must be in (%d, %d]: %d", ErrInvalidConfig, minStep, c.WindowLength, c.Step)
	}
	return nil
}

// Analyzer is a streaming short-time Fourier transform. It is not safe for
// concurrent use.
type Analyzer struct {
	cfg  Config
	plan *algofft.Plan[complex128]

	hist    *ring.Buffer[float64]
	pending int

	coeffs []float64
	frame  []float64
	in     []complex128
	out    []complex128
	re, im []float64
	mag    []float64
	scale  float64

	ready  bool
	frames uint64
}

// New builds an analyzer and its FFT plan.
func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	plan, err := algofft.NewPlan64(cfg.WindowLength)
	if err != nil {
		return nil, fmt.Errorf("stft: failed to create FFT plan: %w", err)
	}

	hist, err := ring.New[float64](cfg.WindowLength)
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}

	coeffs := window.Generate(cfg.Window, cfg.WindowLength, window.WithPeriodic())
	gain, err := window.CoherentGain(coeffs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s window: %w", ErrInvalidConfig, cfg.Window, err)
	}

	bins := cfg.WindowLength / 2

	return &Analyzer{
		cfg:    cfg,
		plan:   plan,
		hist:   hist,
		coeffs: coeffs,
		frame:  make([]float64, cfg.WindowLength),
		in:     make([]complex128, cfg.WindowLength),
		out:    make([]complex128, cfg.WindowLength),
		re:     make([]float64, bins),
		im:     make([]float64, bins),
		mag:    make([]float64, bins),
		scale:  2 / (float64(cfg.WindowLength) * gain),
	}, nil
}

// Config returns the analyzer parameters.
func (a *Analyzer) Config() Config { return a.cfg }

// Bins returns the number of magnitude bins per frame.
func (a *Analyzer) Bins() int { return len(a.mag) }

// Frames returns the number of frames produced since construction or Reset.
func (a *Analyzer) Frames() uint64 { return a.frames }

// Write consumes samples until a frame completes or samples run out and
// returns the number consumed. Callers feed the remainder after handling
// the frame; an unread frame is replaced by the next one.
func (a *Analyzer) Write(samples []float64) int {
	for i, s := range samples {
		a.hist.Write(s)
		a.pending++
		if a.pending == a.cfg.Step {
			a.pending = 0
			if err := a.transform(); err == nil {
				a.ready = true
				a.frames++
			}
			return i + 1
		}
	}
	return len(samples)
}

func (a *Analyzer) transform() error {
	a.hist.CopyTo(a.frame)
	if err := window.ApplyCoefficientsInPlace(a.frame, a.coeffs); err != nil {
		return err
	}

	for i, v := range a.frame {
		a.in[i] = complex(v, 0)
	}
	if err := a.plan.Forward(a.out, a.in); err != nil {
		return fmt.Errorf("stft: forward transform: %w", err)
	}

	for i := range a.mag {
		a.re[i] = real(a.out[i]) * a.scale
		a.im[i] = imag(a.out[i]) * a.scale
	}
	vecmath.Magnitude(a.mag, a.re, a.im)

	return nil
}

// Available reports whether a frame completed since the last call, and
// clears the flag.
func (a *Analyzer) Available() bool {
	r := a.ready
	a.ready = false
	return r
}

// Read copies the latest magnitude frame into dst and returns the number of
// bins written.
func (a *Analyzer) Read(dst []float64) int {
	return copy(dst, a.mag)
}

// Reset clears the sample history and the last frame.
func (a *Analyzer) Reset() {
	a.hist.Reset()
	a.pending = 0
	clear(a.mag)
	a.ready = false
	a.frames = 0
}
