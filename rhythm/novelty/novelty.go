// Package novelty computes a causal onset-strength (novelty) curve from a
// stream of magnitude spectra.
//
// Each call to [Curve.Update] log-compresses one spectrum frame, sums the
// half-wave rectified frame-to-frame increase over all bins (spectral flux),
// subtracts a trailing local average and stores the result in a fixed-size
// ring. Reads are normalised by the running maximum of the ring.
package novelty

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-rhythm/internal/ring"
)

// ErrInvalidConfig is wrapped by every configuration error of this package.
var ErrInvalidConfig = errors.New("novelty: invalid config")

// Config holds the novelty curve parameters.
type Config struct {
	// Length is the number of history slots (hops) kept in the ring.
	Length int
	// Width is the number of magnitude bins per spectrum frame.
	Width int
	// LocalAverage is the trailing window, in hops, subtracted from each sample.
	LocalAverage int
	// Compression is the constant C in log2(1 + C*|X|).
	Compression float64
	// Epsilon floors the normaliser.
	Epsilon float64
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Length:       1024,
		Width:        512,
		LocalAverage: 16,
		Compression:  10,
		Epsilon:      1e-7,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Length < 2:
		return fmt.Errorf("%w: length must be >= 2: %d", ErrInvalidConfig, c.Length)
	case c.Width <= 0:
		return fmt.Errorf("%w: width must be > 0: %d", ErrInvalidConfig, c.Width)
	case c.LocalAverage <= 0 || c.LocalAverage > c.Length:
		return fmt.Errorf("%w: local average must be in [1, %d]: %d", ErrInvalidConfig, c.Length, c.LocalAverage)
	case !(c.Compression > 0) || math.IsInf(c.Compression, 0):
		return fmt.Errorf("%w: compression must be > 0: %f", ErrInvalidConfig, c.Compression)
	case !(c.Epsilon > 0) || math.IsInf(c.Epsilon, 0):
		return fmt.Errorf("%w: epsilon must be > 0: %g", ErrInvalidConfig, c.Epsilon)
	}
	return nil
}

type sample struct {
	raw      float64 // spectral flux
	filtered float64 // flux minus local average, floored at 0
	peak     float64 // filtered value if a local maximum, else 0
}

// Curve is the novelty history. It is not safe for concurrent use; callers
// sharing a Curve between a producer and a consumer must serialise access.
type Curve struct {
	cfg Config

	spectra [2][]float64
	prev    int

	hist *ring.Buffer[sample]
	max  float64

	scratch []Peak
}

// New returns a zeroed curve.
func New(cfg Config) (*Curve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hist, err := ring.New[sample](cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("novelty: %w", err)
	}

	c := &Curve{
		cfg:     cfg,
		hist:    hist,
		max:     cfg.Epsilon,
		scratch: make([]Peak, cfg.Length),
	}
	c.spectra[0] = make([]float64, cfg.Width)
	c.spectra[1] = make([]float64, cfg.Width)

	return c, nil
}

// Config returns the parameters the curve was built with.
func (c *Curve) Config() Config { return c.cfg }

// Len returns the history length.
func (c *Curve) Len() int { return c.hist.Len() }

// WritePos returns the physical slot of the next update, in [0, Len()).
func (c *Curve) WritePos() int { return c.hist.WritePos() }

// Hops returns the number of frames consumed since construction or Reset.
func (c *Curve) Hops() uint64 { return c.hist.Written() }

// Normalizer returns the running maximum used to normalise reads.
// It is never below the configured epsilon.
func (c *Curve) Normalizer() float64 { return c.max }

// Update consumes one magnitude frame. Frames shorter than the configured
// width are zero-extended; extra bins are ignored.
func (c *Curve) Update(frame []float64) {
	cur := 1 - c.prev
	logMag := c.spectra[cur]
	prevMag := c.spectra[c.prev]

	flux := 0.0
	for i := range logMag {
		x := 0.0
		if i < len(frame) {
			x = math.Abs(frame[i])
		}
		v := math.Log2(1 + c.cfg.Compression*x)
		logMag[i] = v
		if d := v - prevMag[i]; d > 0 {
			flux += d
		}
	}
	c.prev = cur

	c.hist.Write(sample{raw: flux})

	avg := 0.0
	for k := range c.cfg.LocalAverage {
		avg += c.hist.Back(k).raw
	}
	avg /= float64(c.cfg.LocalAverage)

	c.hist.Ref(c.hist.Len() - 1).filtered = math.Max(flux-avg, 0)

	c.scan()
}

// scan recomputes the normaliser and the peak table over the whole ring.
func (c *Curve) scan() {
	n := c.hist.Len()
	c.max = c.cfg.Epsilon

	for i := range n {
		s := c.hist.Ref(i)
		v := s.filtered
		if v > c.max {
			c.max = v
		}

		left := c.hist.At((i + n - 1) % n).filtered
		right := c.hist.At((i + 1) % n).filtered
		if v >= left && v > right {
			s.peak = v
		} else {
			s.peak = 0
		}
	}
}

// Read returns the normalised peak-filtered value at offset i from the
// write pointer (0 is the oldest hop). Offsets outside [0, Len()) return 0.
func (c *Curve) Read(i int) float64 {
	if i < 0 || i >= c.hist.Len() {
		return 0
	}
	return c.hist.At(i).filtered / c.max
}

// ReadPeak returns the normalised peak value at offset i, 0 where the curve
// has no local maximum or i is out of range.
func (c *Curve) ReadPeak(i int) float64 {
	if i < 0 || i >= c.hist.Len() {
		return 0
	}
	return c.hist.At(i).peak / c.max
}

// ReadRaw returns the unnormalised spectral flux at offset i.
func (c *Curve) ReadRaw(i int) float64 {
	return c.hist.At(i).raw
}

// ReadAll writes the normalised curve, oldest first, into dst and returns
// the number of values written.
func (c *Curve) ReadAll(dst []float64) int {
	n := min(len(dst), c.hist.Len())
	for i := range n {
		dst[i] = c.hist.At(i).filtered / c.max
	}
	return n
}

// Peaks fills set with the n strongest peaks, normalised, presented in the
// requested order. Equal strengths keep chronological order. n is clamped
// to the history length and the set capacity; the clamped count is returned.
//
// Slots without a local maximum take part in the selection with value 0, so
// the result always holds n entries with distinct indices.
func (c *Curve) Peaks(set *PeakSet, n int, order SortOrder) int {
	n = max(0, min(n, c.hist.Len(), set.Cap()))

	for i := range c.scratch {
		c.scratch[i] = Peak{Index: i, Value: c.hist.At(i).peak}
	}
	sortPeaks(c.scratch, ByValue)

	set.Reset()
	for _, p := range c.scratch[:n] {
		p.Value /= c.max
		set.Append(p)
	}

	if order == ByIndex {
		set.Sort(ByIndex)
	}

	return n
}

// Reset clears history and spectra.
func (c *Curve) Reset() {
	c.hist.Reset()
	clear(c.spectra[0])
	clear(c.spectra[1])
	c.prev = 0
	c.max = c.cfg.Epsilon
}
