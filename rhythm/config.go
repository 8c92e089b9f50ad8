package rhythm

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/algo-rhythm/rhythm/beat"
	"github.com/cwbudde/algo-rhythm/rhythm/novelty"
	"github.com/cwbudde/algo-rhythm/rhythm/tempo"
)

const (
	minHistory = 64
	maxHistory = 8192
	minHop     = 16
	maxHop     = 8192
)

// Config holds every tunable of the pipeline. It is validated once by [New].
type Config struct {
	// HopLength is the number of audio samples between spectrum frames.
	HopLength int
	// SampleRate is the audio sample rate in Hz.
	SampleRate float64
	// HistoryLength is the novelty history in hops, a power of two.
	HistoryLength int
	// Bins is the spectrum frame width.
	Bins int

	LocalAverage   int
	LogCompression float64
	Epsilon        float64

	// DefaultBPM seeds the smoothed tempo and is reported before the first
	// compute cycle.
	DefaultBPM float64
	// CenterBPM centers the tempo search and is the fallback estimate.
	CenterBPM   float64
	KernelWidth float64
	BinDivisor  float64

	Tightness        float64
	MaxCandidates    int
	OnsetWeight      float64
	TempoWeight      float64
	ContinuityWeight float64
	RecursionWeight  float64
	BacklinkPenalty  float64
	PhaseBlend       float64
	SearchBeats      float64

	// Smoothing is the weight of a new raw estimate in the smoothed BPM.
	Smoothing float64
	// BarTracking enables the second tracker running on the beat chain at a
	// quarter of the tempo.
	BarTracking bool

	// MockBPM, when > 0, bypasses analysis and reports this tempo.
	MockBPM float64
	// MockDelay is the simulated compute latency in mock mode.
	MockDelay time.Duration
}

// DefaultConfig returns the reference tuning for 44 kHz audio with 512-sample
// hops and 512-bin frames.
func DefaultConfig() Config {
	nc := novelty.DefaultConfig()
	tc := tempo.DefaultConfig()
	bc := beat.DefaultConfig()

	return Config{
		HopLength:        tc.HopLength,
		SampleRate:       tc.SampleRate,
		HistoryLength:    nc.Length,
		Bins:             nc.Width,
		LocalAverage:     nc.LocalAverage,
		LogCompression:   nc.Compression,
		Epsilon:          nc.Epsilon,
		DefaultBPM:       120,
		CenterBPM:        120,
		KernelWidth:      tc.KernelWidth,
		BinDivisor:       tc.BinDivisor,
		Tightness:        bc.Tightness,
		MaxCandidates:    bc.MaxCandidates,
		OnsetWeight:      bc.OnsetWeight,
		TempoWeight:      bc.TempoWeight,
		ContinuityWeight: bc.ContinuityWeight,
		RecursionWeight:  bc.RecursionWeight,
		BacklinkPenalty:  bc.BacklinkPenalty,
		PhaseBlend:       bc.PhaseBlend,
		SearchBeats:      bc.SearchBeats,
		Smoothing:        0.1,
		BarTracking:      true,
		MockDelay:        5 * time.Millisecond,
	}
}

// Validate checks all fields, including those validated again by the
// component packages, and reports the first problem.
func (c Config) Validate() error {
	if c.HistoryLength < minHistory || c.HistoryLength > maxHistory || c.HistoryLength&(c.HistoryLength-1) != 0 {
		return fmt.Errorf("%w: history length must be a power of two in [%d, %d]: %d",
			ErrInvalidConfig, minHistory, maxHistory, c.HistoryLength)
	}
	if c.HopLength < minHop || c.HopLength > maxHop {
		return fmt.Errorf("%w: hop length must be in [%d, %d]: %d", ErrInvalidConfig, minHop, maxHop, c.HopLength)
	}
	if c.Bins <= 0 {
		return fmt.Errorf("%w: bins must be > 0: %d", ErrInvalidConfig, c.Bins)
	}
	if c.MaxCandidates < 1 || c.MaxCandidates > c.HistoryLength {
		return fmt.Errorf("%w: max candidates must be in [1, %d]: %d", ErrInvalidConfig, c.HistoryLength, c.MaxCandidates)
	}

	positive := []struct {
		name string
		v    float64
	}{
		{"sample rate", c.SampleRate},
		{"default bpm", c.DefaultBPM},
		{"center bpm", c.CenterBPM},
	}
	for _, p := range positive {
		if !isPositive(p.v) {
			return fmt.Errorf("%w: %s must be > 0: %f", ErrInvalidConfig, p.name, p.v)
		}
	}

	if !(c.Smoothing >= 0 && c.Smoothing <= 1) {
		return fmt.Errorf("%w: smoothing must be in [0,1]: %f", ErrInvalidConfig, c.Smoothing)
	}
	if math.IsNaN(c.MockBPM) || math.IsInf(c.MockBPM, 0) || c.MockBPM < 0 {
		return fmt.Errorf("%w: mock bpm must be finite and >= 0: %f", ErrInvalidConfig, c.MockBPM)
	}
	if c.MockDelay < 0 {
		return fmt.Errorf("%w: mock delay must be >= 0: %v", ErrInvalidConfig, c.MockDelay)
	}

	if err := c.noveltyConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.tempoConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.beatConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Resolution returns the novelty rate in hops per second.
func (c Config) Resolution() float64 {
	return c.SampleRate / float64(c.HopLength)
}

func (c Config) noveltyConfig() novelty.Config {
	return novelty.Config{
		Length:       c.HistoryLength,
		Width:        c.Bins,
		LocalAverage: c.LocalAverage,
		Compression:  c.LogCompression,
		Epsilon:      c.Epsilon,
	}
}

func (c Config) tempoConfig() tempo.Config {
	return tempo.Config{
		Length:      c.HistoryLength,
		SampleRate:  c.SampleRate,
		HopLength:   c.HopLength,
		BinDivisor:  c.BinDivisor,
		KernelWidth: c.KernelWidth,
	}
}

func (c Config) beatConfig() beat.Config {
	return beat.Config{
		Length:           c.HistoryLength,
		MaxCandidates:    c.MaxCandidates,
		Tightness:        c.Tightness,
		OnsetWeight:      c.OnsetWeight,
		TempoWeight:      c.TempoWeight,
		ContinuityWeight: c.ContinuityWeight,
		RecursionWeight:  c.RecursionWeight,
		BacklinkPenalty:  c.BacklinkPenalty,
		PhaseBlend:       c.PhaseBlend,
		SearchBeats:      c.SearchBeats,
	}
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
