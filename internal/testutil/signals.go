package testutil

import (
	"math"
	"math/rand"
)

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// ConstantFrame returns a magnitude frame with every bin set to level.
func ConstantFrame(width int, level float64) []float64 {
	out := make([]float64, width)
	for i := range out {
		out[i] = level
	}
	return out
}

// ClickHops marks the hops of a click train: hop round(k*period) is true for
// every k >= 0 that falls inside [0, hops).
func ClickHops(hops int, period float64) []bool {
	out := make([]bool, hops)
	if !(period > 0) {
		return out
	}
	for k := 0; ; k++ {
		h := int(math.Round(float64(k) * period))
		if h >= hops {
			break
		}
		out[h] = true
	}
	return out
}

// ClickTrain returns a time-domain metronome: a short decaying noise burst
// every 60/bpm seconds, starting at sample 0.
func ClickTrain(sampleRate, bpm, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	period := sampleRate * 60 / bpm
	burst := int(sampleRate * 0.01)
	noise := DeterministicNoise(7, amplitude, burst)
	for k := 0; ; k++ {
		start := int(math.Round(float64(k) * period))
		if start >= length {
			break
		}
		for i := 0; i < burst && start+i < length; i++ {
			out[start+i] = noise[i] * math.Exp(-5*float64(i)/float64(burst))
		}
	}
	return out
}
