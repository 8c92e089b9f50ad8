package stft

import (
	"fmt"
	"math"
)

func ExampleAnalyzer() {
	a, err := New(Config{WindowLength: 256, Step: 256})
	if err != nil {
		fmt.Println(err)
		return
	}

	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 0.5 * math.Cos(2*math.Pi*8*float64(i)/256)
	}

	a.Write(samples)
	if a.Available() {
		frame := make([]float64, a.Bins())
		a.Read(frame)
		fmt.Printf("bins=%d peak=%.2f\n", len(frame), frame[8])
	}
	// Output:
	// bins=128 peak=0.50
}
