package series

import "fmt"

func ExampleStreaming() {
	var s Streaming
	for _, bpm := range []float64{118, 120, 122, 120} {
		s.Add(bpm)
	}

	r := s.Result()
	fmt.Printf("n=%d mean=%.1f std=%.3f range=%.1f\n", s.Len(), r.Mean, r.StdDev, r.Range)
	// Output:
	// n=4 mean=120.0 std=1.414 range=4.0
}
