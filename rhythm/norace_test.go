//go:build !race

package rhythm

const raceEnabled = false
