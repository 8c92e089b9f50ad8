//go:build race

package rhythm

const raceEnabled = true
