// Package rhythm estimates tempo, beat phase and bar phase from a stream of
// magnitude spectra in real time.
//
// A [Pipeline] combines three stages, each available on its own:
//
//   - [novelty.Curve] turns spectrum frames into an onset-strength history,
//   - [tempo.Estimator] finds the dominant tempo in that history,
//   - [beat.Tracker] decodes the beat (and, at a quarter of the tempo, the
//     bar) grid from the history's peaks.
//
// Spectra are pushed at the hop rate with [Pipeline.PushSpectrum]; analysis
// runs at a lower rate with [Pipeline.Compute] or [Pipeline.Run].
package rhythm
