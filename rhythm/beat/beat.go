// Package beat tracks beat phase with a causal dynamic-programming decoder
// over novelty peaks.
//
// Every call to [Tracker.Track] links each candidate onset to the earlier
// candidate that maximises a score combining the candidate's onset strength,
// agreement of the gap with the beat period, phase continuity with the
// dead-reckoned previous beat, and the predecessor's own score. The best
// recent candidate anchors the beat grid; the anchor and the call time are
// the only state carried between calls.
package beat

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/algo-rhythm/rhythm/novelty"
)

// NoBacklink marks a candidate that starts its own chain.
const NoBacklink = -1

// ErrInvalidConfig is wrapped by every configuration error of this package.
var ErrInvalidConfig = errors.New("beat: invalid config")

// Config holds tracker parameters.
type Config struct {
	// Length is the novelty buffer length that candidate indices refer to.
	Length int
	// MaxCandidates bounds the number of candidates per call.
	MaxCandidates int
	// Tightness is the inverse standard deviation, in 1/s, of the tempo kernel.
	Tightness float64

	OnsetWeight      float64
	TempoWeight      float64
	ContinuityWeight float64
	RecursionWeight  float64
	// BacklinkPenalty divides a predecessor's score by 1 + penalty*depth.
	BacklinkPenalty float64

	// PhaseBlend weights the observed beat against the dead-reckoned one
	// when moving the anchor: 1 trusts the observation only.
	PhaseBlend float64
	// SearchBeats is the trailing window, in beat periods, searched for the
	// current beat.
	SearchBeats float64
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Length:           1024,
		MaxCandidates:    256,
		Tightness:        1000,
		OnsetWeight:      1,
		TempoWeight:      5,
		ContinuityWeight: 5,
		RecursionWeight:  1,
		BacklinkPenalty:  2,
		PhaseBlend:       1,
		SearchBeats:      8,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Length <= 0 {
		return fmt.Errorf("%w: length must be > 0: %d", ErrInvalidConfig, c.Length)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("%w: max candidates must be > 0: %d", ErrInvalidConfig, c.MaxCandidates)
	}
	if !(c.Tightness > 0) || math.IsInf(c.Tightness, 0) {
		return fmt.Errorf("%w: tightness must be > 0: %f", ErrInvalidConfig, c.Tightness)
	}

	weights := []struct {
		name string
		v    float64
	}{
		{"onset weight", c.OnsetWeight},
		{"tempo weight", c.TempoWeight},
		{"continuity weight", c.ContinuityWeight},
		{"recursion weight", c.RecursionWeight},
		{"backlink penalty", c.BacklinkPenalty},
	}
	for _, w := range weights {
		if !(w.v >= 0) || math.IsInf(w.v, 0) {
			return fmt.Errorf("%w: %s must be finite and >= 0: %f", ErrInvalidConfig, w.name, w.v)
		}
	}

	if !(c.PhaseBlend >= 0 && c.PhaseBlend <= 1) {
		return fmt.Errorf("%w: phase blend must be in [0,1]: %f", ErrInvalidConfig, c.PhaseBlend)
	}
	if !(c.SearchBeats > 0) || math.IsInf(c.SearchBeats, 0) {
		return fmt.Errorf("%w: search beats must be > 0: %f", ErrInvalidConfig, c.SearchBeats)
	}
	return nil
}

// Result describes the outcome of one tracking call.
type Result struct {
	// ID is the selected candidate id, or NoBacklink when there was none.
	ID int
	// Beat is the selected candidate.
	Beat novelty.Peak
	// Score is the cumulative score of the selected candidate.
	Score float64
	// Anchor is the beat grid anchor in buffer coordinates.
	Anchor float64
	// Phase is the beat phase in [0, 1).
	Phase float64
}

// Found reports whether a beat was selected.
func (r Result) Found() bool { return r.ID != NoBacklink }

// Tracker is one beat-level (or bar-level) decoder. It is not safe for
// concurrent use.
type Tracker struct {
	cfg Config

	cands    []novelty.Peak
	score    []float64
	backlink []int
	depth    []int
	n        int
	selected int

	anchor    float64
	last      time.Duration
	hasAnchor bool
	phase     float64
}

// New allocates a tracker sized for cfg.MaxCandidates.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:      cfg,
		cands:    make([]novelty.Peak, cfg.MaxCandidates),
		score:    make([]float64, cfg.MaxCandidates),
		backlink: make([]int, cfg.MaxCandidates),
		depth:    make([]int, cfg.MaxCandidates),
	}
	t.Reset()

	return t, nil
}

// Config returns the tracker parameters.
func (t *Tracker) Config() Config { return t.cfg }

// Reset forgets the anchor and all candidates.
func (t *Tracker) Reset() {
	t.n = 0
	t.selected = NoBacklink
	t.anchor = float64(t.cfg.Length - 1)
	t.last = 0
	t.hasAnchor = false
	t.phase = 0.5
}

// Track decodes one set of candidates. cands must be in ascending index
// order; if there are more than MaxCandidates only the most recent are used.
// bpm is the tempo to track, resolution the number of novelty hops per
// second, and now a monotonic timestamp used to dead-reckon the previous
// anchor.
//
// Invalid bpm or resolution leave the tracker untouched and report the
// previous phase with no beat.
func (t *Tracker) Track(cands []novelty.Peak, bpm, resolution float64, now time.Duration) Result {
	if !(bpm > 0) || math.IsInf(bpm, 0) || !(resolution > 0) || math.IsInf(resolution, 0) {
		return Result{ID: NoBacklink, Anchor: t.anchor, Phase: t.phase}
	}

	if len(cands) > len(t.cands) {
		cands = cands[len(cands)-len(t.cands):]
	}
	t.n = copy(t.cands, cands)

	period := 60 / bpm
	beatSize := resolution * period

	expected := t.anchor
	if t.hasAnchor {
		expected -= (now - t.last).Seconds() * resolution
	}
	t.last = now

	t.decode(expected, beatSize, resolution, period)

	switch {
	case t.selected != NoBacklink:
		if !t.hasAnchor {
			expected = float64(t.cands[t.selected].Index)
		}
		obs := float64(t.cands[t.selected].Index)
		t.setAnchor((1-t.cfg.PhaseBlend)*expected+t.cfg.PhaseBlend*obs, beatSize, resolution, period)
		t.hasAnchor = true
	case t.hasAnchor:
		t.setAnchor(expected, beatSize, resolution, period)
	}

	return t.Result()
}

// decode fills the score, backlink and depth tables and picks the current beat.
func (t *Tracker) decode(expected, beatSize, resolution, period float64) {
	length := float64(t.cfg.Length)
	threshold := length - t.cfg.SearchBeats*beatSize
	window := 2 * beatSize

	t.selected = NoBacklink
	if t.n == 0 {
		return
	}

	best := 0.0
	lo := 0
	for i := range t.n {
		t.score[i] = 0
		t.backlink[i] = NoBacklink
		t.depth[i] = 0

		idx := t.cands[i].Index
		for lo < i && float64(idx-t.cands[lo].Index) > window {
			lo++
		}

		base := t.cfg.OnsetWeight*t.cands[i].Value +
			t.cfg.ContinuityWeight*t.continuity(idx, expected, beatSize)

		for j := lo; j < i; j++ {
			gap := idx - t.cands[j].Index
			if gap <= 0 {
				continue
			}
			s := base +
				t.cfg.TempoWeight*t.tempoAgreement(gap, resolution, period) +
				t.cfg.RecursionWeight*t.score[j]/(1+t.cfg.BacklinkPenalty*float64(t.depth[j]))
			if s > t.score[i] {
				t.score[i] = s
				t.backlink[i] = j
				t.depth[i] = t.depth[j] + 1
			}
		}

		if t.score[i] > best && float64(idx) > threshold {
			best = t.score[i]
			t.selected = i
		}
	}

	if t.selected == NoBacklink {
		t.selected = t.n - 1
	}
}

// tempoAgreement is a Gaussian over the difference between the gap and the
// beat period, both in seconds. It is 1 for an exact match.
func (t *Tracker) tempoAgreement(gap int, resolution, period float64) float64 {
	sigma := 1 / t.cfg.Tightness
	d := float64(gap)/resolution - period
	return math.Exp(-d * d / (2 * sigma * sigma))
}

// continuity is a tent over the circular phase distance between a candidate
// and the expected beat: 2 when aligned, 0 half a period away. It is 0 until
// the tracker has an anchor.
func (t *Tracker) continuity(index int, expected, beatSize float64) float64 {
	if !t.hasAnchor {
		return 0
	}
	d := math.Abs(frac(float64(index)/beatSize) - frac(expected/beatSize))
	d = math.Min(d, 1-d)
	return 2 * (1 - 2*d)
}

// setAnchor moves the anchor forward by whole beats into the most recent
// beat period of the buffer and derives the phase from it.
func (t *Tracker) setAnchor(anchor, beatSize, resolution, period float64) {
	target := float64(t.cfg.Length) - beatSize
	if anchor < target {
		anchor += math.Ceil((target-anchor)/beatSize) * beatSize
	}
	t.anchor = anchor
	t.phase = frac(((float64(t.cfg.Length) - anchor) / resolution) / period)
}

// Result reports the outcome of the last call.
func (t *Tracker) Result() Result {
	r := Result{ID: t.selected, Anchor: t.anchor, Phase: t.phase}
	if t.selected != NoBacklink {
		r.Beat = t.cands[t.selected]
		r.Score = t.score[t.selected]
	}
	return r
}

// Phase returns the current beat phase in [0, 1).
func (t *Tracker) Phase() float64 { return t.phase }

// Anchor returns the current anchor in buffer coordinates.
func (t *Tracker) Anchor() float64 { return t.anchor }

// Len returns the number of candidates of the last call.
func (t *Tracker) Len() int { return t.n }

// Selected returns the id of the current beat, or NoBacklink.
func (t *Tracker) Selected() int { return t.selected }

// Candidate returns candidate i of the last call.
func (t *Tracker) Candidate(i int) novelty.Peak {
	if i < 0 || i >= t.n {
		return novelty.Peak{}
	}
	return t.cands[i]
}

// Score returns the cumulative score of candidate i.
func (t *Tracker) Score(i int) float64 {
	if i < 0 || i >= t.n {
		return 0
	}
	return t.score[i]
}

// Backlink returns the predecessor of candidate i, NoBacklink for roots and
// out-of-range ids.
func (t *Tracker) Backlink(i int) int {
	if i < 0 || i >= t.n {
		return NoBacklink
	}
	return t.backlink[i]
}

// Depth returns the chain depth of candidate i.
func (t *Tracker) Depth(i int) int {
	if i < 0 || i >= t.n {
		return 0
	}
	return t.depth[i]
}

// Beats writes the beat chain ending at the current beat into the tail of
// dst, most recent beat last, following backlinks until a root or until dst
// is full. Leading slots that receive no beat are zeroed. It returns the
// number of beats written.
func (t *Tracker) Beats(dst []novelty.Peak) int {
	clear(dst)
	count := 0
	for cur := t.selected; cur != NoBacklink && count < len(dst); cur = t.backlink[cur] {
		count++
		dst[len(dst)-count] = t.cands[cur]
	}
	return count
}

// frac returns the fractional part of x in [0, 1).
func frac(x float64) float64 {
	f := x - math.Floor(x)
	if f >= 1 {
		return 0
	}
	return f
}
