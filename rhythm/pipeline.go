package rhythm

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-rhythm/rhythm/beat"
	"github.com/cwbudde/algo-rhythm/rhythm/novelty"
	"github.com/cwbudde/algo-rhythm/rhythm/tempo"
)

// State is the position of the pipeline in its update cycle.
type State int32

const (
	// AwaitingSpectrum means no spectrum has been consumed yet.
	AwaitingSpectrum State = iota
	// NoveltyReady means the novelty curve holds hops not yet analysed.
	NoveltyReady
	// FullyComputed means the outputs reflect the latest novelty hop.
	FullyComputed
)

func (s State) String() string {
	switch s {
	case AwaitingSpectrum:
		return "awaiting-spectrum"
	case NoveltyReady:
		return "novelty-ready"
	case FullyComputed:
		return "fully-computed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SpectrumSource delivers magnitude spectrum frames, one per hop.
type SpectrumSource interface {
	// Available reports, and clears, whether a new frame is ready.
	Available() bool
	// Read copies the latest frame into dst and returns the bins written.
	Read(dst []float64) int
}

// Snapshot holds the outputs of one completed compute cycle.
type Snapshot struct {
	// BPM is the smoothed tempo.
	BPM float64
	// RawBPM is the unsmoothed estimate of this cycle.
	RawBPM float64
	// BeatPhase and BarPhase are in [0, 1).
	BeatPhase float64
	BarPhase  float64
	// Beat is the selected beat candidate; Found is false when there was none.
	Beat  novelty.Peak
	Found bool
	// Hops is the number of novelty hops consumed when the cycle started.
	Hops uint64
	// Elapsed is the pipeline clock time since construction.
	Elapsed time.Duration
}

// Pipeline ties a novelty curve, a tempo estimator and beat and bar trackers
// together.
//
// PushSpectrum and UpdateNovelty form the producer side and are meant for a
// single goroutine running at the hop rate. Compute forms the consumer side.
// The two sides share the novelty curve under a short critical section.
// BPM, BeatPhase, BarPhase, Available, State and Snapshot may be called from
// any goroutine. Outputs only change when a compute cycle completes; in mock
// mode the phases are likewise frozen at the last Compute rather than
// following the clock between cycles.
type Pipeline struct {
	cfg   Config
	log   *slog.Logger
	clock Clock
	start time.Time
	res   float64

	// producer side, guarded by mu
	mu      sync.Mutex
	curve   *novelty.Curve
	pending bool
	frame   []float64

	// consumer side, guarded by cmu
	cmu      sync.Mutex
	est      *tempo.Estimator
	peaks    *novelty.PeakSet
	beats    *beat.Tracker
	bars     *beat.Tracker
	chain    []novelty.Peak
	smoothed float64

	state     atomic.Int32
	available atomic.Bool

	smu  sync.RWMutex
	snap Snapshot
}

// New validates cfg and allocates every buffer the pipeline needs.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts...)

	curve, err := novelty.New(cfg.noveltyConfig())
	if err != nil {
		return nil, fmt.Errorf("rhythm: %w", err)
	}
	est, err := tempo.New(cfg.tempoConfig())
	if err != nil {
		return nil, fmt.Errorf("rhythm: %w", err)
	}
	beats, err := beat.New(cfg.beatConfig())
	if err != nil {
		return nil, fmt.Errorf("rhythm: %w", err)
	}
	bars, err := beat.New(cfg.beatConfig())
	if err != nil {
		return nil, fmt.Errorf("rhythm: %w", err)
	}

	p := &Pipeline{
		cfg:      cfg,
		log:      o.logger,
		clock:    o.clock,
		start:    o.clock.Now(),
		res:      cfg.Resolution(),
		curve:    curve,
		frame:    make([]float64, cfg.Bins),
		est:      est,
		peaks:    novelty.NewPeakSet(cfg.MaxCandidates),
		beats:    beats,
		bars:     bars,
		chain:    make([]novelty.Peak, cfg.MaxCandidates),
		smoothed: cfg.DefaultBPM,
	}
	p.publishInitial()

	p.log.Info("rhythm: pipeline created",
		"sample_rate", cfg.SampleRate,
		"hop_length", cfg.HopLength,
		"history", cfg.HistoryLength,
		"bins", cfg.Bins,
		"bar_tracking", cfg.BarTracking,
		"mock_bpm", cfg.MockBPM)

	return p, nil
}

func (p *Pipeline) publishInitial() {
	bpm := p.cfg.DefaultBPM
	if p.cfg.MockBPM > 0 {
		bpm = p.cfg.MockBPM
	}
	p.publish(Snapshot{BPM: bpm, RawBPM: bpm})
	p.state.Store(int32(AwaitingSpectrum))
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Resolution returns the novelty rate in hops per second.
func (p *Pipeline) Resolution() float64 { return p.res }

// PushSpectrum feeds one magnitude frame into the novelty curve.
func (p *Pipeline) PushSpectrum(frame []float64) {
	p.mu.Lock()
	p.curve.Update(frame)
	p.pending = true
	p.state.Store(int32(NoveltyReady))
	p.mu.Unlock()
}

// UpdateNovelty polls src once and pushes its frame if one is available.
// It reports whether a frame was consumed.
func (p *Pipeline) UpdateNovelty(src SpectrumSource) bool {
	if !src.Available() {
		return false
	}
	n := src.Read(p.frame)
	p.PushSpectrum(p.frame[:n])
	return true
}

// Compute runs one analysis cycle over the hops pushed so far. It returns
// false, leaving every output unchanged, when no new hop arrived since the
// previous cycle. In mock mode it waits MockDelay and reports the mock tempo.
func (p *Pipeline) Compute() bool {
	if p.cfg.MockBPM > 0 {
		return p.computeMock()
	}

	p.cmu.Lock()
	defer p.cmu.Unlock()

	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return false
	}
	p.est.Load(p.curve)
	p.curve.Peaks(p.peaks, p.cfg.MaxCandidates, novelty.ByIndex)
	hops := p.curve.Hops()
	p.pending = false
	p.mu.Unlock()

	raw := p.cfg.CenterBPM
	if err := p.est.Compute(); err == nil {
		raw = p.est.BPM(p.cfg.CenterBPM)
	}
	p.smoothed = (1-p.cfg.Smoothing)*p.smoothed + p.cfg.Smoothing*raw

	elapsed := p.clock.Now().Sub(p.start)
	res := p.beats.Track(p.peaks.Peaks(), p.smoothed, p.res, elapsed)

	barPhase := 0.0
	if p.cfg.BarTracking {
		n := p.beats.Beats(p.chain)
		barPhase = p.bars.Track(p.chain[len(p.chain)-n:], p.smoothed/4, p.res, elapsed).Phase
	}

	p.publish(Snapshot{
		BPM:       p.smoothed,
		RawBPM:    raw,
		BeatPhase: res.Phase,
		BarPhase:  barPhase,
		Beat:      res.Beat,
		Found:     res.Found(),
		Hops:      hops,
		Elapsed:   elapsed,
	})

	p.mu.Lock()
	if !p.pending {
		p.state.Store(int32(FullyComputed))
	}
	p.mu.Unlock()

	p.available.Store(true)
	return true
}

func (p *Pipeline) computeMock() bool {
	p.cmu.Lock()
	defer p.cmu.Unlock()

	p.clock.Sleep(p.cfg.MockDelay)

	elapsed := p.clock.Now().Sub(p.start)
	us := float64(elapsed.Microseconds())
	period := 60e6 / p.cfg.MockBPM

	p.publish(Snapshot{
		BPM:       p.cfg.MockBPM,
		RawBPM:    p.cfg.MockBPM,
		BeatPhase: math.Mod(us, period) / period,
		BarPhase:  math.Mod(us, 4*period) / (4 * period),
		Elapsed:   elapsed,
	})
	p.state.Store(int32(FullyComputed))
	p.available.Store(true)
	return true
}

func (p *Pipeline) publish(s Snapshot) {
	p.smu.Lock()
	p.snap = s
	p.smu.Unlock()
}

func (p *Pipeline) load() Snapshot {
	p.smu.RLock()
	defer p.smu.RUnlock()
	return p.snap
}

// Available reports whether a compute cycle completed since the last call,
// and clears the flag.
func (p *Pipeline) Available() bool { return p.available.Swap(false) }

// State returns the current cycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Snapshot returns the outputs of the last completed cycle.
func (p *Pipeline) Snapshot() Snapshot { return p.load() }

// BPM returns the smoothed tempo.
func (p *Pipeline) BPM() float64 { return p.load().BPM }

// BeatPhase returns the beat phase in [0, 1).
func (p *Pipeline) BeatPhase() float64 { return p.load().BeatPhase }

// BarPhase returns the bar phase in [0, 1), 0 when bar tracking is off.
func (p *Pipeline) BarPhase() float64 { return p.load().BarPhase }

// Novelty writes the normalised novelty history, oldest first, into dst.
func (p *Pipeline) Novelty(dst []float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curve.ReadAll(dst)
}

// NoveltySpectrum writes the normalised tempo spectrum of the last cycle
// into dst.
func (p *Pipeline) NoveltySpectrum(dst []float64) int {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	return p.est.Spectrum(dst)
}

// Beats writes the beat chain of the last cycle into the tail of dst; see
// [beat.Tracker.Beats].
func (p *Pipeline) Beats(dst []novelty.Peak) int {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	return p.beats.Beats(dst)
}

// Reset clears the novelty history, both trackers and all outputs.
func (p *Pipeline) Reset() {
	p.cmu.Lock()
	defer p.cmu.Unlock()

	p.mu.Lock()
	p.curve.Reset()
	p.pending = false
	p.mu.Unlock()

	p.est.LoadSlice(nil)
	_ = p.est.Compute()
	p.beats.Reset()
	p.bars.Reset()
	p.smoothed = p.cfg.DefaultBPM
	p.start = p.clock.Now()
	p.available.Store(false)
	p.publishInitial()

	p.log.Debug("rhythm: pipeline reset")
}
