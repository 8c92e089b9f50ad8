package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/goccmack/godsp"
	godspio "github.com/goccmack/godsp/ioutil"

	"github.com/cwbudde/algo-rhythm/dsp/stft"
	"github.com/cwbudde/algo-rhythm/dsp/window"
	"github.com/cwbudde/algo-rhythm/rhythm"
	"github.com/cwbudde/algo-rhythm/rhythm/novelty"
	"github.com/cwbudde/algo-rhythm/stats/series"
)

type options struct {
	windowLength int
	step         int
	window       window.Type
	tick         int
	mockBPM      float64
	smoothing    float64
	bars         bool
	format       string
}

func defaultOptions() options {
	sc := stft.DefaultConfig()
	return options{
		windowLength: sc.WindowLength,
		step:         sc.Step,
		window:       sc.Window,
		tick:         8,
		smoothing:    rhythm.DefaultConfig().Smoothing,
		bars:         true,
		format:       "text",
	}
}

// record is one completed compute cycle.
type record struct {
	Time      float64 `json:"time"`
	BPM       float64 `json:"bpm"`
	RawBPM    float64 `json:"raw_bpm"`
	BeatPhase float64 `json:"beat_phase"`
	BarPhase  float64 `json:"bar_phase"`
	Beat      int     `json:"beat"`
	Found     bool    `json:"found"`
}

type summary struct {
	File       string  `json:"file"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
	Hops       uint64  `json:"hops"`
	Cycles     int     `json:"cycles"`
	MeanBPM    float64 `json:"mean_bpm"`
	StdDevBPM  float64 `json:"stddev_bpm"`
	MinBPM     float64 `json:"min_bpm"`
	MaxBPM     float64 `json:"max_bpm"`
	FinalBPM   float64 `json:"final_bpm"`
}

// sampleClock advances with the audio fed to the analyzer, so offline runs
// see the same elapsed time a live input would.
type sampleClock struct {
	base    time.Time
	rate    float64
	samples int64
	slept   time.Duration
}

func newSampleClock(rate float64) *sampleClock {
	return &sampleClock{base: time.Unix(0, 0), rate: rate}
}

func (c *sampleClock) Now() time.Time { return c.base.Add(c.Elapsed()) }

func (c *sampleClock) Sleep(d time.Duration) { c.slept += d }

func (c *sampleClock) Advance(n int) { c.samples += int64(n) }

func (c *sampleClock) Elapsed() time.Duration {
	return time.Duration(float64(c.samples)/c.rate*float64(time.Second)) + c.slept
}

func newPipeline(sampleRate int, opts options, log *slog.Logger, clk rhythm.Clock) (*stft.Analyzer, *rhythm.Pipeline, error) {
	an, err := stft.New(stft.Config{
		WindowLength: opts.windowLength,
		Step:         opts.step,
		Window:       opts.window,
	})
	if err != nil {
		return nil, nil, err
	}

	cfg := rhythm.DefaultConfig()
	cfg.SampleRate = float64(sampleRate)
	cfg.HopLength = opts.step
	cfg.Bins = an.Bins()
	cfg.Smoothing = opts.smoothing
	cfg.BarTracking = opts.bars
	cfg.MockBPM = opts.mockBPM

	p, err := rhythm.New(cfg, rhythm.WithLogger(log), rhythm.WithClock(clk))
	if err != nil {
		return nil, nil, err
	}
	return an, p, nil
}

// track runs the analyzer and pipeline over samples, calling emit after
// every compute cycle that completes on a tick.
func track(samples []float64, sampleRate int, opts options, log *slog.Logger, emit func(record) error) (*rhythm.Pipeline, summary, error) {
	if opts.tick <= 0 {
		return nil, summary{}, fmt.Errorf("tick must be > 0: %d", opts.tick)
	}

	clk := newSampleClock(float64(sampleRate))
	an, p, err := newPipeline(sampleRate, opts, log, clk)
	if err != nil {
		return nil, summary{}, err
	}

	sum := summary{
		SampleRate: sampleRate,
		Duration:   float64(len(samples)) / float64(sampleRate),
	}
	var bpms series.Streaming
	hops := 0

	for len(samples) > 0 {
		n := an.Write(samples)
		samples = samples[n:]
		clk.Advance(n)

		if !p.UpdateNovelty(an) {
			continue
		}
		hops++
		if hops%opts.tick != 0 {
			continue
		}

		if !p.Compute() || !p.Available() {
			continue
		}
		snap := p.Snapshot()
		bpms.Add(snap.BPM)

		rec := record{
			Time:      clk.Elapsed().Seconds(),
			BPM:       snap.BPM,
			RawBPM:    snap.RawBPM,
			BeatPhase: snap.BeatPhase,
			BarPhase:  snap.BarPhase,
			Beat:      snap.Beat.Index,
			Found:     snap.Found,
		}
		if err := emit(rec); err != nil {
			return p, sum, err
		}
		log.Debug("rhythmtrack: cycle", "time", rec.Time, "bpm", rec.BPM, "beat_phase", rec.BeatPhase)
	}

	sum.Hops = uint64(hops)
	sum.FinalBPM = p.BPM()
	st := bpms.Result()
	sum.Cycles = bpms.Len()
	sum.MeanBPM = st.Mean
	sum.StdDevBPM = st.StdDev
	sum.MinBPM = st.Min
	sum.MaxBPM = st.Max
	return p, sum, nil
}

// recordWriter formats records as an aligned table or as JSON lines.
type recordWriter struct {
	tw      *tabwriter.Writer
	enc     *json.Encoder
	started bool
}

func newRecordWriter(w io.Writer, format string) (*recordWriter, error) {
	switch format {
	case "text":
		return &recordWriter{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}, nil
	case "json":
		return &recordWriter{enc: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

func (rw *recordWriter) Write(r record) error {
	if rw.enc != nil {
		return rw.enc.Encode(r)
	}

	if !rw.started {
		rw.started = true
		if _, err := fmt.Fprintf(rw.tw, "Time [s]\tBPM\tRaw BPM\tBeat phase\tBar phase\tBeat\n"); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(rw.tw, "--------\t---\t-------\t----------\t---------\t----\n"); err != nil {
			return err
		}
	}

	beat := "-"
	if r.Found {
		beat = fmt.Sprint(r.Beat)
	}
	_, err := fmt.Fprintf(rw.tw, "%.3f\t%.2f\t%.2f\t%.3f\t%.3f\t%s\n",
		r.Time, r.BPM, r.RawBPM, r.BeatPhase, r.BarPhase, beat)
	return err
}

func (rw *recordWriter) Flush() error {
	if rw.tw != nil {
		return rw.tw.Flush()
	}
	return nil
}

// writePlots stores the final novelty curve, tempo spectrum and beat chain
// as novelty.txt, spectrum.txt and beats.txt in dir.
func writePlots(dir string, p *rhythm.Pipeline) error {
	if err := godspio.MkdirAll(dir); err != nil {
		return err
	}

	cfg := p.Config()
	curve := make([]float64, cfg.HistoryLength)
	p.Novelty(curve)
	if err := writeDataFile(curve, filepath.Join(dir, "novelty")); err != nil {
		return err
	}

	spec := make([]float64, cfg.HistoryLength/2)
	p.NoveltySpectrum(spec)
	if err := writeDataFile(spec, filepath.Join(dir, "spectrum")); err != nil {
		return err
	}

	chain := make([]novelty.Peak, cfg.MaxCandidates)
	n := p.Beats(chain)
	beats := make([]float64, n)
	for i, b := range chain[len(chain)-n:] {
		beats[i] = float64(b.Index)
	}
	return writeDataFile(beats, filepath.Join(dir, "beats"))
}

// writeDataFile writes x to base+".txt", one value per line. godsp panics on
// I/O failure; the panic is returned as an error.
func writeDataFile(x []float64, base string) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = e
			return
		}
		err = fmt.Errorf("write %s.txt: %v", base, r)
	}()

	godsp.WriteDataFile(x, base)
	return nil
}

func writeSummary(path string, s summary) error {
	buf, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return godspio.WriteFile(path, buf)
}
