package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-rhythm/internal/testutil"
	"github.com/cwbudde/algo-rhythm/internal/wavsource"
)

// At 32768 Hz with 512-sample hops, 120 BPM is exactly 32 hops.
const testRate = 32768

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestTrackClickTrain(t *testing.T) {
	opts := defaultOptions()
	opts.smoothing = 1
	opts.tick = 100

	audio := testutil.ClickTrain(testRate, 120, 0.8, 1100*opts.step)

	var recs []record
	_, sum, err := track(audio, testRate, opts, discard, func(r record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 11)
	require.Equal(t, uint64(1100), sum.Hops)
	require.Equal(t, 11, sum.Cycles)

	last := recs[len(recs)-1]
	require.InDelta(t, 120, last.BPM, 1)
	require.True(t, last.Found)
	require.InDelta(t, 1100*512/float64(testRate), last.Time, 1e-9)
	for i := 1; i < len(recs); i++ {
		require.Greater(t, recs[i].Time, recs[i-1].Time)
	}
}

func TestTrackMock(t *testing.T) {
	opts := defaultOptions()
	opts.mockBPM = 90
	opts.tick = 10

	audio := make([]float64, 100*opts.step)
	var recs []record
	_, sum, err := track(audio, testRate, opts, discard, func(r record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 10)
	require.Equal(t, 90.0, sum.FinalBPM)
	require.Equal(t, 90.0, sum.MeanBPM)
	require.Zero(t, sum.StdDevBPM)
	require.Equal(t, 90.0, sum.MinBPM)
	require.Equal(t, 90.0, sum.MaxBPM)
	for _, r := range recs {
		require.Equal(t, 90.0, r.BPM)
		require.GreaterOrEqual(t, r.BeatPhase, 0.0)
		require.Less(t, r.BeatPhase, 1.0)
	}
}

func TestTrackRejectsBadOptions(t *testing.T) {
	opts := defaultOptions()
	opts.tick = 0
	_, _, err := track(nil, testRate, opts, discard, func(record) error { return nil })
	require.Error(t, err)

	opts = defaultOptions()
	opts.step = 64
	_, _, err = track(nil, testRate, opts, discard, func(record) error { return nil })
	require.Error(t, err)
}

func TestRecordWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	w, err := newRecordWriter(&buf, "json")
	require.NoError(t, err)
	require.NoError(t, w.Write(record{Time: 1.5, BPM: 120, BeatPhase: 0.25, Beat: 7, Found: true}))
	require.NoError(t, w.Write(record{Time: 2}))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var r record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &r))
	require.Equal(t, record{Time: 1.5, BPM: 120, BeatPhase: 0.25, Beat: 7, Found: true}, r)
}

func TestRecordWriterText(t *testing.T) {
	var buf bytes.Buffer
	w, err := newRecordWriter(&buf, "text")
	require.NoError(t, err)
	require.NoError(t, w.Write(record{Time: 1.5, BPM: 120, RawBPM: 121, BeatPhase: 0.25, Beat: 7, Found: true}))
	require.NoError(t, w.Write(record{Time: 2}))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "Time [s]"))
	require.Contains(t, lines[2], "120.00")
	require.True(t, strings.HasSuffix(lines[3], "-"))

	_, err = newRecordWriter(&buf, "xml")
	require.Error(t, err)
}

func TestRunWritesSummary(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clicks.wav")
	f, err := os.Create(input)
	require.NoError(t, err)
	require.NoError(t, wavsource.Encode(f, testutil.ClickTrain(testRate, 120, 0.8, 200*512), testRate))
	require.NoError(t, f.Close())

	opts := defaultOptions()
	opts.format = "json"
	summaryPath := filepath.Join(dir, "summary.json")

	var out bytes.Buffer
	plotDir := filepath.Join(dir, "plots")
	require.NoError(t, run(input, opts, plotDir, summaryPath, &out, discard))
	require.Equal(t, 200/opts.tick, strings.Count(out.String(), "\n"))

	raw, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var sum summary
	require.NoError(t, json.Unmarshal(raw, &sum))
	require.Equal(t, input, sum.File)
	require.Equal(t, testRate, sum.SampleRate)
	require.Equal(t, uint64(200), sum.Hops)
	require.Equal(t, 200/opts.tick, sum.Cycles)

	plots, err := os.ReadDir(plotDir)
	require.NoError(t, err)
	var names []string
	for _, e := range plots {
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"beats.txt", "novelty.txt", "spectrum.txt"}, names)

	raw, err = os.ReadFile(filepath.Join(plotDir, "novelty.txt"))
	require.NoError(t, err)
	require.Equal(t, 1024, strings.Count(string(raw), "\n"))
}

func TestWriteDataFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	require.Error(t, writeDataFile([]float64{1, 2}, filepath.Join(blocker, "sub", "data")))

	require.NoError(t, writeDataFile([]float64{1, 2}, filepath.Join(dir, "data")))
	raw, err := os.ReadFile(filepath.Join(dir, "data.txt"))
	require.NoError(t, err)
	require.Equal(t, "1.000000\n2.000000\n", string(raw))
}
