// Package wavsource decodes PCM WAV audio into mono float64 samples in
// [-1, 1).
package wavsource

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidFile reports input that is not a decodable PCM WAV stream.
var ErrInvalidFile = errors.New("wavsource: not a valid WAV file")

const defaultBlock = 4096

// Source streams a WAV file as mono samples. Multi-channel audio is
// averaged.
type Source struct {
	dec *wav.Decoder
	buf *audio.IntBuffer

	sampleRate int
	channels   int
	bitDepth   int
	scale      float64
}

// Open reads the WAV header from r and prepares decoding.
func Open(r io.ReadSeeker) (*Source, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
		return nil, ErrInvalidFile
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels < 1 || bitDepth < 8 || bitDepth > 32 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %d channels, %d bits, %d Hz",
			ErrInvalidFile, channels, bitDepth, dec.SampleRate)
	}

	return &Source{
		dec: dec,
		buf: &audio.IntBuffer{
			Format:         dec.Format(),
			Data:           make([]int, defaultBlock*channels),
			SourceBitDepth: bitDepth,
		},
		sampleRate: int(dec.SampleRate),
		channels:   channels,
		bitDepth:   bitDepth,
		scale:      1 / math.Exp2(float64(bitDepth-1)),
	}, nil
}

// SampleRate returns the sample rate in Hz.
func (s *Source) SampleRate() int { return s.sampleRate }

// Channels returns the channel count of the file.
func (s *Source) Channels() int { return s.channels }

// BitDepth returns the sample resolution of the file.
func (s *Source) BitDepth() int { return s.bitDepth }

// Read decodes up to len(dst) mono samples into dst. It returns io.EOF once
// the data chunk is exhausted.
func (s *Source) Read(dst []float64) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	want := len(dst) * s.channels
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]

	n, err := s.dec.PCMBuffer(s.buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("wavsource: decode: %w", err)
	}

	frames := n / s.channels
	for f := range frames {
		sum := 0
		for _, v := range s.buf.Data[f*s.channels : (f+1)*s.channels] {
			sum += v
		}
		dst[f] = float64(sum) / float64(s.channels) * s.scale
	}

	return frames, nil
}

// ReadAll decodes the rest of the stream.
func (s *Source) ReadAll() ([]float64, error) {
	var out []float64
	block := make([]float64, defaultBlock)
	for {
		n, err := s.Read(block)
		out = append(out, block[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// ReadFile decodes a whole WAV file and returns its mono samples and sample
// rate.
func ReadFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("wavsource: %w", err)
	}
	defer f.Close()

	src, err := Open(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}

	samples, err := src.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}

	return samples, src.SampleRate(), nil
}

// Encode writes mono samples as 16-bit PCM. Samples are clipped to [-1, 1].
func Encode(w io.WriteSeeker, samples []float64, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, v := range samples {
		v = math.Max(-1, math.Min(1, v))
		data[i] = int(math.Round(v * math.MaxInt16))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavsource: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavsource: encode: %w", err)
	}
	return nil
}
