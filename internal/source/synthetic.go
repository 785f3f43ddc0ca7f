// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"eegstream/internal/eeg"
)

// Component is one sinusoid of a synthetic signal. Channel i carries
// amplitude Amplitude + i*AmplitudeStep.
type Component struct {
	FrequencyHz   float64 `yaml:"frequency_hz"`
	Amplitude     float64 `yaml:"amplitude"`
	Phase         float64 `yaml:"phase"`
	AmplitudeStep float64 `yaml:"amplitude_step"`
}

// SyntheticConfig describes a generated signal.
type SyntheticConfig struct {
	Components []Component
	// Gains optionally scales each channel; missing entries mean 1.
	Gains []float64
	// ChannelOffset shifts the time base of channel i by i*ChannelOffset.
	ChannelOffset time.Duration
	// NoiseAmplitude adds uniform noise in [-NoiseAmplitude, NoiseAmplitude)
	// drawn from a generator seeded with Seed, so runs are repeatable.
	NoiseAmplitude float64
	Seed           int64
	// Duration bounds the signal; zero means endless.
	Duration time.Duration
	// Realtime paces Next to the stream's sample rate.
	Realtime bool
}

// Meditation returns the relaxed-state preset: strong alpha (10 Hz) and
// theta (6 Hz) over weaker beta (20 Hz) and delta (2 Hz), slightly different
// on every channel.
func Meditation() SyntheticConfig {
	return SyntheticConfig{
		Components: []Component{
			{FrequencyHz: 10, Amplitude: 15, AmplitudeStep: 2},
			{FrequencyHz: 6, Amplitude: 12, AmplitudeStep: 1.5},
			{FrequencyHz: 20, Amplitude: 6, AmplitudeStep: 1},
			{FrequencyHz: 2, Amplitude: 8, AmplitudeStep: 0.5},
		},
		ChannelOffset:  300 * time.Millisecond,
		NoiseAmplitude: 2,
		Seed:           1,
	}
}

// Synthetic generates a deterministic sum of sinusoids.
type Synthetic struct {
	mu     sync.Mutex
	stream eeg.Stream
	cfg    SyntheticConfig
	rng    *rand.Rand
	limit  int // samples, 0 for endless
	next   int
	start  time.Time
	closed bool
	values []float64
}

// NewSynthetic creates a generator for stream.
func NewSynthetic(stream eeg.Stream, cfg SyntheticConfig) (*Synthetic, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	for _, c := range cfg.Components {
		if c.FrequencyHz < 0 || math.IsNaN(c.FrequencyHz) {
			return nil, fmt.Errorf("synthetic component frequency must be >= 0, got %f", c.FrequencyHz)
		}
	}
	if cfg.NoiseAmplitude < 0 {
		return nil, fmt.Errorf("noise amplitude must be >= 0, got %f", cfg.NoiseAmplitude)
	}

	s := &Synthetic{
		stream: stream,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		values: make([]float64, stream.ChannelCount),
	}
	if cfg.Duration > 0 {
		s.limit = stream.SamplesFor(cfg.Duration)
	}
	return s, nil
}

func (s *Synthetic) Info() eeg.Stream {
	return s.stream
}

// Next returns sample n at timestamp n/rate.
func (s *Synthetic) Next(ctx context.Context) (eeg.Sample, error) {
	if err := ctx.Err(); err != nil {
		return eeg.Sample{}, err
	}

	s.mu.Lock()
	if s.closed || (s.limit > 0 && s.next >= s.limit) {
		s.mu.Unlock()
		return eeg.Sample{}, io.EOF
	}
	n := s.next
	s.next++
	if s.start.IsZero() {
		s.start = time.Now()
	}
	start := s.start
	ts := timestampOf(n, s.stream.SampleRate)
	sample := eeg.NewSample(ts, s.generate(n))
	s.mu.Unlock()

	if s.cfg.Realtime {
		if err := sleepUntil(ctx, start.Add(ts)); err != nil {
			return eeg.Sample{}, err
		}
	}
	return sample, nil
}

// generate fills s.values for sample index n. Caller holds s.mu.
func (s *Synthetic) generate(n int) []float64 {
	t0 := float64(n) / s.stream.SampleRate
	for ch := range s.values {
		t := t0 + float64(ch)*s.cfg.ChannelOffset.Seconds()
		var v float64
		for _, c := range s.cfg.Components {
			amp := c.Amplitude + float64(ch)*c.AmplitudeStep
			v += amp * math.Sin(2*math.Pi*c.FrequencyHz*t+c.Phase)
		}
		if s.cfg.NoiseAmplitude > 0 {
			v += (s.rng.Float64()*2 - 1) * s.cfg.NoiseAmplitude
		}
		if ch < len(s.cfg.Gains) {
			v *= s.cfg.Gains[ch]
		}
		s.values[ch] = v
	}
	return s.values
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// timestampOf returns the offset of sample n, rounded to the nanosecond so
// integer rates give exact timestamps.
func timestampOf(n int, rate float64) time.Duration {
	return time.Duration(math.Round(float64(n) * float64(time.Second) / rate))
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Source = (*Synthetic)(nil)
