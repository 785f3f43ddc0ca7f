// SPDX-License-Identifier: MIT
/*
Package filter implements the per-stream digital filter stage.

Each channel runs through its own cascade of second-order sections:

	clamp(±ClampMicrovolts) -> high-pass -> low-pass -> notch

The stage owns all filter memory. Samples must be applied in arrival order
and the output depends only on the ordered input values, so two stages fed
the same sequence produce the same output.
*/
package filter

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"eegstream/internal/eeg"
	"eegstream/internal/log"
)

// Config describes the filter topology.
type Config struct {
	LowCutHz         float64 // high-pass corner
	HighCutHz        float64 // low-pass corner
	NotchHz          float64 // line-noise centre, <= 0 disables the notch
	NotchHalfWidthHz float64
	ClampMicrovolts  float64 // <= 0 disables clamping
	Order            int     // Butterworth order of each pass filter
}

// DefaultConfig returns the 1-40 Hz band-pass with a 50 Hz notch used for
// scalp EEG.
func DefaultConfig() Config {
	return Config{
		LowCutHz:         1,
		HighCutHz:        40,
		NotchHz:          50,
		NotchHalfWidthHz: 2,
		ClampMicrovolts:  200,
		Order:            4,
	}
}

// Validate checks the configuration against a sample rate.
func (c Config) Validate(sampleRate float64) error {
	nyquist := sampleRate / 2
	if c.LowCutHz <= 0 || c.LowCutHz >= nyquist {
		return fmt.Errorf("low cut %.3f Hz outside (0, %.3f)", c.LowCutHz, nyquist)
	}
	if c.HighCutHz <= c.LowCutHz || c.HighCutHz >= nyquist {
		return fmt.Errorf("high cut %.3f Hz outside (%.3f, %.3f)", c.HighCutHz, c.LowCutHz, nyquist)
	}
	if c.notchEnabled(sampleRate) && c.NotchHalfWidthHz <= 0 {
		return fmt.Errorf("notch half width must be positive, got %.3f", c.NotchHalfWidthHz)
	}
	if c.Order < 2 || c.Order%2 != 0 {
		return fmt.Errorf("filter order must be even and >= 2, got %d", c.Order)
	}
	return nil
}

func (c Config) notchEnabled(sampleRate float64) bool {
	return c.NotchHz > 0 && c.NotchHz < sampleRate/2
}

// Stage filters every channel of a stream.
type Stage struct {
	mu       sync.Mutex
	stream   eeg.Stream
	cfg      Config
	channels []Cascade
	clipped  atomic.Uint64
}

// NewStage designs the filter cascade for stream and allocates one copy of
// the filter memory per channel.
func NewStage(stream eeg.Stream, cfg Config) (*Stage, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	proto, err := design(cfg, stream.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("filter design for %q: %w", stream.Name, err)
	}

	s := &Stage{
		stream:   stream,
		cfg:      cfg,
		channels: make([]Cascade, stream.ChannelCount),
	}
	for i := range s.channels {
		s.channels[i] = proto.Clone()
	}

	log.Debugf("filter %q: %d sections/channel, |H| at 10 Hz = %.3f, at %.0f Hz = %.4f",
		stream.Name, len(proto), proto.Magnitude(10, stream.SampleRate),
		cfg.NotchHz, proto.Magnitude(cfg.NotchHz, stream.SampleRate))
	return s, nil
}

func design(cfg Config, sampleRate float64) (Cascade, error) {
	if err := cfg.Validate(sampleRate); err != nil {
		return nil, err
	}
	hp, err := ButterworthHighPass(cfg.Order, cfg.LowCutHz, sampleRate)
	if err != nil {
		return nil, err
	}
	lp, err := ButterworthLowPass(cfg.Order, cfg.HighCutHz, sampleRate)
	if err != nil {
		return nil, err
	}
	sections := [][]Coefficients{hp, lp}

	if cfg.notchEnabled(sampleRate) {
		n, err := Notch(cfg.NotchHz, 2*cfg.NotchHalfWidthHz, sampleRate)
		if err != nil {
			return nil, err
		}
		sections = append(sections, []Coefficients{n})
	}
	return NewCascade(sections...), nil
}

// Apply filters one sample. The result carries the input timestamp and one
// value per channel. A sample with the wrong channel count is rejected
// before any filter memory changes.
func (s *Stage) Apply(in eeg.Sample) (eeg.Sample, error) {
	if err := s.stream.Check(in); err != nil {
		return eeg.Sample{}, err
	}

	out := make([]float64, len(in.Channels))

	s.mu.Lock()
	defer s.mu.Unlock()

	for ch, x := range in.Channels {
		out[ch] = s.channels[ch].Process(s.clamp(x))
	}
	return eeg.Sample{Timestamp: in.Timestamp, Channels: out}, nil
}

// clamp saturates x to the artifact limit. NaN is treated as a dropped
// reading and replaced by zero so it cannot poison the filter memory.
func (s *Stage) clamp(x float64) float64 {
	if math.IsNaN(x) {
		s.clipped.Add(1)
		return 0
	}
	limit := s.cfg.ClampMicrovolts
	if limit <= 0 {
		if math.IsInf(x, 0) {
			s.clipped.Add(1)
			return 0
		}
		return x
	}
	switch {
	case x > limit:
		s.clipped.Add(1)
		return limit
	case x < -limit:
		s.clipped.Add(1)
		return -limit
	}
	return x
}

// Reset clears the memory of every channel.
func (s *Stage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		c.Reset()
	}
}

// Clipped returns how many channel values were saturated.
func (s *Stage) Clipped() uint64 {
	return s.clipped.Load()
}
