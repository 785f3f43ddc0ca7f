// SPDX-License-Identifier: MIT
/*
Package eeg defines the data model shared by the processing pipeline:
stream metadata, samples, band power estimates and classification results.

Values in this package are immutable once constructed. Constructors copy the
slices they are given, so a caller may reuse its own buffers freely.
*/
package eeg

import (
	"fmt"
	"math"
	"time"
)

// Sample is one multi-channel reading. Timestamp is a monotonic offset from
// the start of the stream; Channels holds amplitudes in microvolts.
type Sample struct {
	Timestamp time.Duration `json:"timestamp"`
	Channels  []float64     `json:"channels"`
}

// NewSample returns a Sample holding a private copy of channels.
func NewSample(ts time.Duration, channels []float64) Sample {
	c := make([]float64, len(channels))
	copy(c, channels)
	return Sample{Timestamp: ts, Channels: c}
}

// Len returns the channel count of the sample.
func (s Sample) Len() int {
	return len(s.Channels)
}

// Clone returns a deep copy of the sample.
func (s Sample) Clone() Sample {
	return NewSample(s.Timestamp, s.Channels)
}

// Stream describes a connected source. It is created at connection time and
// stays unchanged until the stream is disconnected.
type Stream struct {
	Name          string   `json:"name"`
	ChannelCount  int      `json:"channel_count"`
	SampleRate    float64  `json:"sample_rate"`
	ChannelLabels []string `json:"channel_labels"`

	Type         string `json:"type,omitempty"`
	SourceID     string `json:"source_id,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

// NewStream validates the stream contract and normalises the channel labels:
// missing labels are filled as Ch1..ChN and surplus labels are dropped.
func NewStream(name string, channelCount int, sampleRate float64, labels []string) (Stream, error) {
	if channelCount <= 0 {
		return Stream{}, fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidStream, channelCount)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return Stream{}, fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidStream, sampleRate)
	}

	return Stream{
		Name:          name,
		ChannelCount:  channelCount,
		SampleRate:    sampleRate,
		ChannelLabels: normaliseLabels(labels, channelCount),
	}, nil
}

// Validate checks an already populated Stream, e.g. one decoded from config.
func (s Stream) Validate() error {
	if s.ChannelCount <= 0 {
		return fmt.Errorf("%w: channel count must be positive, got %d", ErrInvalidStream, s.ChannelCount)
	}
	if s.SampleRate <= 0 || math.IsNaN(s.SampleRate) || math.IsInf(s.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidStream, s.SampleRate)
	}
	if len(s.ChannelLabels) != s.ChannelCount {
		return fmt.Errorf("%w: %d labels for %d channels", ErrInvalidStream, len(s.ChannelLabels), s.ChannelCount)
	}
	return nil
}

// Check verifies that a sample honours the stream's channel contract.
func (s Stream) Check(sample Sample) error {
	if sample.Len() != s.ChannelCount {
		return &ValidationError{Expected: s.ChannelCount, Got: sample.Len()}
	}
	return nil
}

// SamplesFor returns how many samples span d at the stream's sample rate,
// never less than one.
func (s Stream) SamplesFor(d time.Duration) int {
	n := int(math.Round(d.Seconds() * s.SampleRate))
	if n < 1 {
		return 1
	}
	return n
}

func normaliseLabels(labels []string, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < len(labels) && i < n; i++ {
		out = append(out, labels[i])
	}
	for len(out) < n {
		out = append(out, fmt.Sprintf("Ch%d", len(out)+1))
	}
	return out
}

// Band identifies one of the canonical EEG frequency bands.
type Band int

const (
	Delta Band = iota
	Theta
	Alpha
	Beta
	Gamma
)

// BandCount is the number of canonical bands.
const BandCount = 5

func (b Band) String() string {
	switch b {
	case Delta:
		return "delta"
	case Theta:
		return "theta"
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case Gamma:
		return "gamma"
	default:
		return "unknown"
	}
}

// BandPowers is the power estimate of one channel for one analysis cycle.
// Every field is non-negative and finite.
type BandPowers struct {
	Timestamp time.Duration `json:"timestamp"`
	Channel   int           `json:"channel"`
	Delta     float64       `json:"delta"`
	Theta     float64       `json:"theta"`
	Alpha     float64       `json:"alpha"`
	Beta      float64       `json:"beta"`
	Gamma     float64       `json:"gamma"`
}

// Get returns the power of band b.
func (p BandPowers) Get(b Band) float64 {
	switch b {
	case Delta:
		return p.Delta
	case Theta:
		return p.Theta
	case Alpha:
		return p.Alpha
	case Beta:
		return p.Beta
	case Gamma:
		return p.Gamma
	default:
		return 0
	}
}

// Set stores v as the power of band b.
func (p *BandPowers) Set(b Band, v float64) {
	switch b {
	case Delta:
		p.Delta = v
	case Theta:
		p.Theta = v
	case Alpha:
		p.Alpha = v
	case Beta:
		p.Beta = v
	case Gamma:
		p.Gamma = v
	}
}

// Total returns the summed power across all bands.
func (p BandPowers) Total() float64 {
	return p.Delta + p.Theta + p.Alpha + p.Beta + p.Gamma
}

// Dominant returns the band holding the most power. Ties resolve to the
// lower band.
func (p BandPowers) Dominant() Band {
	best := Delta
	for b := Theta; b <= Gamma; b++ {
		if p.Get(b) > p.Get(best) {
			best = b
		}
	}
	return best
}

// StateLabel is the coarse mental state derived from band powers.
type StateLabel int

const (
	DeepState StateLabel = iota
	RelaxedFocus
	ActiveState
)

func (l StateLabel) String() string {
	switch l {
	case DeepState:
		return "DeepState"
	case RelaxedFocus:
		return "RelaxedFocus"
	case ActiveState:
		return "ActiveState"
	default:
		return "Unknown"
	}
}

// MarshalText lets labels appear by name in JSON events.
func (l StateLabel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Classification is the state label and quality score (0-100) derived from
// one BandPowers estimate.
type Classification struct {
	Timestamp time.Duration `json:"timestamp"`
	Channel   int           `json:"channel"`
	Label     StateLabel    `json:"label"`
	Quality   int           `json:"quality"`
}
