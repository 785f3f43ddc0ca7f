// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"time"

	"eegstream/internal/analysis"
	"eegstream/internal/buffer"
	"eegstream/internal/filter"
)

// Config tunes a Coordinator. Zero durations fall back to the defaults.
type Config struct {
	BufferDuration   time.Duration // history kept in each buffer
	AnalysisWindow   time.Duration // span of one spectral estimate
	Cadence          time.Duration // interval between analysis cycles
	SilenceTimeout   time.Duration // no samples for this long marks the stream stale
	FocusChannel     int           // channel that drives classification
	SubscriberBuffer int           // channel capacity of each subscription

	Filter   filter.Config
	Spectral analysis.SpectralConfig
	Policy   analysis.ClassifierPolicy

	// Now is the clock used by the silence watchdog. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the standard real-time settings: 4 s of history,
// 1 s analysis windows every 200 ms and a 5 s silence timeout.
func DefaultConfig() Config {
	return Config{
		BufferDuration:   buffer.DefaultDuration,
		AnalysisWindow:   time.Second,
		Cadence:          200 * time.Millisecond,
		SilenceTimeout:   5 * time.Second,
		SubscriberBuffer: 64,
		Filter:           filter.DefaultConfig(),
		Spectral:         analysis.DefaultSpectralConfig(),
		Policy:           analysis.DefaultPolicy(),
		Now:              time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferDuration <= 0 {
		c.BufferDuration = d.BufferDuration
	}
	if c.AnalysisWindow <= 0 {
		c.AnalysisWindow = d.AnalysisWindow
	}
	if c.Cadence <= 0 {
		c.Cadence = d.Cadence
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = d.SilenceTimeout
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	if c.Filter == (filter.Config{}) {
		c.Filter = d.Filter
	}
	if c.Spectral.Estimator == "" {
		c.Spectral.Estimator = d.Spectral.Estimator
	}
	if len(c.Spectral.Bands) == 0 {
		c.Spectral.Bands = d.Spectral.Bands
	}
	if c.Policy == (analysis.ClassifierPolicy{}) {
		c.Policy = d.Policy
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c Config) validate(channels int) error {
	if c.AnalysisWindow > c.BufferDuration {
		return fmt.Errorf("analysis window %s exceeds buffer duration %s", c.AnalysisWindow, c.BufferDuration)
	}
	if c.FocusChannel < 0 || c.FocusChannel >= channels {
		return fmt.Errorf("focus channel %d out of range [0,%d)", c.FocusChannel, channels)
	}
	return nil
}
