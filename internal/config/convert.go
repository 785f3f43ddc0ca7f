// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"strings"

	"eegstream/internal/analysis"
	"eegstream/internal/eeg"
	"eegstream/internal/engine"
	"eegstream/internal/export"
	"eegstream/internal/filter"
	"eegstream/internal/source"
)

// StreamInfo builds the stream description, filling manufacturer, model and
// channel labels from the detected device.
func (c *Config) StreamInfo() (eeg.Stream, error) {
	s, err := eeg.NewStream(c.Stream.Name, c.Stream.ChannelCount, c.Stream.SampleRate, c.Stream.Labels)
	if err != nil {
		return eeg.Stream{}, err
	}
	s.Type = c.Stream.Type
	s.SourceID = c.Stream.SourceID
	return eeg.Describe(s), nil
}

// FilterConfig returns the filter stage settings.
func (c *Config) FilterConfig() filter.Config {
	f := c.Filter
	return filter.Config{
		LowCutHz:         f.LowCutHz,
		HighCutHz:        f.HighCutHz,
		NotchHz:          f.NotchHz,
		NotchHalfWidthHz: f.NotchHalfWidthHz,
		ClampMicrovolts:  f.ClampMicrovolts,
		Order:            f.Order,
	}
}

// SpectralConfig returns the analyzer settings over the canonical bands.
func (c *Config) SpectralConfig() (analysis.SpectralConfig, error) {
	w, err := analysis.ParseWindowFunc(c.Analysis.WindowFn)
	if err != nil {
		return analysis.SpectralConfig{}, err
	}
	e, err := analysis.ParseEstimator(c.Analysis.Estimator)
	if err != nil {
		return analysis.SpectralConfig{}, err
	}
	return analysis.SpectralConfig{Window: w, Estimator: e, Bands: analysis.DefaultBands()}, nil
}

// EngineConfig returns the coordinator settings.
func (c *Config) EngineConfig() (engine.Config, error) {
	spectral, err := c.SpectralConfig()
	if err != nil {
		return engine.Config{}, err
	}
	ec := engine.DefaultConfig()
	ec.BufferDuration = c.Analysis.BufferDuration
	ec.AnalysisWindow = c.Analysis.Window
	ec.Cadence = c.Analysis.Cadence
	ec.SilenceTimeout = c.Analysis.SilenceTimeout
	ec.FocusChannel = c.Analysis.FocusChannel
	ec.Filter = c.FilterConfig()
	ec.Spectral = spectral
	return ec, nil
}

// SyntheticConfig returns the generator settings: the configured components
// if any, otherwise the named preset.
func (c *Config) SyntheticConfig() (source.SyntheticConfig, error) {
	src := c.Source
	var sc source.SyntheticConfig
	switch {
	case len(src.Components) > 0:
		sc.Components = make([]source.Component, len(src.Components))
		for i, comp := range src.Components {
			sc.Components[i] = source.Component(comp)
		}
		sc.NoiseAmplitude = src.NoiseAmplitude
		sc.Seed = src.Seed
		sc.ChannelOffset = src.ChannelOffset
	case strings.EqualFold(src.Preset, DefaultPreset):
		sc = source.Meditation()
	default:
		return source.SyntheticConfig{}, fmt.Errorf("unknown synthetic preset %q", src.Preset)
	}
	sc.Duration = src.Duration
	sc.Realtime = src.Realtime
	return sc, nil
}

// RecorderConfig returns the EDF export settings.
func (c *Config) RecorderConfig() export.RecorderConfig {
	rc := export.DefaultRecorderConfig()
	rc.PatientID = c.Export.PatientID
	rc.RecordingID = c.Export.RecordingID
	rc.PhysicalMin = c.Export.PhysicalMin
	rc.PhysicalMax = c.Export.PhysicalMax
	rc.Prefiltering = fmt.Sprintf("HP:%gHz LP:%gHz N:%gHz", c.Filter.LowCutHz, c.Filter.HighCutHz, c.Filter.NotchHz)
	return rc
}
