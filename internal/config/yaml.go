// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"eegstream/internal/analysis"
	"eegstream/internal/log"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it looks for "config.yaml" in the working directory and falls back
// to the built-in defaults. Environment overrides (ENV_*) are applied last,
// then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel)
	}

	s := c.Stream
	if s.ChannelCount <= 0 || s.ChannelCount > MaxChannelCount {
		add("stream.channel_count must be in [1, %d], got %d", MaxChannelCount, s.ChannelCount)
	}
	if !(s.SampleRate > 0 && s.SampleRate <= MaxSampleRate) {
		add("stream.sample_rate must be in (0, %g], got %g", MaxSampleRate, s.SampleRate)
	} else if err := c.FilterConfig().Validate(s.SampleRate); err != nil {
		add("filter: %w", err)
	}

	a := c.Analysis
	if a.Window <= 0 || a.Cadence <= 0 || a.BufferDuration <= 0 || a.SilenceTimeout <= 0 {
		add("analysis durations must be positive")
	} else if a.Window > a.BufferDuration {
		add("analysis.window %s exceeds analysis.buffer_duration %s", a.Window, a.BufferDuration)
	}
	if _, err := analysis.ParseWindowFunc(a.WindowFn); err != nil {
		add("analysis.window_fn: %w", err)
	}
	if _, err := analysis.ParseEstimator(a.Estimator); err != nil {
		add("analysis.estimator: %w", err)
	}
	if a.FocusChannel < 0 || (s.ChannelCount > 0 && a.FocusChannel >= s.ChannelCount) {
		add("analysis.focus_channel %d out of range for %d channels", a.FocusChannel, s.ChannelCount)
	}

	switch c.Source.Kind {
	case SourceSynthetic:
		if len(c.Source.Components) == 0 && !strings.EqualFold(c.Source.Preset, DefaultPreset) {
			add("source.preset %q is unknown and no components are set", c.Source.Preset)
		}
	case SourceEDF:
		if c.Source.Path == "" {
			add("source.path must be set for an edf source")
		}
	default:
		add("source.kind must be %q or %q, got %q", SourceSynthetic, SourceEDF, c.Source.Kind)
	}
	if c.Source.Duration < 0 {
		add("source.duration must not be negative")
	}

	t := c.Transport
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			add("transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			add("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if len(t.KafkaBrokers) > 0 && t.KafkaTopic == "" {
		add("transport.kafka_topic must be set when brokers are configured")
	}
	if t.SampleEvery < 0 {
		add("transport.sample_every must not be negative")
	}

	if c.Export.PhysicalMin >= c.Export.PhysicalMax {
		add("export.physical_min must be below export.physical_max")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparseable values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	str := func(key string, dst *string) {
		if val, ok := os.LookupEnv(key); ok {
			*dst = val
			log.Infof("configuration: Overriding %s from env: %s", key, val)
		}
	}
	boolean := func(key string, dst *bool) {
		if val, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				log.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
				return
			}
			*dst = b
			log.Infof("configuration: Overriding %s from env: %v", key, b)
		}
	}
	duration := func(key string, dst *time.Duration) {
		if val, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				log.Warnf("configuration: Ignoring %s=%q: %v", key, val, err)
				return
			}
			*dst = d
			log.Infof("configuration: Overriding %s from env: %s", key, d)
		}
	}

	str("ENV_LOG_LEVEL", &c.LogLevel)
	str("ENV_SOURCE_KIND", &c.Source.Kind)
	str("ENV_SOURCE_PATH", &c.Source.Path)
	boolean("ENV_SOURCE_REALTIME", &c.Source.Realtime)
	duration("ENV_SOURCE_DURATION", &c.Source.Duration)

	if val, ok := os.LookupEnv("ENV_FOCUS_CHANNEL"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Analysis.FocusChannel = n
			log.Infof("configuration: Overriding ENV_FOCUS_CHANNEL from env: %d", n)
		} else {
			log.Warnf("configuration: Ignoring ENV_FOCUS_CHANNEL=%q: %v", val, err)
		}
	}

	str("ENV_WS_ADDR", &c.Transport.WebSocketAddr)
	boolean("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	str("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	duration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)
	if val, ok := os.LookupEnv("ENV_KAFKA_BROKERS"); ok {
		c.Transport.KafkaBrokers = SplitList(val)
		log.Infof("configuration: Overriding ENV_KAFKA_BROKERS from env: %v", c.Transport.KafkaBrokers)
	}
	str("ENV_KAFKA_TOPIC", &c.Transport.KafkaTopic)

	str("ENV_EDF_PATH", &c.Export.EDFPath)
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
