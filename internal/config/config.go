// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults for a freshly loaded configuration.
const (
	DefaultLogLevel       = "info"
	DefaultStreamName     = "Simulated EEG"
	DefaultStreamType     = "EEG"
	DefaultChannelCount   = 8
	DefaultSampleRate     = 250.0
	DefaultSourceKind     = SourceSynthetic
	DefaultPreset         = "meditation"
	DefaultWebSocketAddr  = ":8080"
	DefaultUDPTarget      = "127.0.0.1:9090"
	DefaultUDPInterval    = 200 * time.Millisecond
	DefaultKafkaTopic     = "eeg-events"
	DefaultSampleEvery    = 1
	DefaultPhysicalRangeU = 500.0 // ±µV covered by recordings

	// Stream limits.
	MaxChannelCount = 256
	MaxSampleRate   = 16000.0
)

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceEDF       = "edf"
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Stream    StreamConfig    `yaml:"stream"`
	Filter    FilterConfig    `yaml:"filter"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Source    SourceConfig    `yaml:"source"`
	Transport TransportConfig `yaml:"transport"`
	Export    ExportConfig    `yaml:"export"`
}

// StreamConfig describes the stream the source produces. For EDF replay
// the channel count must not exceed the signals in the file.
type StreamConfig struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	SourceID     string   `yaml:"source_id"`
	ChannelCount int      `yaml:"channel_count"`
	SampleRate   float64  `yaml:"sample_rate"`
	Labels       []string `yaml:"labels"`
}

// FilterConfig holds the pre-processing cascade settings.
type FilterConfig struct {
	LowCutHz         float64 `yaml:"low_cut_hz"`
	HighCutHz        float64 `yaml:"high_cut_hz"`
	NotchHz          float64 `yaml:"notch_hz"` // 0 disables the notch
	NotchHalfWidthHz float64 `yaml:"notch_half_width_hz"`
	ClampMicrovolts  float64 `yaml:"clamp_microvolts"`
	Order            int     `yaml:"order"`
}

// AnalysisConfig tunes spectral analysis and classification.
type AnalysisConfig struct {
	Window         time.Duration `yaml:"window"`
	Cadence        time.Duration `yaml:"cadence"`
	BufferDuration time.Duration `yaml:"buffer_duration"`
	WindowFn       string        `yaml:"window_fn"` // e.g. "hann", "blackman", "rectangular"
	Estimator      string        `yaml:"estimator"` // "periodogram" or "welch"
	FocusChannel   int           `yaml:"focus_channel"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
}

// SourceConfig selects where samples come from.
type SourceConfig struct {
	Kind     string        `yaml:"kind"` // "synthetic" or "edf"
	Path     string        `yaml:"path"` // EDF file for kind "edf"
	Realtime bool          `yaml:"realtime"`
	Duration time.Duration `yaml:"duration"` // 0 runs until interrupted

	// Synthetic signal. Components replace the preset when set.
	Preset         string            `yaml:"preset"`
	Components     []ComponentConfig `yaml:"components"`
	NoiseAmplitude float64           `yaml:"noise_amplitude"`
	Seed           int64             `yaml:"seed"`
	ChannelOffset  time.Duration     `yaml:"channel_offset"`
}

// ComponentConfig is one sinusoid of a synthetic signal.
type ComponentConfig struct {
	FrequencyHz   float64 `yaml:"frequency_hz"`
	Amplitude     float64 `yaml:"amplitude"`
	Phase         float64 `yaml:"phase"`
	AmplitudeStep float64 `yaml:"amplitude_step"`
}

// TransportConfig holds the outbound consumers. Each is enabled by setting
// its address.
type TransportConfig struct {
	WebSocketAddr    string        `yaml:"websocket_addr"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	KafkaBrokers     []string      `yaml:"kafka_brokers"`
	KafkaTopic       string        `yaml:"kafka_topic"`
	ForwardRaw       bool          `yaml:"forward_raw"`
	ForwardFiltered  bool          `yaml:"forward_filtered"`
	SampleEvery      int           `yaml:"sample_every"`
	LogEvents        bool          `yaml:"log_events"`
}

// ExportConfig controls EDF recording of the filtered stream.
type ExportConfig struct {
	EDFPath     string  `yaml:"edf_path"` // empty disables recording
	PatientID   string  `yaml:"patient_id"`
	RecordingID string  `yaml:"recording_id"`
	PhysicalMin float64 `yaml:"physical_min"`
	PhysicalMax float64 `yaml:"physical_max"`
}

// Default returns the built-in configuration: an 8 channel 250 Hz
// simulated meditation stream served over WebSocket.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Stream: StreamConfig{
			Name:         DefaultStreamName,
			Type:         DefaultStreamType,
			SourceID:     "simulated-eeg",
			ChannelCount: DefaultChannelCount,
			SampleRate:   DefaultSampleRate,
		},
		Filter: FilterConfig{
			LowCutHz:         1,
			HighCutHz:        40,
			NotchHz:          50,
			NotchHalfWidthHz: 2,
			ClampMicrovolts:  200,
			Order:            4,
		},
		Analysis: AnalysisConfig{
			Window:         time.Second,
			Cadence:        200 * time.Millisecond,
			BufferDuration: 4 * time.Second,
			WindowFn:       "hann",
			Estimator:      "periodogram",
			SilenceTimeout: 5 * time.Second,
		},
		Source: SourceConfig{
			Kind:     DefaultSourceKind,
			Realtime: true,
			Preset:   DefaultPreset,
		},
		Transport: TransportConfig{
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPInterval,
			KafkaTopic:       DefaultKafkaTopic,
			SampleEvery:      DefaultSampleEvery,
		},
		Export: ExportConfig{
			PatientID:   "X",
			RecordingID: "eegstream",
			PhysicalMin: -DefaultPhysicalRangeU,
			PhysicalMax: DefaultPhysicalRangeU,
		},
	}
}
