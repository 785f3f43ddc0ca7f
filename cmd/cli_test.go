// SPDX-License-Identifier: MIT
package cmd

import (
	"testing"
	"time"

	"eegstream/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Defaults(t *testing.T) {
	opts, err := ParseArgs(nil)
	require.NoError(t, err)
	require.NotNil(t, opts.Config)
	assert.Empty(t, opts.Command)
	assert.Equal(t, config.SourceSynthetic, opts.Config.Source.Kind)
	assert.Equal(t, config.DefaultWebSocketAddr, opts.Config.Transport.WebSocketAddr)
}

func TestParseArgs_FlagsOverrideConfig(t *testing.T) {
	opts, err := ParseArgs([]string{
		"--edf", "session.edf",
		"--ws", "",
		"--udp", "127.0.0.1:9999",
		"--kafka-brokers", "a:9092,b:9092",
		"--kafka-topic", "eeg",
		"--record", "out.edf",
		"--duration", "5s",
		"-v",
	})
	require.NoError(t, err)
	cfg := opts.Config
	assert.Equal(t, config.SourceEDF, cfg.Source.Kind)
	assert.Equal(t, "session.edf", cfg.Source.Path)
	assert.Empty(t, cfg.Transport.WebSocketAddr)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Transport.UDPTargetAddress)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Transport.KafkaBrokers)
	assert.Equal(t, "eeg", cfg.Transport.KafkaTopic)
	assert.Equal(t, "out.edf", cfg.Export.EDFPath)
	assert.Equal(t, 5*time.Second, cfg.Source.Duration)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseArgs_Commands(t *testing.T) {
	for _, c := range []string{CommandVersion, CommandDevices} {
		opts, err := ParseArgs([]string{c})
		require.NoError(t, err)
		assert.Equal(t, c, opts.Command)
		assert.Nil(t, opts.Config)
	}
}

func TestParseArgs_Invalid(t *testing.T) {
	tests := [][]string{
		{"--source", "lsl"},
		{"--duration", "-1s"},
		{"--config", "missing.yaml"},
		{"--unknown"},
	}
	for _, args := range tests {
		_, err := ParseArgs(args)
		assert.Error(t, err, "args %v", args)
	}
}
