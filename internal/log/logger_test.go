// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{" debug ", LevelDebug, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLevel(GetLevel())

	SetLevel(LevelWarn)
	if GetLevel() != LevelWarn {
		t.Fatalf("GetLevel() = %v, want WARN", GetLevel())
	}

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below WARN leaked into output:\n%s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "warn 3") {
		t.Errorf("warn message missing:\n%s", out)
	}
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "error 4") {
		t.Errorf("error message missing:\n%s", out)
	}
}

func TestWithCarriesFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLevel(GetLevel())

	SetLevel(LevelInfo)
	l := With("stream", "unicorn")
	l.Debugw("hidden")
	l.Infow("connected", "channels", 8)

	SetLevel(LevelDebug)
	l.Debugw("now visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at INFO level:\n%s", out)
	}
	for _, want := range []string{"connected", "unicorn", "channels", "now visible"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
