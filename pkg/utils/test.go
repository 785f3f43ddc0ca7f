// SPDX-License-Identifier: MIT
//
// Package utils holds signal generators and fakes shared by tests.
package utils

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// MockTransport records everything it is sent instead of transmitting it.
// It satisfies the transport interface and is safe for concurrent use.
type MockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

// Send stores data for later inspection.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.sent...)
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateSineWave returns size samples of amplitude*sin(2*pi*frequency*t).
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// GenerateComplexWave sums one sinusoid per (frequency, amplitude) pair.
func GenerateComplexWave(size int, sampleRate float64, frequencies, amplitudes []float64) []float64 {
	buffer := make([]float64, size)
	for k, m := 0, min(len(frequencies), len(amplitudes)); k < m; k++ {
		floats.Add(buffer, GenerateSineWave(size, sampleRate, frequencies[k], amplitudes[k]))
	}
	return buffer
}

// PeakAmplitude estimates the amplitude of a sinusoid as sqrt(2) * RMS.
func PeakAmplitude(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt2 * math.Sqrt(floats.Dot(x, x)/float64(len(x)))
}

// FindPeakBin returns the index of the largest value in [startBin, endBin],
// clamping the range to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
