// SPDX-License-Identifier: MIT
/*
Package buffer implements the bounded sample history kept for each stream.

A SampleBuffer is a fixed-capacity ring of samples. Pushing into a full
buffer evicts the oldest sample, so the buffer never grows beyond the
capacity chosen at construction.

Thread Safety:
- One writer (the stream coordinator) and any number of readers
- Readers receive copies, never views into the ring
*/
package buffer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"eegstream/internal/eeg"
)

// DefaultDuration is the history kept per stream unless configured otherwise.
const DefaultDuration = 4 * time.Second

// SampleBuffer is a FIFO ring of samples for one stream.
type SampleBuffer struct {
	mu       sync.RWMutex
	ring     []eeg.Sample
	head     int // index of the oldest sample
	size     int
	channels int
	evicted  uint64
}

// New creates a buffer holding at most capacity samples of channels channels.
func New(capacity, channels int) (*SampleBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer capacity must be positive, got %d", capacity)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("buffer channel count must be positive, got %d", channels)
	}
	return &SampleBuffer{
		ring:     make([]eeg.Sample, capacity),
		channels: channels,
	}, nil
}

// CapacityFor returns the number of samples covering d at sampleRate.
func CapacityFor(sampleRate float64, d time.Duration) int {
	n := int(math.Ceil(sampleRate * d.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}

// Push appends s, evicting the oldest sample when the buffer is full.
// A sample with the wrong channel count is rejected and the buffer is left
// untouched.
func (b *SampleBuffer) Push(s eeg.Sample) error {
	if s.Len() != b.channels {
		return &eeg.ValidationError{Expected: b.channels, Got: s.Len()}
	}
	s = s.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ring == nil {
		return fmt.Errorf("push: %w", eeg.ErrDisconnected)
	}

	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.head+b.size)%capacity] = s
		b.size++
		return nil
	}

	// Full: overwrite the oldest slot and advance head.
	b.ring[b.head] = s
	b.head = (b.head + 1) % capacity
	b.evicted++
	return nil
}

// Recent returns up to n of the newest samples, oldest first. The result is
// a deep copy and stays valid after further pushes.
func (b *SampleBuffer) Recent(n int) []eeg.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]eeg.Sample, n)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.ring[(start+i)%len(b.ring)].Clone()
	}
	return out
}

// Latest returns a copy of the newest sample, or false when the buffer is
// empty.
func (b *SampleBuffer) Latest() (eeg.Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return eeg.Sample{}, false
	}
	return b.ring[(b.head+b.size-1)%len(b.ring)].Clone(), true
}

// Window copies the newest n samples into dst as one column per channel
// and returns the filled columns together with the timestamp of the newest
// sample. All columns come from the same snapshot. dst is reused when it has
// room. It fails with eeg.ErrInsufficientData while fewer than n samples are
// buffered.
func (b *SampleBuffer) Window(dst [][]float64, n int) ([][]float64, time.Duration, error) {
	if n < 1 {
		return nil, 0, fmt.Errorf("window length must be positive, got %d", n)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size < n {
		return nil, 0, fmt.Errorf("window of %d samples, have %d: %w", n, b.size, eeg.ErrInsufficientData)
	}
	if cap(dst) < b.channels {
		dst = make([][]float64, b.channels)
	}
	dst = dst[:b.channels]
	for ch := range dst {
		if cap(dst[ch]) < n {
			dst[ch] = make([]float64, n)
		}
		dst[ch] = dst[ch][:n]
	}

	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		for ch, v := range b.ring[(start+i)%len(b.ring)].Channels {
			dst[ch][i] = v
		}
	}
	newest := b.ring[(b.head+b.size-1)%len(b.ring)].Timestamp
	return dst, newest, nil
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the fixed capacity, or 0 after Release.
func (b *SampleBuffer) Cap() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ring)
}

// Evicted returns how many samples were dropped to honour the capacity.
func (b *SampleBuffer) Evicted() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}

// Release drops the storage. Later pushes fail with eeg.ErrDisconnected.
func (b *SampleBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring = nil
	b.head, b.size = 0, 0
}
