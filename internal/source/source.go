// SPDX-License-Identifier: MIT
/*
Package source provides the sample sources a stream coordinator can be fed
from: a deterministic synthetic generator, an EDF recording replay and an
in-memory replay used by tests.
*/
package source

import (
	"context"
	"io"
	"sync"

	"eegstream/internal/eeg"
)

// Source produces samples of one stream in arrival order.
type Source interface {
	// Info returns the metadata of the stream the source produces.
	Info() eeg.Stream
	// Next blocks until the next sample is available. It returns io.EOF when
	// the source is exhausted and ctx.Err() when ctx is cancelled.
	Next(ctx context.Context) (eeg.Sample, error)
	// Close releases the source. Next fails with io.EOF afterwards.
	Close() error
}

// Replay serves a fixed list of samples.
type Replay struct {
	mu      sync.Mutex
	stream  eeg.Stream
	samples []eeg.Sample
	pos     int
}

// NewReplay returns a source that yields samples in order and then io.EOF.
// Samples are not validated against stream, so a replay can carry
// deliberately malformed input.
func NewReplay(stream eeg.Stream, samples []eeg.Sample) *Replay {
	out := make([]eeg.Sample, len(samples))
	for i, s := range samples {
		out[i] = s.Clone()
	}
	return &Replay{stream: stream, samples: out}
}

func (r *Replay) Info() eeg.Stream {
	return r.stream
}

func (r *Replay) Next(ctx context.Context) (eeg.Sample, error) {
	if err := ctx.Err(); err != nil {
		return eeg.Sample{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.samples) {
		return eeg.Sample{}, io.EOF
	}
	s := r.samples[r.pos]
	r.pos++
	return s, nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = len(r.samples)
	return nil
}

var _ Source = (*Replay)(nil)
