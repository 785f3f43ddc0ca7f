// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"eegstream/internal/eeg"
	"eegstream/internal/log"

	"github.com/OpenPSG/edf"
)

// edfChunk is how many samples per channel are read from disk at a time.
const edfChunk = 256

// EDFSource replays the first ChannelCount signals of an EDF/EDF+
// recording. The EDF reader does not expose the file header, so the stream
// metadata (rate, labels) is supplied by the caller.
type EDFSource struct {
	mu       sync.Mutex
	stream   eeg.Stream
	closer   io.Closer
	signals  []*edf.SignalReader
	chunk    [][]float64
	avail    int
	pos      int
	next     int
	eof      bool
	realtime bool
	start    time.Time
}

// OpenEDF opens the recording at path.
func OpenEDF(path string, stream eeg.Stream, realtime bool) (*EDFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edf recording: %w", err)
	}
	src, err := NewEDFSource(f, stream, realtime)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	src.closer = f
	log.Infof("Source: replaying %s (%d channels at %.1f Hz, realtime: %v)", path, stream.ChannelCount, stream.SampleRate, realtime)
	return src, nil
}

// NewEDFSource replays an EDF recording read from r.
func NewEDFSource(r io.ReadSeeker, stream eeg.Stream, realtime bool) (*EDFSource, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	reader, err := edf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("read edf header: %w", err)
	}

	signals := make([]*edf.SignalReader, stream.ChannelCount)
	chunk := make([][]float64, stream.ChannelCount)
	for i := range signals {
		sr, err := reader.Signal(i)
		if err != nil {
			return nil, fmt.Errorf("%w: edf signal %d: %v", eeg.ErrInvalidStream, i, err)
		}
		signals[i] = sr
		chunk[i] = make([]float64, edfChunk)
	}

	return &EDFSource{
		stream:   stream,
		signals:  signals,
		chunk:    chunk,
		realtime: realtime,
	}, nil
}

func (s *EDFSource) Info() eeg.Stream {
	return s.stream
}

func (s *EDFSource) Next(ctx context.Context) (eeg.Sample, error) {
	if err := ctx.Err(); err != nil {
		return eeg.Sample{}, err
	}

	s.mu.Lock()
	if s.pos >= s.avail {
		if err := s.fill(); err != nil {
			s.mu.Unlock()
			return eeg.Sample{}, err
		}
	}

	values := make([]float64, s.stream.ChannelCount)
	for ch := range values {
		values[ch] = s.chunk[ch][s.pos]
	}
	s.pos++
	n := s.next
	s.next++
	if s.start.IsZero() {
		s.start = time.Now()
	}
	start := s.start
	s.mu.Unlock()

	ts := timestampOf(n, s.stream.SampleRate)
	if s.realtime {
		if err := sleepUntil(ctx, start.Add(ts)); err != nil {
			return eeg.Sample{}, err
		}
	}
	return eeg.Sample{Timestamp: ts, Channels: values}, nil
}

// fill reads the next chunk of every channel. Channels are truncated to the
// shortest one. Caller holds s.mu.
func (s *EDFSource) fill() error {
	if s.eof {
		return io.EOF
	}

	avail := -1
	for ch, sr := range s.signals {
		n, err := sr.Read(s.chunk[ch])
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read edf signal %d: %w", ch, err)
		}
		if errors.Is(err, io.EOF) {
			s.eof = true
		}
		if avail < 0 || n < avail {
			avail = n
		}
	}

	s.pos, s.avail = 0, avail
	if avail <= 0 {
		s.eof = true
		return io.EOF
	}
	return nil
}

func (s *EDFSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eof = true
	s.pos, s.avail = 0, 0
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}

var _ Source = (*EDFSource)(nil)
