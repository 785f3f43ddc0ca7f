// SPDX-License-Identifier: MIT
/*
Package export writes processed samples to disk.

EDFRecorder stores a stream as an EDF file with one-second data records.
Samples are buffered until a record is complete; a trailing partial record
is discarded on Close because EDF records have a fixed length.
*/
package export

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"eegstream/internal/eeg"
	"eegstream/internal/log"

	"github.com/OpenPSG/edf"
)

// maxRecordBytes is the largest data record the EDF standard recommends.
const maxRecordBytes = 61440

// RecorderConfig describes the EDF header written by an EDFRecorder.
type RecorderConfig struct {
	PatientID    string
	RecordingID  string
	StartTime    time.Time
	PhysicalMin  float64 // µV mapped to the lowest digital value
	PhysicalMax  float64 // µV mapped to the highest digital value
	Prefiltering string
}

// DefaultRecorderConfig covers ±500 µV with 16-bit resolution.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		PatientID:   "X",
		RecordingID: "eegstream",
		PhysicalMin: -500,
		PhysicalMax: 500,
	}
}

// EDFRecorder writes samples of one stream into EDF data records.
type EDFRecorder struct {
	mu        sync.Mutex
	w         *edf.Writer
	closer    io.Closer
	stream    eeg.Stream
	cfg       RecorderConfig
	perRecord int
	pending   [][]float64
	fill      int
	records   int
	closed    bool
}

// CreateEDF creates (or truncates) path and records stream into it.
func CreateEDF(path string, stream eeg.Stream, cfg RecorderConfig) (*EDFRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create edf file: %w", err)
	}
	r, err := NewEDFRecorder(f, stream, cfg)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	log.Infof("Export: recording %q to %s", stream.Name, path)
	return r, nil
}

// NewEDFRecorder writes the EDF header for stream to w.
func NewEDFRecorder(w io.WriteSeeker, stream eeg.Stream, cfg RecorderConfig) (*EDFRecorder, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	if cfg.PhysicalMax <= cfg.PhysicalMin {
		return nil, fmt.Errorf("edf physical range [%.2f, %.2f] is empty", cfg.PhysicalMin, cfg.PhysicalMax)
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}

	perRecord := int(math.Round(stream.SampleRate))
	if perRecord*stream.ChannelCount*2 > maxRecordBytes {
		return nil, fmt.Errorf("edf record of %d channels x %d samples exceeds %d bytes",
			stream.ChannelCount, perRecord, maxRecordBytes)
	}

	signals := make([]edf.Signal, stream.ChannelCount)
	for i := range signals {
		signals[i] = edf.Signal{
			Label:             fit(stream.ChannelLabels[i], 16),
			TransducerType:    "EEG electrode",
			PhysicalDimension: "uV",
			PhysicalMin:       cfg.PhysicalMin,
			PhysicalMax:       cfg.PhysicalMax,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			Prefiltering:      fit(cfg.Prefiltering, 80),
			SamplesPerRecord:  perRecord,
		}
	}

	writer, err := edf.Create(w, edf.Header{
		Version:            edf.Version0,
		PatientID:          fit(cfg.PatientID, 80),
		RecordingID:        fit(cfg.RecordingID, 80),
		StartTime:          cfg.StartTime,
		DataRecordDuration: time.Second,
		SignalCount:        stream.ChannelCount,
		Signals:            signals,
	})
	if err != nil {
		return nil, fmt.Errorf("write edf header: %w", err)
	}

	pending := make([][]float64, stream.ChannelCount)
	for i := range pending {
		pending[i] = make([]float64, perRecord)
	}
	return &EDFRecorder{
		w:         writer,
		stream:    stream,
		cfg:       cfg,
		perRecord: perRecord,
		pending:   pending,
	}, nil
}

// fit truncates s to the width of a fixed-size EDF header field.
func fit(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s
}

// Write buffers one sample and flushes a data record when it is complete.
// Values outside the physical range are saturated.
func (r *EDFRecorder) Write(s eeg.Sample) error {
	if err := r.stream.Check(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("edf recorder is closed")
	}

	for ch, v := range s.Channels {
		r.pending[ch][r.fill] = r.saturate(v)
	}
	r.fill++
	if r.fill < r.perRecord {
		return nil
	}

	r.fill = 0
	if err := r.w.Write(r.pending); err != nil {
		return fmt.Errorf("write edf record %d: %w", r.records, err)
	}
	r.records++
	return nil
}

func (r *EDFRecorder) saturate(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < r.cfg.PhysicalMin:
		return r.cfg.PhysicalMin
	case v > r.cfg.PhysicalMax:
		return r.cfg.PhysicalMax
	}
	return v
}

// Run writes every sample received from samples until the channel closes
// or ctx is cancelled, then closes the recorder.
func (r *EDFRecorder) Run(ctx context.Context, samples <-chan eeg.Sample) error {
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("Export: closing %q recording: %v", r.stream.Name, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			if err := r.Write(s); err != nil {
				return err
			}
		}
	}
}

// Records returns how many complete data records were written.
func (r *EDFRecorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

// Close finalises the header with the record count and closes the file
// when the recorder created it. Close is idempotent.
func (r *EDFRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if r.fill > 0 {
		log.Debugf("Export: dropping %d samples of incomplete edf record", r.fill)
	}
	err := r.w.Close()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	if err != nil {
		return fmt.Errorf("close edf recording: %w", err)
	}
	log.Infof("Export: %q recording closed (%d records)", r.stream.Name, r.records)
	return nil
}
