// SPDX-License-Identifier: MIT
/*
Package engine wires the processing pipeline of one EEG stream.

	Ingest: validate -> raw buffer -> filter -> filtered buffer -> publish
	Cadence: filtered buffer -> band powers (all channels) -> classify focus -> publish

Ingestion is serialised by a mutex; analysis runs on its own goroutine and
only reads buffer snapshots, so it never touches filter memory. Subscribers
receive events over buffered channels and never block the pipeline.
*/
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"eegstream/internal/analysis"
	"eegstream/internal/buffer"
	"eegstream/internal/eeg"
	"eegstream/internal/filter"
	"eegstream/internal/log"

	"go.uber.org/zap"
)

// Stats is a snapshot of the coordinator counters.
type Stats struct {
	Ingested     uint64 `json:"ingested"`
	Rejected     uint64 `json:"rejected"`
	Cycles       uint64 `json:"cycles"`
	Skipped      uint64 `json:"skipped"`
	Insufficient uint64 `json:"insufficient"`
	Dropped      uint64 `json:"dropped"`
	Clipped      uint64 `json:"clipped"`
	Evicted      uint64 `json:"evicted"`
}

// Coordinator owns the buffers, filter and analyzers of one stream.
type Coordinator struct {
	stream eeg.Stream
	cfg    Config
	logger *zap.SugaredLogger

	ingestMu sync.Mutex
	raw      *buffer.SampleBuffer
	filtered *buffer.SampleBuffer
	stage    *filter.Stage

	analyzer   analysis.BandAnalyzer
	classifier analysis.StateClassifier
	columns    [][]float64 // reused by Analyze, guarded by busy

	focus    atomic.Int64
	busy     atomic.Bool
	closed   atomic.Bool
	status   atomic.Int32
	lastSeen atomic.Int64 // wall clock of the newest sample, unix nanos

	rawTopic      *topic[eeg.Sample]
	filteredTopic *topic[eeg.Sample]
	bandsTopic    *topic[[]eeg.BandPowers]
	classTopic    *topic[eeg.Classification]
	statusTopic   *topic[StatusEvent]

	ingested     atomic.Uint64
	rejected     atomic.Uint64
	cycles       atomic.Uint64
	skipped      atomic.Uint64
	insufficient atomic.Uint64

	mu       sync.Mutex // guards ticker and doneChan during Start/Disconnect
	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
}

// Connect validates the stream and builds its pipeline. Invalid stream
// metadata fails with eeg.ErrInvalidStream.
func Connect(stream eeg.Stream, cfg Config) (*Coordinator, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(stream.ChannelCount); err != nil {
		return nil, fmt.Errorf("stream %q: %w", stream.Name, err)
	}

	capacity := buffer.CapacityFor(stream.SampleRate, cfg.BufferDuration)
	raw, err := buffer.New(capacity, stream.ChannelCount)
	if err != nil {
		return nil, err
	}
	filtered, err := buffer.New(capacity, stream.ChannelCount)
	if err != nil {
		return nil, err
	}
	stage, err := filter.NewStage(stream, cfg.Filter)
	if err != nil {
		return nil, err
	}

	windowSize := stream.SamplesFor(cfg.AnalysisWindow)
	if windowSize < 2 {
		windowSize = 2
	}
	if windowSize > capacity {
		windowSize = capacity
	}
	analyzer, err := analysis.NewSpectralAnalyzer(stream.SampleRate, windowSize, cfg.Spectral)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", stream.Name, err)
	}

	c := &Coordinator{
		stream:        stream,
		cfg:           cfg,
		logger:        log.With("stream", stream.Name),
		raw:           raw,
		filtered:      filtered,
		stage:         stage,
		analyzer:      analyzer,
		classifier:    analysis.NewClassifier(cfg.Policy),
		rawTopic:      newTopic[eeg.Sample](cfg.SubscriberBuffer),
		filteredTopic: newTopic[eeg.Sample](cfg.SubscriberBuffer),
		bandsTopic:    newTopic[[]eeg.BandPowers](cfg.SubscriberBuffer),
		classTopic:    newTopic[eeg.Classification](cfg.SubscriberBuffer),
		statusTopic:   newTopic[StatusEvent](cfg.SubscriberBuffer),
	}
	c.focus.Store(int64(cfg.FocusChannel))
	c.status.Store(int32(StatusLive))
	c.lastSeen.Store(cfg.Now().UnixNano())

	c.logger.Infow("stream connected",
		"channels", stream.ChannelCount,
		"rate", stream.SampleRate,
		"buffer", capacity,
		"window", windowSize,
		"cadence", cfg.Cadence)
	return c, nil
}

// Stream returns the stream metadata.
func (c *Coordinator) Stream() eeg.Stream {
	return c.stream
}

// Status returns the current liveness of the stream.
func (c *Coordinator) Status() Status {
	return Status(c.status.Load())
}

// WindowSize is the number of filtered samples one analysis cycle needs.
func (c *Coordinator) WindowSize() int {
	return c.analyzer.WindowSize()
}

// Ingest runs one sample through the pipeline. A sample with the wrong
// channel count is rejected with a *eeg.ValidationError and leaves no trace.
func (c *Coordinator) Ingest(s eeg.Sample) error {
	if c.closed.Load() {
		return fmt.Errorf("ingest: %w", eeg.ErrDisconnected)
	}

	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("ingest: %w", eeg.ErrDisconnected)
	}
	if err := c.stream.Check(s); err != nil {
		c.rejected.Add(1)
		return err
	}

	if err := c.raw.Push(s); err != nil {
		return err
	}
	out, err := c.stage.Apply(s)
	if err != nil {
		return err
	}
	if err := c.filtered.Push(out); err != nil {
		return err
	}

	c.ingested.Add(1)
	c.lastSeen.Store(c.cfg.Now().UnixNano())
	if c.status.CompareAndSwap(int32(StatusStale), int32(StatusLive)) {
		c.logger.Infow("stream resumed")
		c.publishStatus(StatusLive, "samples resumed")
	}

	c.rawTopic.publish(s.Clone())
	c.filteredTopic.publish(out)
	return nil
}

// Analyze runs one analysis cycle over the newest filtered window. It
// returns eeg.ErrInsufficientData until a full window is buffered and
// ErrCycleBusy when another cycle is still running; neither publishes.
func (c *Coordinator) Analyze() (Result, error) {
	if c.closed.Load() {
		return Result{}, fmt.Errorf("analyze: %w", eeg.ErrDisconnected)
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.skipped.Add(1)
		return Result{}, ErrCycleBusy
	}
	defer c.busy.Store(false)

	size := c.analyzer.WindowSize()
	columns, ts, err := c.filtered.Window(c.columns, size)
	if err != nil {
		if errors.Is(err, eeg.ErrInsufficientData) {
			c.insufficient.Add(1)
		}
		return Result{}, fmt.Errorf("analyze: %w", err)
	}
	c.columns = columns

	bands := make([]eeg.BandPowers, c.stream.ChannelCount)
	for ch := range bands {
		p, err := c.analyzer.Analyze(ch, ts, columns[ch])
		if err != nil {
			return Result{}, fmt.Errorf("analyze channel %d: %w", ch, err)
		}
		bands[ch] = p
	}

	focus := int(c.focus.Load())
	res := Result{
		Timestamp:      ts,
		Bands:          bands,
		Classification: c.classifier.Classify(bands[focus]),
	}
	c.cycles.Add(1)

	c.bandsTopic.publish(bands)
	c.classTopic.publish(res.Classification)
	return res, nil
}

// RecentRaw returns up to n of the newest unfiltered samples, oldest first.
// It is safe to call while samples are being ingested.
func (c *Coordinator) RecentRaw(n int) []eeg.Sample {
	return c.raw.Recent(n)
}

// RecentFiltered returns up to n of the newest filtered samples, oldest
// first. It is safe to call while samples are being ingested.
func (c *Coordinator) RecentFiltered(n int) []eeg.Sample {
	return c.filtered.Recent(n)
}

// LatestFiltered returns the newest filtered sample, or false when none is
// buffered.
func (c *Coordinator) LatestFiltered() (eeg.Sample, bool) {
	return c.filtered.Latest()
}

// SetFocusChannel selects the channel whose band powers drive
// classification.
func (c *Coordinator) SetFocusChannel(ch int) error {
	if ch < 0 || ch >= c.stream.ChannelCount {
		return fmt.Errorf("focus channel %d out of range [0,%d)", ch, c.stream.ChannelCount)
	}
	c.focus.Store(int64(ch))
	return nil
}

// FocusChannel returns the channel that drives classification.
func (c *Coordinator) FocusChannel() int {
	return int(c.focus.Load())
}

// Start launches the cadence goroutine, which runs an analysis cycle and
// the silence watchdog on every tick. Ticks missed while a cycle runs are
// dropped by the ticker. Calling Start on a running coordinator is a no-op.
func (c *Coordinator) Start() error {
	if c.closed.Load() {
		return fmt.Errorf("start: %w", eeg.ErrDisconnected)
	}

	c.mu.Lock()
	if c.ticker != nil {
		c.mu.Unlock()
		c.logger.Warnw("start called but cadence already running")
		return nil
	}
	c.ticker = time.NewTicker(c.cfg.Cadence)
	c.doneChan = make(chan struct{})
	ticker, done := c.ticker, c.doneChan
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Debugw("cadence started", "interval", c.cfg.Cadence)
		for {
			select {
			case <-ticker.C:
				c.tick()
			case <-done:
				c.logger.Debugw("cadence stopped")
				return
			}
		}
	}()
	return nil
}

func (c *Coordinator) tick() {
	c.checkSilence()

	_, err := c.Analyze()
	switch {
	case err == nil:
	case errors.Is(err, eeg.ErrInsufficientData):
		// Startup: the window is still filling.
	case errors.Is(err, ErrCycleBusy):
		c.logger.Debugw("analysis cycle skipped", "reason", err)
	case errors.Is(err, eeg.ErrDisconnected):
	default:
		c.logger.Errorw("analysis cycle failed", "error", err)
	}
}

// checkSilence marks the stream stale when no sample arrived within the
// silence timeout.
func (c *Coordinator) checkSilence() {
	last := time.Unix(0, c.lastSeen.Load())
	silent := c.cfg.Now().Sub(last)
	if silent < c.cfg.SilenceTimeout {
		return
	}
	if c.status.CompareAndSwap(int32(StatusLive), int32(StatusStale)) {
		c.logger.Warnw("stream stale", "silence", silent, "error", eeg.ErrUpstreamDisconnect)
		c.publishStatus(StatusStale, fmt.Sprintf("no samples for %s", silent.Round(time.Millisecond)))
	}
}

func (c *Coordinator) publishStatus(s Status, reason string) {
	c.statusTopic.publish(StatusEvent{
		Stream: c.stream.Name,
		Status: s,
		At:     c.cfg.Now(),
		Reason: reason,
	})
}

// stop halts the cadence goroutine and waits for it to exit.
func (c *Coordinator) stop() {
	c.mu.Lock()
	if c.ticker == nil {
		c.mu.Unlock()
		return
	}
	close(c.doneChan)
	c.ticker.Stop()
	c.ticker = nil
	c.mu.Unlock()

	c.wg.Wait()
}

// Disconnect stops the cadence, closes every subscription channel and
// releases buffers and filter memory. After it returns Ingest and Analyze
// fail with eeg.ErrDisconnected and no further events are delivered.
// Disconnect is idempotent.
func (c *Coordinator) Disconnect() {
	c.ingestMu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.ingestMu.Unlock()
		return
	}
	c.ingestMu.Unlock()

	c.stop()

	// Wait out a cycle started by a direct Analyze call.
	for !c.busy.CompareAndSwap(false, true) {
		time.Sleep(time.Millisecond)
	}

	c.status.Store(int32(StatusDisconnected))
	c.publishStatus(StatusDisconnected, "disconnected")

	c.rawTopic.close()
	c.filteredTopic.close()
	c.bandsTopic.close()
	c.classTopic.close()
	c.statusTopic.close()

	c.raw.Release()
	c.filtered.Release()
	c.stage.Reset()

	st := c.Stats()
	c.logger.Infow("stream disconnected",
		"ingested", st.Ingested,
		"rejected", st.Rejected,
		"cycles", st.Cycles,
		"dropped", st.Dropped)
}

// Closed reports whether Disconnect was called.
func (c *Coordinator) Closed() bool {
	return c.closed.Load()
}

// Stats returns a snapshot of the coordinator counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Ingested:     c.ingested.Load(),
		Rejected:     c.rejected.Load(),
		Cycles:       c.cycles.Load(),
		Skipped:      c.skipped.Load(),
		Insufficient: c.insufficient.Load(),
		Dropped: c.rawTopic.dropped.Load() +
			c.filteredTopic.dropped.Load() +
			c.bandsTopic.dropped.Load() +
			c.classTopic.dropped.Load() +
			c.statusTopic.dropped.Load(),
		Clipped: c.stage.Clipped(),
		Evicted: c.raw.Evicted(),
	}
}

// SubscribeRaw delivers every accepted sample before filtering.
func (c *Coordinator) SubscribeRaw() *Subscription[eeg.Sample] {
	return c.rawTopic.subscribe()
}

// SubscribeFiltered delivers every filtered sample.
func (c *Coordinator) SubscribeFiltered() *Subscription[eeg.Sample] {
	return c.filteredTopic.subscribe()
}

// SubscribeBands delivers the band powers of all channels once per
// analysis cycle. The slice is shared between subscribers and must not be
// modified.
func (c *Coordinator) SubscribeBands() *Subscription[[]eeg.BandPowers] {
	return c.bandsTopic.subscribe()
}

// SubscribeClassification delivers the focus channel classification once
// per analysis cycle.
func (c *Coordinator) SubscribeClassification() *Subscription[eeg.Classification] {
	return c.classTopic.subscribe()
}

// SubscribeStatus delivers liveness transitions.
func (c *Coordinator) SubscribeStatus() *Subscription[StatusEvent] {
	return c.statusTopic.subscribe()
}
