// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"eegstream/internal/eeg"
	"eegstream/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 250.0

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testStream(t *testing.T, channels int) eeg.Stream {
	t.Helper()
	s, err := eeg.NewStream("test", channels, testRate, nil)
	require.NoError(t, err)
	return s
}

func connect(t *testing.T, channels int, cfg Config) *Coordinator {
	t.Helper()
	c, err := Connect(testStream(t, channels), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

// tones builds n samples where channel ch carries the sum of the
// components returned by comps(ch).
func tones(n, channels int, comps func(ch int) []source.Component) []eeg.Sample {
	out := make([]eeg.Sample, n)
	for i := range out {
		tm := float64(i) / testRate
		values := make([]float64, channels)
		for ch := range values {
			for _, c := range comps(ch) {
				values[ch] += c.Amplitude * math.Sin(2*math.Pi*c.FrequencyHz*tm)
			}
		}
		out[i] = eeg.NewSample(time.Duration(i)*4*time.Millisecond, values)
	}
	return out
}

func alphaOnly(int) []source.Component {
	return []source.Component{{FrequencyHz: 10, Amplitude: 50}}
}

func ingestAll(t *testing.T, c *Coordinator, samples []eeg.Sample) {
	t.Helper()
	for _, s := range samples {
		require.NoError(t, c.Ingest(s))
	}
}

func TestConnect_InvalidStream(t *testing.T) {
	_, err := Connect(eeg.Stream{Name: "bad", ChannelCount: 0, SampleRate: 250}, DefaultConfig())
	assert.ErrorIs(t, err, eeg.ErrInvalidStream)

	_, err = Connect(eeg.Stream{Name: "bad", ChannelCount: 2, SampleRate: -1, ChannelLabels: []string{"a", "b"}}, DefaultConfig())
	assert.ErrorIs(t, err, eeg.ErrInvalidStream)

	cfg := DefaultConfig()
	cfg.FocusChannel = 4
	_, err = Connect(testStream(t, 4), cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.AnalysisWindow = 10 * time.Second
	_, err = Connect(testStream(t, 4), cfg)
	assert.Error(t, err)
}

func TestAnalyze_AlphaDominatesEndToEnd(t *testing.T) {
	c := connect(t, 8, DefaultConfig())
	samples := tones(250, 8, alphaOnly)

	ingestAll(t, c, samples[:249])
	_, err := c.Analyze()
	require.ErrorIs(t, err, eeg.ErrInsufficientData)

	require.NoError(t, c.Ingest(samples[249]))
	res, err := c.Analyze()
	require.NoError(t, err)

	require.Len(t, res.Bands, 8)
	assert.Equal(t, samples[249].Timestamp, res.Timestamp)
	for ch, p := range res.Bands {
		assert.Equal(t, ch, p.Channel)
		for _, b := range []eeg.Band{eeg.Delta, eeg.Theta, eeg.Beta, eeg.Gamma} {
			assert.Greater(t, p.Alpha, p.Get(b), "channel %d: alpha must exceed %s", ch, b)
		}
	}
	assert.Equal(t, 0, res.Classification.Channel)

	st := c.Stats()
	assert.Equal(t, uint64(250), st.Ingested)
	assert.Equal(t, uint64(1), st.Cycles)
	assert.Equal(t, uint64(1), st.Insufficient)
}

func TestAnalyze_FocusChannelDrivesClassification(t *testing.T) {
	c := connect(t, 3, DefaultConfig())
	ingestAll(t, c, tones(500, 3, func(ch int) []source.Component {
		switch ch {
		case 0:
			return []source.Component{{FrequencyHz: 10, Amplitude: 50}, {FrequencyHz: 6, Amplitude: 40}, {FrequencyHz: 20, Amplitude: 5}}
		case 1:
			return []source.Component{{FrequencyHz: 20, Amplitude: 60}, {FrequencyHz: 10, Amplitude: 5}}
		default:
			return []source.Component{{FrequencyHz: 10, Amplitude: 50}, {FrequencyHz: 20, Amplitude: 5}}
		}
	}))

	tests := []struct {
		focus   int
		label   eeg.StateLabel
		quality int
	}{
		{0, eeg.DeepState, 90},
		{1, eeg.ActiveState, 40},
		{2, eeg.RelaxedFocus, 70},
	}
	for _, tt := range tests {
		require.NoError(t, c.SetFocusChannel(tt.focus))
		res, err := c.Analyze()
		require.NoError(t, err)
		assert.Equal(t, tt.focus, res.Classification.Channel)
		assert.Equal(t, tt.label, res.Classification.Label, "focus %d", tt.focus)
		assert.Equal(t, tt.quality, res.Classification.Quality)
	}

	assert.Error(t, c.SetFocusChannel(3))
	assert.Error(t, c.SetFocusChannel(-1))
	assert.Equal(t, 2, c.FocusChannel())
}

func TestIngest_RejectsWrongChannelCount(t *testing.T) {
	c := connect(t, 4, DefaultConfig())
	filtered := c.SubscribeFiltered()

	err := c.Ingest(eeg.NewSample(0, []float64{1, 2, 3}))
	var verr *eeg.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 4, verr.Expected)

	require.NoError(t, c.Ingest(eeg.NewSample(0, []float64{1, 2, 3, 4})))

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Rejected)
	assert.Equal(t, uint64(1), st.Ingested)
	assert.Len(t, filtered.C(), 1)
}

func TestSubscriptions_DeliverRawAndFiltered(t *testing.T) {
	c := connect(t, 2, DefaultConfig())
	raw := c.SubscribeRaw()
	filtered := c.SubscribeFiltered()

	in := eeg.NewSample(8*time.Millisecond, []float64{100, -100})
	require.NoError(t, c.Ingest(in))

	r := <-raw.C()
	assert.Equal(t, in, r)
	f := <-filtered.C()
	assert.Equal(t, in.Timestamp, f.Timestamp)
	assert.Len(t, f.Channels, 2)
	assert.NotEqual(t, in.Channels, f.Channels)
}

func TestSubscriptions_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SubscriberBuffer = 4
	c := connect(t, 1, cfg)
	slow := c.SubscribeFiltered()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = c.Ingest(eeg.NewSample(time.Duration(i), []float64{1}))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Ingest blocked on a full subscriber")
	}

	assert.Equal(t, uint64(6), slow.Dropped())
	assert.Equal(t, uint64(6), c.Stats().Dropped)
	assert.Len(t, slow.C(), 4)
}

func TestSubscription_Unsubscribe(t *testing.T) {
	c := connect(t, 1, DefaultConfig())
	sub := c.SubscribeRaw()
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, c.rawTopic.len())

	require.NoError(t, c.Ingest(eeg.NewSample(0, []float64{1})))
}

func TestDisconnect_Cleanup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cadence = 5 * time.Millisecond
	c, err := Connect(testStream(t, 2), cfg)
	require.NoError(t, err)

	filtered := c.SubscribeFiltered()
	bands := c.SubscribeBands()
	status := c.SubscribeStatus()
	require.NoError(t, c.Start())
	ingestAll(t, c, tones(300, 2, alphaOnly))

	c.Disconnect()
	c.Disconnect()

	assert.True(t, c.Closed())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.ErrorIs(t, c.Ingest(eeg.NewSample(0, []float64{1, 2})), eeg.ErrDisconnected)
	_, err = c.Analyze()
	assert.ErrorIs(t, err, eeg.ErrDisconnected)
	assert.ErrorIs(t, c.Start(), eeg.ErrDisconnected)

	// Every subscription channel is closed once drained.
	drain(t, filtered.C())
	drain(t, bands.C())

	var last StatusEvent
	for ev := range status.C() {
		last = ev
	}
	assert.Equal(t, StatusDisconnected, last.Status)

	late := c.SubscribeClassification()
	_, ok := <-late.C()
	assert.False(t, ok)

	assert.Equal(t, 0, c.raw.Cap())
	assert.Equal(t, 0, c.filtered.Cap())
}

func drain[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription channel not closed")
		}
	}
}

func TestCadence_PublishesBandsAndClassification(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cadence = 10 * time.Millisecond
	c := connect(t, 2, cfg)

	bands := c.SubscribeBands()
	classes := c.SubscribeClassification()
	require.NoError(t, c.Start())
	require.NoError(t, c.Start())

	ingestAll(t, c, tones(250, 2, alphaOnly))

	select {
	case b := <-bands.C():
		require.Len(t, b, 2)
		assert.Equal(t, eeg.Alpha, b[0].Dominant())
	case <-time.After(2 * time.Second):
		t.Fatal("no band powers published")
	}
	select {
	case cl := <-classes.C():
		assert.Equal(t, 0, cl.Channel)
		assert.NotZero(t, cl.Quality)
	case <-time.After(2 * time.Second):
		t.Fatal("no classification published")
	}
	assert.Positive(t, c.Stats().Cycles)
}

func TestAnalyze_SkipsWhenBusy(t *testing.T) {
	c := connect(t, 1, DefaultConfig())
	ingestAll(t, c, tones(250, 1, alphaOnly))

	c.busy.Store(true)
	_, err := c.Analyze()
	assert.ErrorIs(t, err, ErrCycleBusy)
	assert.Equal(t, uint64(1), c.Stats().Skipped)

	c.busy.Store(false)
	_, err = c.Analyze()
	assert.NoError(t, err)
}

func TestWatchdog_StaleAndResume(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.Cadence = 5 * time.Millisecond
	cfg.Now = clock.Now
	c := connect(t, 1, cfg)

	status := c.SubscribeStatus()
	require.NoError(t, c.Start())
	require.NoError(t, c.Ingest(eeg.NewSample(0, []float64{1})))
	assert.Equal(t, StatusLive, c.Status())

	clock.Advance(4 * time.Second)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StatusLive, c.Status())

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return c.Status() == StatusStale }, 2*time.Second, 5*time.Millisecond)

	ev := <-status.C()
	assert.Equal(t, StatusStale, ev.Status)
	assert.Equal(t, "test", ev.Stream)

	require.NoError(t, c.Ingest(eeg.NewSample(time.Second, []float64{1})))
	assert.Equal(t, StatusLive, c.Status())
	ev = <-status.C()
	assert.Equal(t, StatusLive, ev.Status)
}

func TestConcurrentIngestAndAnalyze(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cadence = time.Millisecond
	c := connect(t, 4, cfg)
	bands := c.SubscribeBands()
	require.NoError(t, c.Start())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range bands.C() {
		}
	}()

	ingestAll(t, c, tones(2000, 4, alphaOnly))
	for i := 0; i < 20; i++ {
		_, _ = c.Analyze()
	}

	c.Disconnect()
	wg.Wait()
	st := c.Stats()
	assert.Equal(t, uint64(2000), st.Ingested)
	assert.Equal(t, uint64(2000-1000), st.Evicted)
}

func TestRecent_ReadsDuringIngest(t *testing.T) {
	c := connect(t, 3, DefaultConfig())
	_, ok := c.LatestFiltered()
	assert.False(t, ok)

	samples := tones(3000, 3, alphaOnly)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, recent := range []func(int) []eeg.Sample{c.RecentRaw, c.RecentFiltered} {
		recent := recent
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := recent(500)
				for i, s := range snap {
					if s.Len() != 3 {
						t.Errorf("sample %d has %d channels", i, s.Len())
						return
					}
					if i > 0 && s.Timestamp <= snap[i-1].Timestamp {
						t.Errorf("snapshot out of order at %d", i)
						return
					}
				}
				if latest, ok := c.LatestFiltered(); ok && latest.Len() != 3 {
					t.Errorf("latest sample has %d channels", latest.Len())
					return
				}
			}
		}()
	}

	ingestAll(t, c, samples)
	close(done)
	wg.Wait()

	raw := c.RecentRaw(10)
	require.Len(t, raw, 10)
	assert.Equal(t, samples[len(samples)-10:], raw)

	filtered := c.RecentFiltered(2000)
	require.Len(t, filtered, 1000)
	latest, ok := c.LatestFiltered()
	require.True(t, ok)
	assert.Equal(t, samples[len(samples)-1].Timestamp, latest.Timestamp)
	assert.Equal(t, latest, filtered[len(filtered)-1])

	// Snapshots are private copies.
	raw[9].Channels[0] = 1e6
	assert.Equal(t, samples[len(samples)-1].Channels[0], c.RecentRaw(1)[0].Channels[0])
}

func TestConnect_ZeroConfigUsesDefaults(t *testing.T) {
	c := connect(t, 2, Config{})
	d := DefaultConfig()
	assert.Equal(t, d.Spectral.Window, c.cfg.Spectral.Window)
	assert.Equal(t, d.Spectral.Estimator, c.cfg.Spectral.Estimator)
	assert.Equal(t, d.Spectral.Bands, c.cfg.Spectral.Bands)
	assert.Equal(t, d.Filter, c.cfg.Filter)
	assert.Equal(t, 250, c.WindowSize())
}

func TestPump(t *testing.T) {
	c := connect(t, 2, DefaultConfig())

	samples := tones(300, 2, alphaOnly)
	samples[10] = eeg.NewSample(samples[10].Timestamp, []float64{1, 2, 3})
	src := source.NewReplay(c.Stream(), samples)

	err := Pump(context.Background(), src, c)
	require.ErrorIs(t, err, eeg.ErrUpstreamDisconnect)

	st := c.Stats()
	assert.Equal(t, uint64(299), st.Ingested)
	assert.Equal(t, uint64(1), st.Rejected)
	assert.Equal(t, StatusLive, c.Status(), "coordinator keeps running after the source ends")

	res, err := c.Analyze()
	require.NoError(t, err)
	assert.Equal(t, eeg.Alpha, res.Bands[1].Dominant())
}

func TestPump_ContextCancelled(t *testing.T) {
	c := connect(t, 1, DefaultConfig())
	src, err := source.NewSynthetic(c.Stream(), source.Meditation())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Pump(ctx, src, c) }()

	require.Eventually(t, func() bool { return c.Stats().Ingested > 100 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestPump_StopsOnDisconnect(t *testing.T) {
	c, err := Connect(testStream(t, 1), DefaultConfig())
	require.NoError(t, err)
	src, err := source.NewSynthetic(c.Stream(), source.Meditation())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- Pump(context.Background(), src, c) }()

	require.Eventually(t, func() bool { return c.Stats().Ingested > 10 }, 2*time.Second, time.Millisecond)
	c.Disconnect()
	assert.ErrorIs(t, <-errc, eeg.ErrDisconnected)
}
