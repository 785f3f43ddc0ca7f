// SPDX-License-Identifier: MIT
package filter

import (
	"math"
	"testing"
	"time"

	"eegstream/internal/eeg"
	"eegstream/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 250.0

func testStream(t *testing.T, channels int) eeg.Stream {
	t.Helper()
	s, err := eeg.NewStream("test", channels, testRate, nil)
	require.NoError(t, err)
	return s
}

func sine(freq, amplitude float64, n int) []float64 {
	return utils.GenerateSineWave(n, testRate, freq, amplitude)
}

var amplitudeOf = utils.PeakAmplitude

// runStage feeds a single-channel signal through a fresh default stage and
// returns the last tail output values.
func runStage(t *testing.T, signal []float64, tail int) []float64 {
	t.Helper()
	st, err := NewStage(testStream(t, 1), DefaultConfig())
	require.NoError(t, err)

	out := make([]float64, 0, len(signal))
	for i, x := range signal {
		y, err := st.Apply(eeg.NewSample(time.Duration(i)*4*time.Millisecond, []float64{x}))
		require.NoError(t, err)
		out = append(out, y.Channels[0])
	}
	return out[len(out)-tail:]
}

func TestStage_FrequencyResponse(t *testing.T) {
	tests := []struct {
		desc    string
		freq    float64
		seconds int
		tail    int
		check   func(amp float64) bool
		expect  string
	}{
		{"0.2 Hz drift removed", 0.2, 120, 5000, func(a float64) bool { return a < 10 }, "< 10"},
		{"10 Hz alpha passes", 10, 40, 2500, func(a float64) bool { return a > 89 }, "> 89"},
		{"80 Hz removed", 80, 40, 2500, func(a float64) bool { return a < 10 }, "< 10"},
		{"50 Hz mains removed", 50, 40, 2500, func(a float64) bool { return a < 10 }, "< 10"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			out := runStage(t, sine(tt.freq, 100, tt.seconds*int(testRate)), tt.tail)
			amp := amplitudeOf(out)
			if !tt.check(amp) {
				t.Errorf("amplitude at %.1f Hz = %.3f, want %s", tt.freq, amp, tt.expect)
			}
		})
	}
}

func TestNotch_PassesNeighbours(t *testing.T) {
	c, err := Notch(50, 4, testRate)
	require.NoError(t, err)

	tests := []struct {
		freq  float64
		check func(float64) bool
	}{
		{45, func(a float64) bool { return a > 89 }},
		{50, func(a float64) bool { return a < 10 }},
		{55, func(a float64) bool { return a > 89 }},
	}

	for _, tt := range tests {
		b := NewBiquad(c)
		signal := sine(tt.freq, 100, 20*int(testRate))
		out := make([]float64, len(signal))
		for i, x := range signal {
			out[i] = b.Process(x)
		}
		amp := amplitudeOf(out[len(out)-2500:])
		if !tt.check(amp) {
			t.Errorf("notch amplitude at %.0f Hz = %.3f", tt.freq, amp)
		}
	}
}

func TestDesign_Magnitude(t *testing.T) {
	lp, err := ButterworthLowPass(4, 40, testRate)
	require.NoError(t, err)
	hp, err := ButterworthHighPass(4, 1, testRate)
	require.NoError(t, err)

	lc := NewCascade(lp)
	hc := NewCascade(hp)

	// -3 dB at the corner, unity in the pass band.
	assert.InDelta(t, 1/math.Sqrt2, lc.Magnitude(40, testRate), 1e-6)
	assert.InDelta(t, 1/math.Sqrt2, hc.Magnitude(1, testRate), 1e-6)
	assert.InDelta(t, 1.0, lc.Magnitude(0, testRate), 1e-9)
	assert.InDelta(t, 1.0, hc.Magnitude(testRate/2, testRate), 1e-6)
	assert.Less(t, lc.Magnitude(80, testRate), 0.02)
}

func TestDesign_Invalid(t *testing.T) {
	_, err := ButterworthLowPass(3, 40, testRate)
	assert.Error(t, err)
	_, err = ButterworthLowPass(4, 130, testRate)
	assert.Error(t, err)
	_, err = ButterworthHighPass(4, 0, testRate)
	assert.Error(t, err)
	_, err = Notch(50, 0, testRate)
	assert.Error(t, err)
}

func TestNewStage_InvalidConfig(t *testing.T) {
	stream := testStream(t, 2)

	tests := []struct {
		desc   string
		modify func(*Config)
	}{
		{"low cut zero", func(c *Config) { c.LowCutHz = 0 }},
		{"high below low", func(c *Config) { c.HighCutHz = 0.5 }},
		{"high above nyquist", func(c *Config) { c.HighCutHz = 200 }},
		{"odd order", func(c *Config) { c.Order = 3 }},
		{"zero notch width", func(c *Config) { c.NotchHalfWidthHz = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			_, err := NewStage(stream, cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewStage_NotchDisabledAboveNyquist(t *testing.T) {
	s, err := eeg.NewStream("low-rate", 1, 90, nil)
	require.NoError(t, err)

	st, err := NewStage(s, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, st.channels[0], 4)
}

func TestStage_Deterministic(t *testing.T) {
	stream := testStream(t, 3)
	a, err := NewStage(stream, DefaultConfig())
	require.NoError(t, err)
	b, err := NewStage(stream, DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < 2000; i++ {
		ts := time.Duration(i) * 4 * time.Millisecond
		x := float64(i)
		in := eeg.NewSample(ts, []float64{
			80 * math.Sin(x*0.25),
			150 * math.Cos(x*0.031),
			300 * math.Sin(x*1.7), // saturates
		})
		ya, err := a.Apply(in)
		require.NoError(t, err)
		yb, err := b.Apply(in)
		require.NoError(t, err)

		assert.Equal(t, ts, ya.Timestamp)
		require.Len(t, ya.Channels, 3)
		for ch := range ya.Channels {
			if math.Abs(ya.Channels[ch]-yb.Channels[ch]) > 1e-9 {
				t.Fatalf("sample %d channel %d: %v != %v", i, ch, ya.Channels[ch], yb.Channels[ch])
			}
		}
	}
}

func TestStage_ResetRestoresInitialState(t *testing.T) {
	st, err := NewStage(testStream(t, 1), DefaultConfig())
	require.NoError(t, err)

	signal := sine(10, 50, 500)
	first := make([]float64, len(signal))
	for i, x := range signal {
		y, _ := st.Apply(eeg.NewSample(0, []float64{x}))
		first[i] = y.Channels[0]
	}

	st.Reset()
	for i, x := range signal {
		y, _ := st.Apply(eeg.NewSample(0, []float64{x}))
		assert.InDelta(t, first[i], y.Channels[0], 1e-12)
	}
}

func TestStage_RejectsWrongChannelCount(t *testing.T) {
	st, err := NewStage(testStream(t, 2), DefaultConfig())
	require.NoError(t, err)

	ref, err := NewStage(testStream(t, 2), DefaultConfig())
	require.NoError(t, err)

	_, err = st.Apply(eeg.NewSample(0, []float64{100, 100}))
	require.NoError(t, err)
	_, err = ref.Apply(eeg.NewSample(0, []float64{100, 100}))
	require.NoError(t, err)

	_, err = st.Apply(eeg.NewSample(0, []float64{1, 2, 3}))
	var verr *eeg.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Expected)
	assert.Equal(t, 3, verr.Got)

	// The rejected sample left no trace in the filter memory.
	y1, _ := st.Apply(eeg.NewSample(0, []float64{-20, 40}))
	y2, _ := ref.Apply(eeg.NewSample(0, []float64{-20, 40}))
	assert.Equal(t, y2.Channels, y1.Channels)
}

func TestStage_Clamp(t *testing.T) {
	stream := testStream(t, 1)
	clamped, err := NewStage(stream, DefaultConfig())
	require.NoError(t, err)
	atLimit, err := NewStage(stream, DefaultConfig())
	require.NoError(t, err)

	inputs := []float64{1000, -5000, 150, math.Inf(1), -200}
	limited := []float64{200, -200, 150, 200, -200}
	for i := range inputs {
		a, err := clamped.Apply(eeg.NewSample(0, []float64{inputs[i]}))
		require.NoError(t, err)
		b, err := atLimit.Apply(eeg.NewSample(0, []float64{limited[i]}))
		require.NoError(t, err)
		assert.Equal(t, b.Channels[0], a.Channels[0])
	}
	assert.Equal(t, uint64(3), clamped.Clipped())
	assert.Equal(t, uint64(0), atLimit.Clipped())
}

func TestStage_NaNIsDropped(t *testing.T) {
	st, err := NewStage(testStream(t, 1), DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		y, err := st.Apply(eeg.NewSample(0, []float64{math.NaN()}))
		require.NoError(t, err)
		assert.False(t, math.IsNaN(y.Channels[0]))
	}
	y, _ := st.Apply(eeg.NewSample(0, []float64{10}))
	assert.False(t, math.IsNaN(y.Channels[0]))
	assert.Equal(t, uint64(100), st.Clipped())
}

func TestStage_Allocations(t *testing.T) {
	st, err := NewStage(testStream(t, 8), DefaultConfig())
	require.NoError(t, err)
	in := eeg.NewSample(0, make([]float64, 8))

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = st.Apply(in)
	})
	// One allocation for the output channel slice.
	if allocs > 1 {
		t.Errorf("Expected at most 1 allocation per Apply, got %.1f", allocs)
	}
}

func BenchmarkStageApply(b *testing.B) {
	stream, _ := eeg.NewStream("bench", 8, testRate, nil)
	st, _ := NewStage(stream, DefaultConfig())
	in := eeg.NewSample(0, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = st.Apply(in)
	}
}
