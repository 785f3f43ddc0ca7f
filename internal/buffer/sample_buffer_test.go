// SPDX-License-Identifier: MIT
package buffer

import (
	"sync"
	"testing"
	"time"

	"eegstream/internal/eeg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(i, channels int) eeg.Sample {
	ch := make([]float64, channels)
	for c := range ch {
		ch[c] = float64(i*10 + c)
	}
	return eeg.NewSample(time.Duration(i)*time.Millisecond, ch)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(0, 2)
	assert.Error(t, err)

	_, err = New(4, 0)
	assert.Error(t, err)
}

func TestCapacityFor(t *testing.T) {
	assert.Equal(t, 1000, CapacityFor(250, DefaultDuration))
	assert.Equal(t, 250, CapacityFor(250, time.Second))
	assert.Equal(t, 1, CapacityFor(250, 0))
}

func TestPush_NeverExceedsCapacity(t *testing.T) {
	const capacity = 16
	b, err := New(capacity, 2)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, b.Push(sampleAt(i, 2)))
		assert.LessOrEqual(t, b.Len(), capacity)
	}
	assert.Equal(t, capacity, b.Len())
	assert.Equal(t, uint64(100-capacity), b.Evicted())
}

func TestRecent_ReturnsLastPushedInOrder(t *testing.T) {
	tests := []struct {
		desc   string
		pushes int
		want   int
	}{
		{"empty", 0, 0},
		{"partial", 5, 5},
		{"exactly full", 10, 10},
		{"wrapped once", 13, 10},
		{"wrapped many", 57, 10},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			const capacity = 10
			b, err := New(capacity, 3)
			require.NoError(t, err)

			for i := 0; i < tt.pushes; i++ {
				require.NoError(t, b.Push(sampleAt(i, 3)))
			}

			got := b.Recent(capacity)
			require.Len(t, got, tt.want)
			for i, s := range got {
				wantIdx := tt.pushes - tt.want + i
				assert.Equal(t, time.Duration(wantIdx)*time.Millisecond, s.Timestamp)
				assert.Equal(t, float64(wantIdx*10), s.Channels[0])
			}
		})
	}
}

func TestRecent_FewerThanRequested(t *testing.T) {
	b, err := New(8, 1)
	require.NoError(t, err)
	require.NoError(t, b.Push(sampleAt(1, 1)))
	require.NoError(t, b.Push(sampleAt(2, 1)))

	assert.Len(t, b.Recent(5), 2)
	assert.Len(t, b.Recent(1), 1)
	assert.Nil(t, b.Recent(0))
	assert.Equal(t, 2, b.Len(), "Recent must not mutate the buffer")
}

func TestRecent_IsSnapshot(t *testing.T) {
	b, err := New(4, 1)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Push(sampleAt(i, 1)))
	}

	snap := b.Recent(4)
	for i := 4; i < 12; i++ {
		require.NoError(t, b.Push(sampleAt(i, 1)))
	}

	for i, s := range snap {
		assert.Equal(t, float64(i*10), s.Channels[0])
	}
}

func TestLatest(t *testing.T) {
	b, err := New(3, 2)
	require.NoError(t, err)

	_, ok := b.Latest()
	assert.False(t, ok)

	for i := 0; i < 7; i++ {
		require.NoError(t, b.Push(sampleAt(i, 2)))
	}
	s, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 6*time.Millisecond, s.Timestamp)
}

func TestPush_RejectsChannelMismatch(t *testing.T) {
	b, err := New(4, 3)
	require.NoError(t, err)
	require.NoError(t, b.Push(sampleAt(0, 3)))

	err = b.Push(sampleAt(1, 2))
	require.ErrorIs(t, err, eeg.ErrValidation)

	assert.Equal(t, 1, b.Len())
	s, _ := b.Latest()
	assert.Equal(t, time.Duration(0), s.Timestamp)
}

func TestPush_CopiesCallerSlice(t *testing.T) {
	b, err := New(2, 2)
	require.NoError(t, err)

	s := eeg.Sample{Channels: []float64{1, 2}}
	require.NoError(t, b.Push(s))
	s.Channels[0] = 42

	got, _ := b.Latest()
	assert.Equal(t, 1.0, got.Channels[0])
}

func TestWindow(t *testing.T) {
	b, err := New(5, 2)
	require.NoError(t, err)

	_, _, err = b.Window(nil, 3)
	assert.ErrorIs(t, err, eeg.ErrInsufficientData)

	for i := 0; i < 7; i++ {
		require.NoError(t, b.Push(sampleAt(i, 2)))
	}

	w, ts, err := b.Window(nil, 3)
	require.NoError(t, err)
	require.Len(t, w, 2)
	assert.Equal(t, []float64{40, 50, 60}, w[0])
	assert.Equal(t, []float64{41, 51, 61}, w[1])
	assert.Equal(t, 6*time.Millisecond, ts)

	_, _, err = b.Window(nil, 6)
	assert.ErrorIs(t, err, eeg.ErrInsufficientData)
}

func TestWindow_RejectsEmptyLength(t *testing.T) {
	b, err := New(4, 1)
	require.NoError(t, err)

	for _, n := range []int{0, -1} {
		_, _, err := b.Window(nil, n)
		assert.Error(t, err, "n=%d", n)
		assert.NotErrorIs(t, err, eeg.ErrInsufficientData, "n=%d", n)
	}

	require.NoError(t, b.Push(sampleAt(1, 1)))
	_, _, err = b.Window(nil, 0)
	assert.Error(t, err)
}

func TestWindow_ReusesDestination(t *testing.T) {
	b, err := New(8, 2)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		require.NoError(t, b.Push(sampleAt(i, 2)))
	}

	dst := [][]float64{make([]float64, 8), make([]float64, 8)}
	allocs := testing.AllocsPerRun(100, func() {
		_, _, _ = b.Window(dst, 8)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Window with a sized destination, got %.1f", allocs)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	b, err := New(4, 2)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Push(sampleAt(i, 2)))
	}

	recent := b.Recent(1)
	recent[0].Channels[0] = 999
	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 20.0, latest.Channels[0])

	latest.Channels[1] = 999
	again, _ := b.Latest()
	assert.Equal(t, 21.0, again.Channels[1])
	assert.Equal(t, []float64{20, 21}, b.Recent(1)[0].Channels)
}

func TestRelease(t *testing.T) {
	b, err := New(4, 1)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, b.Push(sampleAt(i, 1)))
	}

	b.Release()
	assert.Equal(t, 0, b.Cap())
	assert.Empty(t, b.Recent(4))
	assert.ErrorIs(t, b.Push(sampleAt(10, 1)), eeg.ErrDisconnected)

	_, _, err = b.Window(nil, 1)
	assert.ErrorIs(t, err, eeg.ErrInsufficientData)
}

func TestConcurrentReadersSeeOrderedSnapshots(t *testing.T) {
	b, err := New(64, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := b.Recent(64)
				for i := 1; i < len(snap); i++ {
					if snap[i].Timestamp <= snap[i-1].Timestamp {
						t.Errorf("snapshot out of order at %d", i)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 5000; i++ {
		require.NoError(t, b.Push(sampleAt(i, 1)))
	}
	close(done)
	wg.Wait()
}

func BenchmarkPush(b *testing.B) {
	buf, _ := New(1000, 8)
	s := sampleAt(1, 8)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = buf.Push(s)
	}
}
