package demo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bandlink/internal/store"
	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/timeutil"
)

func seqOf(heartRates ...float64) []telemetry.SensorReading {
	out := make([]telemetry.SensorReading, len(heartRates))
	for i, hr := range heartRates {
		out[i] = telemetry.SensorReading{HeartRate: hr, UV: float64(i)}
	}
	return out
}

func recv(t *testing.T, ch <-chan store.Snapshot) store.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return store.Snapshot{}
	}
}

func newTestSource(t *testing.T, seq []telemetry.SensorReading, opts ...Option) (*Source, *store.Store, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, time.June, 1, 7, 30, 0, 0, time.UTC))
	st := store.New(clock)
	src, err := NewSource(clock, st, seq, opts...)
	require.NoError(t, err)
	t.Cleanup(src.Stop)
	return src, st, clock
}

func TestNewSource_RejectsEmpty(t *testing.T) {
	_, err := NewSource(nil, store.New(nil), nil)
	assert.ErrorIs(t, err, ErrEmptyRecording)
}

func TestSource_ReplaysInOrderAndWraps(t *testing.T) {
	seq := seqOf(70, 71, 72)
	src, st, clock := newTestSource(t, seq)
	id, ch := st.Subscribe()
	defer st.Unsubscribe(id)

	src.Start()
	assert.Equal(t, store.Connected, recv(t, ch).Status)
	assert.True(t, src.Active())
	assert.Equal(t, 3, src.Len())

	for _, want := range []float64{70, 71, 72, 70} {
		clock.Advance(DefaultInterval)
		snap := recv(t, ch)
		assert.Equal(t, want, snap.Latest.HeartRate)
		assert.Equal(t, telemetry.Encode(snap.Latest), snap.LastRawPacket)
		assert.Equal(t, store.Connected, snap.Status)
	}
	assert.Equal(t, 1, src.Index())
}

func TestSource_StopResetsStore(t *testing.T) {
	src, st, clock := newTestSource(t, seqOf(80, 81))
	id, ch := st.Subscribe()
	defer st.Unsubscribe(id)

	src.Start()
	recv(t, ch)
	clock.Advance(DefaultInterval)
	recv(t, ch)

	src.Stop()
	assert.False(t, src.Active())
	assert.Equal(t, 0, clock.Tickers())
	snap := st.Snapshot()
	assert.Equal(t, store.Disconnected, snap.Status)
	assert.Equal(t, telemetry.SensorReading{}, snap.Latest)
	assert.Empty(t, snap.LastRawPacket)

	clock.Advance(time.Second)
	assert.Equal(t, telemetry.SensorReading{}, st.Latest())

	src.Stop()
}

func TestSource_StartResetsIndex(t *testing.T) {
	src, st, clock := newTestSource(t, seqOf(60, 61, 62))
	id, ch := st.Subscribe()
	defer st.Unsubscribe(id)

	src.Start()
	recv(t, ch)
	clock.Advance(DefaultInterval)
	recv(t, ch)
	clock.Advance(DefaultInterval)
	recv(t, ch)
	require.Equal(t, 2, src.Index())

	src.Stop()
	recv(t, ch)

	src.Start()
	src.Start()
	assert.Equal(t, 0, src.Index())
	recv(t, ch)
	clock.Advance(DefaultInterval)
	assert.Equal(t, 60.0, recv(t, ch).Latest.HeartRate)
	assert.Equal(t, 1, clock.Tickers())
}

func TestSource_SetCadenceKeepsPosition(t *testing.T) {
	src, st, clock := newTestSource(t, seqOf(90, 91, 92), WithInterval(100*time.Millisecond))
	id, ch := st.Subscribe()
	defer st.Unsubscribe(id)
	assert.Equal(t, 100*time.Millisecond, src.Interval())

	src.Start()
	recv(t, ch)
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 90.0, recv(t, ch).Latest.HeartRate)

	require.NoError(t, src.SetCadence(time.Second))
	assert.Equal(t, 1, src.Index())
	assert.Equal(t, time.Second, src.Interval())

	clock.Advance(time.Second)
	assert.Equal(t, 91.0, recv(t, ch).Latest.HeartRate)
	assert.Equal(t, 2, src.Index())
}

func TestSource_SetCadenceRejectsNonPositive(t *testing.T) {
	src, _, _ := newTestSource(t, seqOf(1))
	for _, d := range []time.Duration{0, -time.Second} {
		err := src.SetCadence(d)
		assert.True(t, errors.Is(err, ErrInvalidInterval), "SetCadence(%v) = %v", d, err)
	}
	assert.Equal(t, DefaultInterval, src.Interval())

	require.NoError(t, src.SetCadence(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, src.Interval())
}
