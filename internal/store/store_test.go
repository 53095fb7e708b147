package store

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/timeutil"
)

func reading(hr float64) telemetry.SensorReading {
	var v [telemetry.FieldCount]float64
	for i := range v {
		v[i] = hr
	}
	return telemetry.FromValues(v)
}

func newTestStore(opts ...Option) (*Store, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC))
	return New(clock, opts...), clock
}

func TestNew_InitialSnapshot(t *testing.T) {
	s, clock := newTestStore()

	snap := s.Snapshot()
	assert.Equal(t, Disconnected, snap.Status)
	assert.Equal(t, telemetry.SensorReading{}, snap.Latest)
	assert.Empty(t, snap.LastRawPacket)
	assert.True(t, snap.UpdatedAt.Equal(clock.Now()))

	_, ok := s.LastError()
	assert.False(t, ok)
	assert.Empty(t, s.History())
}

func TestStore_PublishAndReset(t *testing.T) {
	s, clock := newTestStore()

	s.SetStatus(Connected)
	clock.Advance(time.Second)
	s.PublishReading("72,...", reading(72))
	s.RecordError(errors.New("expected 26 values, got 3"))

	require.Equal(t, Connected, s.Status())
	assert.Equal(t, 72.0, s.Latest().HeartRate)
	assert.Equal(t, "72,...", s.Snapshot().LastRawPacket)
	msg, ok := s.LastError()
	assert.True(t, ok)
	assert.Equal(t, "expected 26 values, got 3", msg)

	s.Reset()
	snap := s.Snapshot()
	assert.Equal(t, Disconnected, snap.Status)
	assert.Equal(t, telemetry.SensorReading{}, snap.Latest)
	assert.Empty(t, snap.LastRawPacket)
	assert.Empty(t, snap.LastError)
	assert.Empty(t, s.History())
}

func TestStore_RecordErrorKeepsLatest(t *testing.T) {
	s, _ := newTestStore()
	s.PublishReading("raw", reading(60))
	s.RecordError(errors.New("bad packet"))
	s.RecordError(nil)

	assert.Equal(t, 60.0, s.Latest().HeartRate)
	msg, _ := s.LastError()
	assert.Equal(t, "bad packet", msg)
}

func TestStore_Fail(t *testing.T) {
	s, _ := newTestStore()
	s.SetStatus(Connecting)
	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	s.Fail(Disconnected, errors.New("device not found"))

	snap := <-ch
	assert.Equal(t, Disconnected, snap.Status)
	assert.Equal(t, "device not found", snap.LastError)
}

func TestStore_StartAttemptClearsError(t *testing.T) {
	s, _ := newTestStore()
	s.Fail(Disconnected, errors.New("device not found: HC-05"))
	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	s.StartAttempt()

	snap := <-ch
	assert.Equal(t, Connecting, snap.Status)
	assert.Empty(t, snap.LastError)
	_, ok := s.LastError()
	assert.False(t, ok)
}

func TestStore_HistoryRing(t *testing.T) {
	s, clock := newTestStore(WithHistorySize(3))
	for i := 1; i <= 5; i++ {
		clock.Advance(time.Second)
		s.PublishReading("", reading(float64(i)))
	}

	hist := s.History()
	require.Len(t, hist, 3)
	for i, want := range []float64{3, 4, 5} {
		assert.Equal(t, want, hist[i].Reading.HeartRate)
	}
	assert.True(t, hist[0].At.Before(hist[2].At))

	none, _ := newTestStore(WithHistorySize(0))
	none.PublishReading("", reading(1))
	assert.Empty(t, none.History())
}

func TestStore_SubscribersSeeOrderedSnapshots(t *testing.T) {
	s, _ := newTestStore()
	id, ch := s.Subscribe()

	for i := 1; i <= 5; i++ {
		s.PublishReading("", reading(float64(i)))
	}
	for i := 1; i <= 5; i++ {
		snap := <-ch
		assert.Equal(t, float64(i), snap.Latest.HeartRate)
	}

	s.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open, "channel should be closed after Unsubscribe")
	s.Unsubscribe(id)
}

func TestStore_SetStatusSkipsNoChange(t *testing.T) {
	s, _ := newTestStore()
	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	s.SetStatus(Disconnected)
	select {
	case snap := <-ch:
		t.Fatalf("unexpected notification %+v", snap)
	default:
	}
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s, _ := newTestStore()
	_, _ = s.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			s.PublishReading("", reading(float64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestStore_Close(t *testing.T) {
	s, _ := newTestStore()
	_, ch := s.Subscribe()
	s.Close()

	_, open := <-ch
	assert.False(t, open)

	_, late := s.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestStore_ConcurrentReadersSeeWholeReadings(t *testing.T) {
	s, _ := newTestStore()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				s.PublishReading("", reading(float64(i)))
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		r := s.Latest()
		v := r.Values()
		for _, x := range v {
			if x != v[0] {
				t.Fatalf("torn reading: %v", v)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestSnapshot_JSON(t *testing.T) {
	s, _ := newTestStore()
	s.SetStatus(Connecting)

	b, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "connecting", decoded["status"])
	assert.Nil(t, decoded["last_error"])
	assert.Contains(t, decoded, "latest")

	s.RecordError(errors.New("boom"))
	b, err = json.Marshal(s.Snapshot())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "boom", decoded["last_error"])
}

func TestStatus_Text(t *testing.T) {
	for _, st := range []Status{Disconnected, Connecting, Connected} {
		b, err := st.MarshalText()
		require.NoError(t, err)
		var back Status
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, st, back)
	}
	var s Status
	assert.Error(t, s.UnmarshalText([]byte("paired")))
	assert.Equal(t, "Status(9)", Status(9).String())
}
