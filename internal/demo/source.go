// Package demo replays a recorded telemetry sequence into the store at a fixed
// cadence, standing in for a connected band.
package demo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/bandlink/internal/monitoring"
	"github.com/banshee-data/bandlink/internal/store"
	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/timeutil"
)

// DefaultInterval is the time between replayed readings.
const DefaultInterval = 200 * time.Millisecond

var (
	ErrEmptyRecording  = errors.New("recording has no readings")
	ErrInvalidInterval = errors.New("demo interval must be positive")
)

// Source replays a fixed sequence of readings. It holds one index into the
// sequence, wrapping to the start after the last reading.
type Source struct {
	clock timeutil.Clock
	store *store.Store
	seq   []telemetry.SensorReading

	mu       sync.Mutex
	interval time.Duration
	index    int
	ticker   timeutil.Ticker
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithInterval sets the replay cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewSource creates a stopped Source over seq.
func NewSource(clock timeutil.Clock, st *store.Store, seq []telemetry.SensorReading, opts ...Option) (*Source, error) {
	if len(seq) == 0 {
		return nil, ErrEmptyRecording
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Source{
		clock:    clock,
		store:    st,
		seq:      append([]telemetry.SensorReading(nil), seq...),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins replaying from the first reading and marks the store connected.
// It is a no-op while already running.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.index = 0
	s.store.SetStatus(store.Connected)
	s.ticker = s.clock.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.ticker, s.stop, s.done)
	monitoring.Logf("demo started: %d readings every %v", len(s.seq), s.interval)
}

// Stop halts the replay and resets the store. It is a no-op when stopped.
func (s *Source) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.ticker.Stop()
	done := s.done
	s.ticker, s.stop, s.done = nil, nil, nil
	s.store.Reset()
	s.mu.Unlock()

	<-done
	monitoring.Logf("demo stopped")
}

// SetCadence changes the replay interval, taking effect from now. The replay
// position is kept.
func (s *Source) SetCadence(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	if s.ticker != nil {
		s.ticker.Reset(d)
	}
	return nil
}

func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Index returns the position of the next reading to replay.
func (s *Source) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Source) Len() int { return len(s.seq) }

func (s *Source) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Source) run(ticker timeutil.Ticker, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			s.tick(stop)
		}
	}
}

// tick publishes under mu so that no reading lands after Stop has reset the
// store.
func (s *Source) tick(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != stop {
		return
	}
	r := s.seq[s.index]
	s.index = (s.index + 1) % len(s.seq)
	s.store.PublishReading(telemetry.Encode(r), r)
}
