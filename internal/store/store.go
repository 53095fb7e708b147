// Package store holds the last-known-good telemetry state shared by the live
// pipeline, the demo source and every reader.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/timeutil"
)

// Status is the band's connection status.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = Disconnected
	case "connecting":
		*s = Connecting
	case "connected":
		*s = Connected
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Snapshot is a consistent copy of the store's state.
type Snapshot struct {
	Status        Status                  `json:"status"`
	Latest        telemetry.SensorReading `json:"latest"`
	LastRawPacket string                  `json:"last_raw_packet"`
	// LastError is empty when no error has been recorded since the last reset.
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sample is one reading kept in the in-memory history.
type Sample struct {
	At      time.Time               `json:"at"`
	Reading telemetry.SensorReading `json:"reading"`
}

// DefaultHistorySize is the number of readings retained for debug charts.
const DefaultHistorySize = 300

const subscriberBuffer = 16

// Store is the process-wide telemetry state container. Every write replaces the
// whole snapshot under the lock, so readers only ever see complete readings.
type Store struct {
	clock timeutil.Clock

	mu      sync.RWMutex
	snap    Snapshot
	history []Sample
	next    int
	filled  bool

	subscriberMu sync.Mutex
	subscribers  map[string]chan Snapshot
	closed       bool
}

// Option configures a Store.
type Option func(*Store)

// WithHistorySize sets how many recent readings are kept. Zero disables history.
func WithHistorySize(n int) Option {
	return func(s *Store) {
		if n < 0 {
			n = 0
		}
		s.history = make([]Sample, n)
	}
}

// New creates a store holding the initial snapshot.
func New(clock timeutil.Clock, opts ...Option) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Store{
		clock:       clock,
		history:     make([]Sample, DefaultHistorySize),
		subscribers: make(map[string]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap = Snapshot{UpdatedAt: clock.Now()}
	return s
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Status
}

func (s *Store) Latest() telemetry.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Latest
}

// LastError returns the last recorded error and whether there is one.
func (s *Store) LastError() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.LastError, s.snap.LastError != ""
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// History returns the retained readings, oldest first.
func (s *Store) History() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.filled {
		return append([]Sample(nil), s.history[:s.next]...)
	}
	out := make([]Sample, 0, len(s.history))
	out = append(out, s.history[s.next:]...)
	return append(out, s.history[:s.next]...)
}

// SetStatus records a connection status change.
func (s *Store) SetStatus(status Status) {
	s.update(func(snap *Snapshot) bool {
		if snap.Status == status {
			return false
		}
		snap.Status = status
		return true
	})
}

// StartAttempt moves to connecting and clears the error left by an earlier
// attempt in the same update.
func (s *Store) StartAttempt() {
	s.update(func(snap *Snapshot) bool {
		snap.Status = Connecting
		snap.LastError = ""
		return true
	})
}

// PublishReading replaces the latest reading and the raw packet it came from.
func (s *Store) PublishReading(raw string, r telemetry.SensorReading) {
	s.update(func(snap *Snapshot) bool {
		snap.Latest = r
		snap.LastRawPacket = raw
		s.appendHistory(Sample{At: s.clock.Now(), Reading: r})
		return true
	})
}

// RecordError records a non-fatal error without touching the latest reading.
func (s *Store) RecordError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	s.update(func(snap *Snapshot) bool {
		snap.LastError = msg
		return true
	})
}

// Fail records err and moves to status in one update, so subscribers never see
// the status without its cause.
func (s *Store) Fail(status Status, err error) {
	s.update(func(snap *Snapshot) bool {
		snap.Status = status
		if err != nil {
			snap.LastError = err.Error()
		}
		return true
	})
}

// Reset returns the store to its initial snapshot and clears the history.
func (s *Store) Reset() {
	s.update(func(snap *Snapshot) bool {
		*snap = Snapshot{}
		for i := range s.history {
			s.history[i] = Sample{}
		}
		s.next, s.filled = 0, false
		return true
	})
}

// must be called with mu held
func (s *Store) appendHistory(sample Sample) {
	if len(s.history) == 0 {
		return
	}
	s.history[s.next] = sample
	s.next++
	if s.next == len(s.history) {
		s.next, s.filled = 0, true
	}
}

func (s *Store) update(fn func(*Snapshot) bool) {
	s.mu.Lock()
	next := s.snap
	if !fn(&next) {
		s.mu.Unlock()
		return
	}
	next.UpdatedAt = s.clock.Now()
	s.snap = next
	// notify under mu so subscribers receive snapshots in publish order
	s.notify(next)
	s.mu.Unlock()
}

// Subscribe returns a channel receiving every snapshot published after the
// call. The id is used to Unsubscribe.
func (s *Store) Subscribe() (string, <-chan Snapshot) {
	id := uuid.NewString()
	ch := make(chan Snapshot, subscriberBuffer)

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Close closes every subscriber channel. Further subscriptions receive a
// closed channel.
func (s *Store) Close() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// slow subscriber; skip rather than block the publisher
		}
	}
}

// MarshalJSON renders the snapshot with a null last_error when none is set.
func (snap Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	var lastErr *string
	if snap.LastError != "" {
		lastErr = &snap.LastError
	}
	return json.Marshal(struct {
		alias
		LastError *string `json:"last_error"`
	}{alias(snap), lastErr})
}
