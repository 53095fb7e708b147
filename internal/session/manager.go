// Package session switches between the live band and the demo source so that
// exactly one of them writes to the telemetry store at a time.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/store"
)

// Mode names the source currently feeding the store.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

// Live is the connection state machine as seen by the manager.
type Live interface {
	Begin(ctx context.Context) (func() error, error)
	Disconnect()
	SendCommand(text string) error
	Active() bool
	Close()
}

// Demo is the synthetic source as seen by the manager.
type Demo interface {
	Start()
	Stop()
	SetCadence(d time.Duration) error
	Active() bool
	Index() int
	Len() int
	Interval() time.Duration
}

// Manager is the control surface for the application. Switching sources
// deactivates the previous one before the new one publishes anything.
type Manager struct {
	live  Live
	demo  Demo
	store *store.Store

	// mu serialises mode switches.
	mu sync.Mutex
}

func NewManager(live Live, demo Demo, st *store.Store) *Manager {
	return &Manager{live: live, demo: demo, store: st}
}

// Connect stops the demo and connects to the band, blocking until the attempt
// completes.
func (m *Manager) Connect(ctx context.Context) error {
	run, err := m.BeginConnect(ctx)
	if err != nil || run == nil {
		return err
	}
	return run()
}

// BeginConnect stops the demo and publishes the connecting state, returning
// the rest of the attempt as run. run is nil when the band is already
// connected. The demo is stopped before BeginConnect returns.
func (m *Manager) BeginConnect(ctx context.Context) (run func() error, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.demo.Stop()
	return m.live.Begin(ctx)
}

// Disconnect ends the live session or cancels a connect in progress.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live.Disconnect()
}

// StartDemo disconnects the band and starts replaying the demo recording.
func (m *Manager) StartDemo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live.Disconnect()
	m.demo.Start()
}

func (m *Manager) StopDemo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.demo.Stop()
}

func (m *Manager) SetDemoCadence(d time.Duration) error {
	return m.demo.SetCadence(d)
}

// SendCommand writes text to the band. In demo mode there is no device to
// write to.
func (m *Manager) SendCommand(text string) error {
	if m.demo.Active() {
		return device.ErrNotConnected
	}
	return m.live.SendCommand(text)
}

func (m *Manager) Mode() Mode {
	switch {
	case m.demo.Active():
		return ModeDemo
	case m.live.Active():
		return ModeLive
	default:
		return ModeIdle
	}
}

// DemoProgress is the replay position of the demo source.
type DemoProgress struct {
	Active   bool          `json:"active"`
	Index    int           `json:"index"`
	Len      int           `json:"len"`
	Interval time.Duration `json:"interval_ns"`
}

func (m *Manager) Demo() DemoProgress {
	return DemoProgress{
		Active:   m.demo.Active(),
		Index:    m.demo.Index(),
		Len:      m.demo.Len(),
		Interval: m.demo.Interval(),
	}
}

func (m *Manager) Store() *store.Store { return m.store }

func (m *Manager) Snapshot() store.Snapshot { return m.store.Snapshot() }

// Close stops both sources.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.demo.Stop()
	m.live.Close()
}
