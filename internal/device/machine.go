package device

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/banshee-data/bandlink/internal/framing"
	"github.com/banshee-data/bandlink/internal/monitoring"
	"github.com/banshee-data/bandlink/internal/store"
	"github.com/banshee-data/bandlink/internal/telemetry"
)

// DefaultDeviceName is the name the band's HC-05 module advertises.
const DefaultDeviceName = "HC-05"

// Config selects the band and how its stream is decoded.
type Config struct {
	// DeviceName is matched against Handle.Name. Empty means DefaultDeviceName.
	DeviceName string
	// DeviceAddress, when set, also matches Handle.Address.
	DeviceAddress string
	Framing       framing.Strategy
	Decoder       telemetry.Decoder
}

// Machine owns the band connection. It is the only writer of the connection
// status while the live source is selected, and the only holder of the device
// handle.
type Machine struct {
	transport Transport
	perms     Permissions
	store     *store.Store
	cfg       Config

	mu            sync.Mutex
	state         State
	attempt       uint64
	cancelAttempt context.CancelFunc
	candidate     string // address the running attempt chose
	handle        Handle
	cancelData    func()

	// pipeMu serialises chunk ingestion so packets publish in stream order.
	pipeMu  sync.Mutex
	asm     *framing.Assembler
	liveGen uint64

	listeners []func()
}

// New creates a Machine in the disconnected state and subscribes it to the
// transport's link-loss notifications and, when supported, permission
// revocations.
func New(t Transport, p Permissions, s *store.Store, cfg Config) *Machine {
	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultDeviceName
	}
	m := &Machine{
		transport: t,
		perms:     p,
		store:     s,
		cfg:       cfg,
		state:     store.Disconnected,
		asm:       framing.NewAssembler(cfg.Framing),
	}
	m.listeners = append(m.listeners, t.OnDeviceDisconnected(m.linkLost))
	if rn, ok := p.(RevocationNotifier); ok {
		m.listeners = append(m.listeners, rn.OnRevoked(m.permissionRevoked))
	}
	return m
}

// State returns the current connection state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether the live source is connecting or connected.
func (m *Machine) Active() bool {
	return m.State() != store.Disconnected
}

// Connect runs the permission, discovery, pairing and connection sequence.
// It blocks until the band is connected or the attempt fails; failures are
// also recorded in the store with status disconnected. Connect while already
// connected is a no-op.
func (m *Machine) Connect(ctx context.Context) error {
	run, err := m.Begin(ctx)
	if err != nil || run == nil {
		return err
	}
	return run()
}

// Begin moves to connecting and returns the function that completes the
// attempt. Callers that coordinate with other sources use it to publish the
// connecting status while holding their own lock. run is nil when already
// connected.
func (m *Machine) Begin(ctx context.Context) (run func() error, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := Next(m.state, EventConnectRequested)
	switch tr.Effect {
	case EffectRejectAttempt:
		return nil, ErrConnectInProgress
	case EffectNone:
		return nil, nil
	}
	m.state = tr.Next
	m.attempt++
	id := m.attempt
	attemptCtx, cancel := context.WithCancel(ctx)
	m.cancelAttempt = cancel
	m.store.StartAttempt()

	return func() error {
		h, err := m.acquire(attemptCtx, id)
		cancel()
		return m.finish(id, h, err)
	}, nil
}

func (m *Machine) finish(id uint64, h Handle, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != m.attempt || m.state != store.Connecting {
		// Disconnect, link loss or revocation ended this attempt while it ran.
		if h != nil {
			m.closeHandle(h)
		}
		return ErrConnectAbandoned
	}
	m.cancelAttempt = nil
	m.candidate = ""

	if err != nil {
		m.state = Next(m.state, EventFailed).Next
		if h != nil {
			m.closeHandle(h)
		}
		monitoring.Logf("connect to %s failed: %v", m.cfg.DeviceName, err)
		m.store.Fail(store.Disconnected, err)
		return err
	}

	m.state = Next(m.state, EventEstablished).Next
	m.handle = h
	m.startPipelineLocked(id, h)
	m.store.SetStatus(store.Connected)
	monitoring.Logf("connected to %s at %s", h.Name(), h.Address())
	return nil
}

// Disconnect tears down the connection or abandons an attempt in progress.
// It is a no-op when already disconnected.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(Next(m.state, EventDisconnectRequested), nil)
}

// SendCommand writes text verbatim to the connected band.
func (m *Machine) SendCommand(text string) error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h == nil {
		return ErrNotConnected
	}
	if err := h.Write(text); err != nil {
		return fmt.Errorf("write to %s: %w", h.Address(), err)
	}
	return nil
}

// Close disconnects and stops listening for transport and permission events.
func (m *Machine) Close() {
	m.Disconnect()
	m.mu.Lock()
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()
	for _, cancel := range listeners {
		cancel()
	}
}

func (m *Machine) linkLost(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h != nil && h.Address() != m.watchedLocked() {
		return
	}
	m.applyLocked(Next(m.state, EventLinkLost), ErrTransportDisconnected)
}

// watchedLocked returns the address whose loss ends the session: the held
// handle when connected, the attempt's chosen band while connecting. Before an
// attempt has chosen a band there is nothing to lose.
func (m *Machine) watchedLocked() string {
	switch m.state {
	case store.Connected:
		return m.handle.Address()
	case store.Connecting:
		return m.candidate
	}
	return ""
}

func (m *Machine) permissionRevoked(p Permission) {
	if !slices.Contains(RequiredPermissions, p) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(Next(m.state, EventPermissionRevoked), fmt.Errorf("%s: %w", p, ErrPermissionDenied))
}

func (m *Machine) applyLocked(tr Transition, reason error) {
	switch tr.Effect {
	case EffectAbandon:
		if m.cancelAttempt != nil {
			m.cancelAttempt()
			m.cancelAttempt = nil
		}
		// invalidate the running attempt so it releases whatever it opened
		m.attempt++
		m.candidate = ""
		m.state = tr.Next
		m.store.Reset()
		if reason != nil {
			monitoring.Logf("connect to %s abandoned: %v", m.cfg.DeviceName, reason)
		}
	case EffectTeardown:
		m.state = tr.Next
		m.teardownLocked(reason)
	}
}

func (m *Machine) teardownLocked(reason error) {
	if m.cancelData != nil {
		m.cancelData()
		m.cancelData = nil
	}

	m.pipeMu.Lock()
	m.liveGen = 0
	m.asm.Reset()
	m.pipeMu.Unlock()

	h := m.handle
	m.handle = nil
	if h != nil {
		m.closeHandle(h)
	}
	m.store.Reset()

	if reason != nil {
		monitoring.Logf("disconnected from %s: %v", m.cfg.DeviceName, reason)
	} else {
		monitoring.Logf("disconnected from %s", m.cfg.DeviceName)
	}
}

func (m *Machine) closeHandle(h Handle) {
	if err := h.Close(); err != nil {
		monitoring.Logf("failed to close %s: %v", h.Address(), err)
	}
}

// acquire performs the blocking steps of a connect attempt. On failure after a
// handle was chosen the handle is returned alongside the error so the caller
// can release it.
func (m *Machine) acquire(ctx context.Context, id uint64) (Handle, error) {
	for _, p := range RequiredPermissions {
		granted, err := m.perms.Request(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("request %s permission: %w", p, err)
		}
		if !granted {
			return nil, fmt.Errorf("%s: %w", p, ErrPermissionDenied)
		}
	}

	h, err := m.find(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if id == m.attempt {
		m.candidate = h.Address()
	}
	m.mu.Unlock()

	if !h.Bonded() {
		if err := m.transport.Pair(ctx, h); err != nil {
			// the band may already be paired at the OS level; carry on
			monitoring.Logf("%v with %s, continuing: %v", ErrPairingFailed, h.Address(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := h.Connect(ctx); err != nil {
		return h, fmt.Errorf("connect %s: %w", h.Address(), err)
	}
	ok, err := h.IsConnected(ctx)
	if err != nil {
		return h, fmt.Errorf("%w: %s: %v", ErrConnectionVerificationFailed, h.Address(), err)
	}
	if !ok {
		return h, fmt.Errorf("%w: %s", ErrConnectionVerificationFailed, h.Address())
	}
	return h, nil
}

func (m *Machine) find(ctx context.Context) (Handle, error) {
	bonded, err := m.transport.ListBonded(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bonded devices: %w", err)
	}
	monitoring.Logf("bonded devices: %d", len(bonded))
	if h := m.match(bonded); h != nil {
		return h, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	discovered, err := m.transport.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover devices: %w", err)
	}
	monitoring.Logf("discovered devices: %d", len(discovered))
	if h := m.match(discovered); h != nil {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, m.cfg.DeviceName)
}

func (m *Machine) match(handles []Handle) Handle {
	for _, h := range handles {
		if h.Name() == m.cfg.DeviceName {
			return h
		}
		if m.cfg.DeviceAddress != "" && h.Address() == m.cfg.DeviceAddress {
			return h
		}
	}
	return nil
}

func (m *Machine) startPipelineLocked(gen uint64, h Handle) {
	m.pipeMu.Lock()
	m.asm.Reset()
	m.liveGen = gen
	m.pipeMu.Unlock()

	m.cancelData = h.OnDataReceived(func(chunk string) {
		m.ingest(gen, chunk)
	})
}

// ingest pushes one chunk through the assembler and publishes every packet it
// completes. Chunks from a torn-down session are ignored.
func (m *Machine) ingest(gen uint64, chunk string) {
	m.pipeMu.Lock()
	defer m.pipeMu.Unlock()

	if m.liveGen != gen {
		return
	}
	for _, packet := range m.asm.Push(chunk) {
		d, err := m.cfg.Decoder.Decode(packet)
		if err != nil {
			monitoring.Logf("dropping packet %q: %v", packet, err)
			m.store.RecordError(err)
			continue
		}
		if len(d.Fallbacks) > 0 {
			monitoring.Logf("packet %q: values at %v could not be parsed, using 0", packet, d.Fallbacks)
		}
		monitoring.Debugf("packet %q", packet)
		m.store.PublishReading(packet, d.Reading)
	}
}
