package serialmux

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.bug.st/serial/enumerator"
	"tailscale.com/tsweb"

	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/httputil"
	"github.com/banshee-data/bandlink/internal/monitoring"
)

// PairedPort is a band remembered by the registry.
type PairedPort struct {
	Name    string      `json:"name"`
	Path    string      `json:"port_path"`
	Options PortOptions `json:"options"`
}

// Registry stores the ports that have been paired. It is the serial
// transport's bonded device list.
type Registry interface {
	ListPairedPorts(ctx context.Context) ([]PairedPort, error)
	SavePairedPort(ctx context.Context, p PairedPort) error
	// MarkConnected records a successful open of the paired port at path.
	MarkConnected(ctx context.Context, path string) error
}

// EnumerateFunc lists the serial ports present on the host.
type EnumerateFunc func() ([]*enumerator.PortDetails, error)

// Transport finds bands on serial ports. It implements device.Transport.
type Transport struct {
	registry  Registry
	factory   SerialPortFactory
	defaults  PortOptions
	enumerate EnumerateFunc

	mu        sync.Mutex
	endpoints map[string]*Endpoint

	listenerMu sync.Mutex
	listeners  map[string]func(device.Handle)

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
}

var _ device.Transport = (*Transport)(nil)

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithEnumerator replaces the host port enumerator.
func WithEnumerator(fn EnumerateFunc) TransportOption {
	return func(t *Transport) { t.enumerate = fn }
}

// WithPortDefaults sets the options used for discovered ports.
func WithPortDefaults(opts PortOptions) TransportOption {
	return func(t *Transport) { t.defaults = opts }
}

// NewTransport creates a Transport. A nil factory opens real serial ports.
func NewTransport(registry Registry, factory SerialPortFactory, opts ...TransportOption) *Transport {
	if factory == nil {
		factory = NewRealSerialPortFactory()
	}
	t := &Transport{
		registry:    registry,
		factory:     factory,
		enumerate:   enumerator.GetDetailedPortsList,
		endpoints:   make(map[string]*Endpoint),
		listeners:   make(map[string]func(device.Handle)),
		subscribers: make(map[string]chan string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ListBonded returns an endpoint for every port in the registry.
func (t *Transport) ListBonded(ctx context.Context) ([]device.Handle, error) {
	ports, err := t.registry.ListPairedPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list paired ports: %w", err)
	}
	handles := make([]device.Handle, 0, len(ports))
	for _, p := range ports {
		handles = append(handles, t.endpoint(p.Name, p.Path, p.Options, true))
	}
	return handles, nil
}

// Discover returns an endpoint for every serial port on the host. USB ports
// are named by their product string; others by their device file name.
func (t *Transport) Discover(ctx context.Context) ([]device.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports, err := t.enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	handles := make([]device.Handle, 0, len(ports))
	for _, p := range ports {
		handles = append(handles, t.endpoint(portName(p), p.Name, t.defaults, false))
	}
	return handles, nil
}

// Pair remembers h in the registry so later connects find it without
// discovery.
func (t *Transport) Pair(ctx context.Context, h device.Handle) error {
	ep, ok := h.(*Endpoint)
	if !ok {
		return fmt.Errorf("%w: %T is not a serial endpoint", device.ErrPairingFailed, h)
	}
	p := PairedPort{Name: ep.Name(), Path: ep.Address(), Options: ep.Options()}
	if err := t.registry.SavePairedPort(ctx, p); err != nil {
		return fmt.Errorf("%w: %v", device.ErrPairingFailed, err)
	}
	ep.setBonded(true)
	monitoring.Logf("paired %s at %s", p.Name, p.Path)
	return nil
}

// OnDeviceDisconnected registers fn for link loss on any endpoint.
func (t *Transport) OnDeviceDisconnected(fn func(device.Handle)) func() {
	id := uuid.NewString()
	t.listenerMu.Lock()
	t.listeners[id] = fn
	t.listenerMu.Unlock()
	return func() {
		t.listenerMu.Lock()
		delete(t.listeners, id)
		t.listenerMu.Unlock()
	}
}

// Subscribe returns a channel of raw chunks from every open endpoint, for
// debugging. Slow subscribers miss chunks.
func (t *Transport) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 16)
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Transport) Unsubscribe(id string) {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Close closes every endpoint and subscriber.
func (t *Transport) Close() error {
	t.subscriberMu.Lock()
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
	t.subscriberMu.Unlock()

	t.mu.Lock()
	endpoints := make([]*Endpoint, 0, len(t.endpoints))
	for _, ep := range t.endpoints {
		endpoints = append(endpoints, ep)
	}
	t.mu.Unlock()

	var firstErr error
	for _, ep := range endpoints {
		if err := ep.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// endpoint returns the endpoint for path, creating it on first use so that a
// port is never opened twice.
func (t *Transport) endpoint(name, path string, opts PortOptions, bonded bool) *Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ep, ok := t.endpoints[path]; ok {
		if bonded {
			ep.setBonded(true)
		}
		return ep
	}
	ep := NewEndpoint(name, path, opts, t.factory)
	ep.bonded = bonded
	ep.onLost = t.lost
	ep.onChunk = t.tail
	ep.onOpen = t.opened
	t.endpoints[path] = ep
	return ep
}

func (t *Transport) lost(ep *Endpoint) {
	t.listenerMu.Lock()
	fns := make([]func(device.Handle), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.listenerMu.Unlock()

	for _, fn := range fns {
		fn(ep)
	}
}

func (t *Transport) opened(ep *Endpoint) {
	if !ep.Bonded() {
		return
	}
	if err := t.registry.MarkConnected(context.Background(), ep.Address()); err != nil {
		monitoring.Logf("failed to record connect for %s: %v", ep.Address(), err)
	}
}

func (t *Transport) tail(ep *Endpoint, chunk string) {
	line := fmt.Sprintf("%s %q", ep.Address(), chunk)
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full skip so as not to block the reader
		}
	}
}

func portName(p *enumerator.PortDetails) string {
	if p.IsUSB && p.Product != "" {
		return p.Product
	}
	return filepath.Base(p.Name)
}

type portInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Bonded bool   `json:"bonded"`
	Open   bool   `json:"open"`
}

// AttachAdminRoutes attaches serial debugging endpoints to the given HTTP mux
// served at /debug/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func (t *Transport) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("serial-ports", "serial endpoints seen by the transport", func(w http.ResponseWriter, r *http.Request) {
		t.mu.Lock()
		ports := make([]portInfo, 0, len(t.endpoints))
		for _, ep := range t.endpoints {
			ep.mu.Lock()
			ports = append(ports, portInfo{Name: ep.name, Path: ep.path, Bonded: ep.bonded, Open: ep.port != nil})
			ep.mu.Unlock()
		}
		t.mu.Unlock()
		sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
		httputil.WriteJSONOK(w, ports)
	})

	// Server-Sent Events of raw chunks read from any open port.
	debug.HandleSilentFunc("serial-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := t.Subscribe()
		defer t.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
