// Serialmux provides the serial transport for the band: endpoints wrapping a
// single serial port, with any number of subscribers receiving the raw chunks
// read from it, and a transport that finds, remembers and supervises those
// endpoints.
package serialmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/monitoring"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// readTimeout bounds each Read on ports that support it so the reader notices
// Close promptly.
const readTimeout = 250 * time.Millisecond

const readBufferSize = 512

// Endpoint is one band reachable on a serial port. It implements device.Handle.
type Endpoint struct {
	name    string
	path    string
	opts    PortOptions
	factory SerialPortFactory
	// onLost is called from the reader goroutine when the port fails.
	onLost func(*Endpoint)
	// onChunk receives every chunk read, for the transport's raw tail.
	onChunk func(*Endpoint, string)
	// onOpen is called after the port opens.
	onOpen func(*Endpoint)

	mu      sync.Mutex
	port    SerialPorter
	bonded  bool
	closing bool

	subscriberMu sync.Mutex
	subscribers  map[string]func(string)

	commandMu sync.Mutex
}

var _ device.Handle = (*Endpoint)(nil)

// NewEndpoint creates a closed endpoint for the port at path.
func NewEndpoint(name, path string, opts PortOptions, factory SerialPortFactory) *Endpoint {
	return &Endpoint{
		name:        name,
		path:        path,
		opts:        opts,
		factory:     factory,
		subscribers: make(map[string]func(string)),
	}
}

func (e *Endpoint) Name() string    { return e.name }
func (e *Endpoint) Address() string { return e.path }

func (e *Endpoint) Options() PortOptions { return e.opts }

func (e *Endpoint) Bonded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bonded
}

func (e *Endpoint) setBonded(b bool) {
	e.mu.Lock()
	e.bonded = b
	e.mu.Unlock()
}

// Connect opens the serial port and starts reading from it. Connecting an open
// endpoint is a no-op.
func (e *Endpoint) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mode, err := e.opts.PortMode()
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.port != nil {
		e.mu.Unlock()
		return nil
	}

	port, err := e.factory.Open(e.path, mode)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to open %s: %w", e.path, err)
	}
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		port.Close()
		return err
	}
	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(readTimeout); err != nil {
			monitoring.Logf("failed to set read timeout on %s: %v", e.path, err)
		}
	}

	e.port = port
	e.closing = false
	go e.monitor(port)
	e.mu.Unlock()

	if e.onOpen != nil {
		e.onOpen(e)
	}
	return nil
}

// IsConnected reports whether the port is open.
func (e *Endpoint) IsConnected(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port != nil && !e.closing, nil
}

// OnDataReceived registers fn for every chunk read from the port. Chunks are
// delivered in read order from a single goroutine.
func (e *Endpoint) OnDataReceived(fn func(chunk string)) func() {
	id := uuid.NewString()
	e.subscriberMu.Lock()
	e.subscribers[id] = fn
	e.subscriberMu.Unlock()

	return func() {
		e.subscriberMu.Lock()
		delete(e.subscribers, id)
		e.subscriberMu.Unlock()
	}
}

// Write sends text to the port exactly as given.
func (e *Endpoint) Write(text string) error {
	e.commandMu.Lock()
	defer e.commandMu.Unlock()

	e.mu.Lock()
	port := e.port
	e.mu.Unlock()
	if port == nil {
		return device.ErrNotConnected
	}

	n, err := port.Write([]byte(text))
	if err != nil {
		return err
	}
	if n != len(text) {
		return ErrWriteFailed
	}
	return nil
}

// Close closes the port. Closing does not report link loss, and it is safe to
// call more than once.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	port := e.port
	e.port = nil
	e.closing = true
	e.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

// monitor reads chunks until the port fails or is closed.
func (e *Endpoint) monitor(port SerialPorter) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			e.deliver(string(buf[:n]))
		}
		if err == nil {
			continue
		}

		e.mu.Lock()
		deliberate := e.closing || e.port != port
		if !deliberate {
			e.port = nil
		}
		e.mu.Unlock()
		if deliberate {
			return
		}

		if errors.Is(err, io.EOF) {
			monitoring.Logf("serial port %s closed by peer", e.path)
		} else {
			monitoring.Logf("serial port %s read failed: %v", e.path, err)
		}
		port.Close()
		if e.onLost != nil {
			e.onLost(e)
		}
		return
	}
}

func (e *Endpoint) deliver(chunk string) {
	e.subscriberMu.Lock()
	fns := make([]func(string), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.subscriberMu.Unlock()

	for _, fn := range fns {
		fn(chunk)
	}
	if e.onChunk != nil {
		e.onChunk(e, chunk)
	}
}
