package serialmux

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

var errFakeClosed = errors.New("serial port closed")

// FakePort is an in-memory SerialPorter for tests. Bytes passed to Feed are
// returned by Read; bytes written are kept for Written. The exported error
// fields are returned once by the next matching call.
type FakePort struct {
	mu   sync.Mutex
	cond *sync.Cond
	in   bytes.Buffer
	out  bytes.Buffer

	// BlockReads makes Read wait for Feed or Close instead of returning
	// io.EOF on an empty buffer, like a quiet rfcomm link.
	BlockReads bool

	ReadError  error
	WriteError error
	CloseError error

	Closed      bool
	ReadCalls   int
	ReadTimeout time.Duration
}

func NewFakePort() *FakePort {
	p := &FakePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++
	if err := p.takeErr(&p.ReadError); err != nil {
		return 0, err
	}
	for p.BlockReads && !p.Closed && p.in.Len() == 0 {
		p.cond.Wait()
	}
	if p.Closed {
		return 0, errFakeClosed
	}
	return p.in.Read(b)
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeErr(&p.WriteError); err != nil {
		return 0, err
	}
	if p.Closed {
		return 0, errFakeClosed
	}
	return p.out.Write(b)
}

func (p *FakePort) takeErr(field *error) error {
	err := *field
	*field = nil
	return err
}

// Close wakes any blocked reader.
func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *FakePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadTimeout = d
	return nil
}

// Feed queues bytes as if the band had sent them.
func (p *FakePort) Feed(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Write(b)
	p.cond.Broadcast()
}

// Written returns a copy of everything written so far.
func (p *FakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

// Reset reopens the port and clears buffers, counters and queued errors.
// BlockReads is kept.
func (p *FakePort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Reset()
	p.out.Reset()
	p.ReadError, p.WriteError, p.CloseError = nil, nil, nil
	p.Closed = false
	p.ReadCalls = 0
}

// OpenCall is one recorded FakeOpener.Open.
type OpenCall struct {
	Path string
	Mode *SerialPortMode
}

// FakeOpener is a SerialPortFactory that hands out Port, or fails with Err
// when it is set.
type FakeOpener struct {
	mu    sync.Mutex
	Port  SerialPorter
	Err   error
	Opens []OpenCall
}

func NewFakeOpener(port SerialPorter) *FakeOpener {
	return &FakeOpener{Port: port}
}

func (f *FakeOpener) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Opens = append(f.Opens, OpenCall{Path: path, Mode: mode})
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Port, nil
}

// LastOpen returns the most recent call, or nil.
func (f *FakeOpener) LastOpen() *OpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Opens) == 0 {
		return nil
	}
	return &f.Opens[len(f.Opens)-1]
}

// Reset forgets recorded calls and clears Err.
func (f *FakeOpener) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opens = nil
	f.Err = nil
}
