package serialmux

import (
	"io"
	"sync"
	"time"

	"github.com/banshee-data/bandlink/internal/monitoring"
)

// MockBandPort is a SerialPorter that replays packets as a band would, one
// every interval, each terminated by a newline. Writes are discarded.
type MockBandPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	done chan struct{}
	once sync.Once
}

// NewMockBandPort starts replaying packets in a loop until the port is closed.
func NewMockBandPort(packets []string, interval time.Duration) *MockBandPort {
	r, w := io.Pipe()
	m := &MockBandPort{r: r, w: w, done: make(chan struct{})}
	monitoring.Logf("mock band port replaying %d packets every %v", len(packets), interval)

	// generate data periodically to simulate serial port input
	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; len(packets) > 0; i = (i + 1) % len(packets) {
			select {
			case <-m.done:
				return
			case <-ticker.C:
			}
			if _, err := w.Write([]byte(packets[i] + "\n")); err != nil {
				return
			}
		}
	}()
	return m
}

func (m *MockBandPort) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *MockBandPort) Write(p []byte) (int, error) { return len(p), nil }

func (m *MockBandPort) Close() error {
	m.once.Do(func() { close(m.done) })
	return m.r.Close()
}
