package serialmux

import (
	"io"
	"time"
)

// SerialPorter is an open byte stream to a band: an rfcomm tty, a USB adapter
// or a fake.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortMode is what a SerialPortFactory needs to open a port.
type SerialPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// DefaultBaudRate is the factory rate of the band's HC-05 module.
const DefaultBaudRate = 9600

// DefaultSerialPortMode returns the HC-05 factory mode, 9600 8N1.
func DefaultSerialPortMode() *SerialPortMode {
	return &SerialPortMode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// SerialPortFactory opens ports by path.
type SerialPortFactory interface {
	Open(path string, mode *SerialPortMode) (SerialPorter, error)
}

// SerialPortOpener adapts a func to SerialPortFactory.
type SerialPortOpener func(path string, mode *SerialPortMode) (SerialPorter, error)

func (f SerialPortOpener) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	return f(path, mode)
}

// TimeoutSerialPorter is implemented by ports whose reads can time out, which
// lets an endpoint's monitor notice Close without waiting for data.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}
