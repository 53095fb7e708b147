package serialmux

import (
	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware ports with go.bug.st/serial.
type RealSerialPortFactory struct{}

func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the serial port at path. A nil mode uses DefaultSerialPortMode.
func (RealSerialPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	if mode == nil {
		mode = DefaultSerialPortMode()
	}
	port, err := serial.Open(path, toSerialMode(mode))
	if err != nil {
		return nil, err
	}
	return port, nil
}

func toSerialMode(mode *SerialPortMode) *serial.Mode {
	m := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if mode.StopBits == TwoStopBits {
		m.StopBits = serial.TwoStopBits
	}
	switch mode.Parity {
	case OddParity:
		m.Parity = serial.OddParity
	case EvenParity:
		m.Parity = serial.EvenParity
	}
	return m
}
