package demo

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/bandlink/internal/telemetry"
)

//go:embed recordings/default.json
var defaultRecording []byte

// LoadRecording parses a JSON array of rows, each holding the 26 positional
// values of one record in wire order.
func LoadRecording(r io.Reader) ([]telemetry.SensorReading, error) {
	var rows [][]float64
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyRecording
	}

	out := make([]telemetry.SensorReading, len(rows))
	for i, row := range rows {
		if len(row) != telemetry.FieldCount {
			return nil, fmt.Errorf("row %d: %w", i, &telemetry.FieldCountError{Got: len(row), Want: telemetry.FieldCount})
		}
		out[i] = telemetry.FromValues([telemetry.FieldCount]float64(row))
	}
	return out, nil
}

// LoadRecordingFile loads a recording from path.
func LoadRecordingFile(path string) ([]telemetry.SensorReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return LoadRecording(f)
}

// DefaultRecording returns the recording bundled with the binary.
func DefaultRecording() []telemetry.SensorReading {
	seq, err := LoadRecording(bytes.NewReader(defaultRecording))
	if err != nil {
		panic(fmt.Sprintf("demo: embedded recording is invalid: %v", err))
	}
	return seq
}

// WriteRecording writes seq in the format LoadRecording reads.
func WriteRecording(w io.Writer, seq []telemetry.SensorReading) error {
	rows := make([][telemetry.FieldCount]float64, len(seq))
	for i, r := range seq {
		rows[i] = r.Values()
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	return nil
}
