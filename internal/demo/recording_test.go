package demo

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/bandlink/internal/telemetry"
)

func TestLoadRecording(t *testing.T) {
	row := "[" + strings.TrimSuffix(strings.Repeat("1.5,", telemetry.FieldCount), ",") + "]"

	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{name: "two rows", input: "[" + row + "," + row + "]", wantLen: 2},
		{name: "short row", input: "[" + row + ",[1,2,3]]", wantErr: true},
		{name: "empty", input: "[]", wantErr: true},
		{name: "not json", input: "1,2,3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadRecording(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadRecording() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("LoadRecording() len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestDefaultRecording(t *testing.T) {
	seq := DefaultRecording()
	if len(seq) == 0 {
		t.Fatal("embedded recording is empty")
	}
	for i, r := range seq {
		if r.HeartRate < 30 || r.HeartRate > 220 {
			t.Errorf("reading %d: heart rate %v out of range", i, r.HeartRate)
		}
	}
}

func TestWriteRecording_RoundTrip(t *testing.T) {
	seq := Generate(GeneratorOptions{Readings: 20, Seed: 3})

	var buf bytes.Buffer
	if err := WriteRecording(&buf, seq); err != nil {
		t.Fatalf("WriteRecording() error = %v", err)
	}
	got, err := LoadRecording(&buf)
	if err != nil {
		t.Fatalf("LoadRecording() error = %v", err)
	}
	if diff := cmp.Diff(seq, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRecordingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteRecording(f, seqOf(65, 66)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := LoadRecordingFile(path)
	if err != nil {
		t.Fatalf("LoadRecordingFile() error = %v", err)
	}
	if len(got) != 2 || got[1].HeartRate != 66 {
		t.Errorf("LoadRecordingFile() = %+v", got)
	}

	if _, err := LoadRecordingFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGenerate(t *testing.T) {
	a := Generate(GeneratorOptions{Readings: 120, Seed: 42})
	b := Generate(GeneratorOptions{Readings: 120, Seed: 42})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different output:\n%s", diff)
	}
	if len(a) != 120 {
		t.Fatalf("len = %d, want 120", len(a))
	}

	for i, r := range a {
		for _, sd := range []float64{r.Accel.StdDevX, r.Accel.StdDevY, r.Accel.StdDevZ, r.GyroVelocity.StdDevX} {
			if sd < 0 {
				t.Errorf("reading %d: negative std dev %v", i, sd)
			}
		}
		if r.RawGyro.X != r.GyroVelocity.MeanX || r.RawAccel.Z != r.Accel.MeanZ {
			t.Errorf("reading %d: raw vectors not derived from means", i)
		}
		if r.Speed > 0 && r.Pace <= 0 {
			t.Errorf("reading %d: speed %v with pace %v", i, r.Speed, r.Pace)
		}
	}
	if first, last := a[0].HeartRate, a[len(a)-1].HeartRate; last <= first {
		t.Errorf("heart rate should rise over the session: first %v last %v", first, last)
	}
	if a[len(a)-1].Accel.MeanZ < 9 {
		t.Errorf("vertical acceleration should include gravity, got %v", a[len(a)-1].Accel.MeanZ)
	}
}

func TestPlotRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.png")
	if err := PlotRecording(Generate(GeneratorOptions{Readings: 30}), path); err != nil {
		t.Fatalf("PlotRecording() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}

	if err := PlotRecording(nil, path); err != ErrEmptyRecording {
		t.Errorf("PlotRecording(nil) error = %v, want ErrEmptyRecording", err)
	}
}
