package telemetry

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// samplePacket is a record captured from the band with the values 1.5..26.5.
func samplePacket() string {
	parts := make([]string, FieldCount)
	for i := range parts {
		parts[i] = strconv.FormatFloat(float64(i)+1.5, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func TestDecode_MapsPositions(t *testing.T) {
	got, err := Decode(samplePacket())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := SensorReading{
		GyroAccel:       AxisStats{MeanX: 1.5, StdDevX: 2.5, MeanY: 3.5, StdDevY: 4.5, MeanZ: 5.5, StdDevZ: 6.5},
		GyroVelocity:    AxisStats{MeanX: 7.5, StdDevX: 8.5, MeanY: 9.5, StdDevY: 10.5, MeanZ: 11.5, StdDevZ: 12.5},
		Accel:           AxisStats{MeanX: 13.5, StdDevX: 14.5, MeanY: 15.5, StdDevY: 16.5, MeanZ: 17.5, StdDevZ: 18.5},
		HeartRate:       19.5,
		SkinTemperature: 20.5,
		DeltaPedometer:  21.5,
		DeltaDistance:   22.5,
		Speed:           23.5,
		Pace:            24.5,
		DeltaCalories:   25.5,
		UV:              26.5,
		RawGyro:         Vector3{X: 7.5, Y: 9.5, Z: 11.5},
		RawAccel:        Vector3{X: 13.5, Y: 15.5, Z: 17.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_StripsStrayBytes(t *testing.T) {
	noisy := "\x02" + strings.Replace(samplePacket(), ",", " ,", 3) + "\r\x00"
	got, err := Decode(noisy)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want, _ := Decode(samplePacket())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_RejectsWrongFieldCount(t *testing.T) {
	tests := []struct {
		name   string
		packet string
		got    int
	}{
		{"empty", "", 1},
		{"short", "1,2,3", 3},
		{"one missing", samplePacket()[:strings.LastIndex(samplePacket(), ",")], 25},
		{"one extra", samplePacket() + ",27", 27},
		{"trailing comma", samplePacket() + ",", 27},
		{"garbage fields", strings.Repeat("x,", 30), 31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.packet)
			if !errors.Is(err, ErrFieldCountMismatch) {
				t.Fatalf("Decode() error = %v, want ErrFieldCountMismatch", err)
			}
			var fce *FieldCountError
			if !errors.As(err, &fce) {
				t.Fatalf("error %T is not *FieldCountError", err)
			}
			if fce.Got != tt.got || fce.Want != FieldCount {
				t.Errorf("FieldCountError = %+v, want Got=%d Want=%d", fce, tt.got, FieldCount)
			}
		})
	}
}

func TestDecode_LenientFields(t *testing.T) {
	tests := []struct {
		name         string
		field        string
		want         float64
		wantFallback bool
	}{
		{"repeated dot", "1.2.3", 1.2, false},
		{"trailing minus", "5-", 5, false},
		{"minus inside", "7-2", 7, false},
		{"leading dot", "-.5", -0.5, false},
		{"trailing dot", "80.", 80, false},
		{"letters only", "abc", 0, true},
		{"lone minus", "-", 0, true},
		{"lone dot", ".", 0, true},
		{"minus dot", "-.", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := strings.Split(samplePacket(), ",")
			parts[18] = tt.field // heart rate
			d, err := Decoder{}.Decode(strings.Join(parts, ","))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if d.Reading.HeartRate != tt.want {
				t.Errorf("HeartRate = %v, want %v", d.Reading.HeartRate, tt.want)
			}
			var wantFallbacks []int
			if tt.wantFallback {
				wantFallbacks = []int{18}
			}
			if diff := cmp.Diff(wantFallbacks, d.Fallbacks); diff != "" {
				t.Errorf("Fallbacks mismatch (-want +got):\n%s", diff)
			}

			values := d.Reading.Values()
			for i, v := range values {
				if i == 18 {
					continue
				}
				if want := float64(i) + 1.5; v != want {
					t.Errorf("value[%d] = %v, want %v", i, v, want)
				}
			}
		})
	}
}

func TestDecode_StrictRejectsFallbacks(t *testing.T) {
	parts := strings.Split(samplePacket(), ",")
	parts[3] = ""
	parts[10] = "1.2.3"
	parts[25] = "-"
	_, err := Decoder{Strict: true}.Decode(strings.Join(parts, ","))
	if !errors.Is(err, ErrFieldParse) {
		t.Fatalf("Decode() error = %v, want ErrFieldParse", err)
	}
	var fpe *FieldParseError
	if !errors.As(err, &fpe) {
		t.Fatalf("error %T is not *FieldParseError", err)
	}
	if diff := cmp.Diff([]int{3, 10, 25}, fpe.Indices); diff != "" {
		t.Errorf("Indices mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_IsDeterministic(t *testing.T) {
	a, errA := Decode(samplePacket())
	b, errB := Decode(samplePacket())
	if errA != nil || errB != nil {
		t.Fatalf("Decode() errors = %v, %v", errA, errB)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("repeated decode differs:\n%s", diff)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	packets := []string{
		samplePacket(),
		strings.TrimSuffix(strings.Repeat("0,", FieldCount), ","),
		"-0.51,0.02,9.81,0.1,-0.003,0.2,12,1,-3.25,0.5,0,0,0.98,0.01,-0.12,0.02,9.7,0.05,72,33.4,2,1.4,1.1,15.2,0.07,3",
	}
	for _, p := range packets {
		first, err := Decode(p)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", p, err)
		}
		second, err := Decode(Encode(first))
		if err != nil {
			t.Fatalf("Decode(Encode()) error = %v", err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("round trip mismatch for %q (-first +second):\n%s", p, diff)
		}
	}
}

func TestFromValues_ZeroIsInitialReading(t *testing.T) {
	var zero [FieldCount]float64
	if diff := cmp.Diff(SensorReading{}, FromValues(zero)); diff != "" {
		t.Errorf("FromValues(zero) mismatch:\n%s", diff)
	}
}
