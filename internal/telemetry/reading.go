// Package telemetry defines the band's sensor reading and the codec for its
// comma-separated wire record.
package telemetry

// FieldCount is the number of positional values in one wire record.
const FieldCount = 26

// AxisStats holds the per-axis mean and standard deviation the band computes
// over one sampling window.
type AxisStats struct {
	MeanX   float64 `json:"mean_x"`
	StdDevX float64 `json:"std_dev_x"`
	MeanY   float64 `json:"mean_y"`
	StdDevY float64 `json:"std_dev_y"`
	MeanZ   float64 `json:"mean_z"`
	StdDevZ float64 `json:"std_dev_z"`
}

// Vector3 is a plain x/y/z triple used for display values.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SensorReading is one decoded record. It is a value type: publishing a reading
// copies it, so readers never observe a partially written record.
//
// The zero value is the initial reading reported before any data arrives.
type SensorReading struct {
	GyroAccel    AxisStats `json:"gyro_accel"`
	GyroVelocity AxisStats `json:"gyro_velocity"`
	Accel        AxisStats `json:"accel"`

	HeartRate       float64 `json:"heart_rate"`
	SkinTemperature float64 `json:"skin_temperature"`
	DeltaPedometer  float64 `json:"delta_pedometer"`
	DeltaDistance   float64 `json:"delta_distance"`
	Speed           float64 `json:"speed"`
	Pace            float64 `json:"pace"`
	DeltaCalories   float64 `json:"delta_calories"`
	UV              float64 `json:"uv"`

	// RawGyro and RawAccel mirror the angular velocity and body acceleration
	// means. They are derived, not carried on the wire.
	RawGyro  Vector3 `json:"raw_gyro"`
	RawAccel Vector3 `json:"raw_accel"`
}

// FromValues maps the positional wire values into a reading and derives the
// raw display vectors.
func FromValues(v [FieldCount]float64) SensorReading {
	return SensorReading{
		GyroAccel:       axisFrom(v[0:6]),
		GyroVelocity:    axisFrom(v[6:12]),
		Accel:           axisFrom(v[12:18]),
		HeartRate:       v[18],
		SkinTemperature: v[19],
		DeltaPedometer:  v[20],
		DeltaDistance:   v[21],
		Speed:           v[22],
		Pace:            v[23],
		DeltaCalories:   v[24],
		UV:              v[25],
		RawGyro:         Vector3{X: v[6], Y: v[8], Z: v[10]},
		RawAccel:        Vector3{X: v[12], Y: v[14], Z: v[16]},
	}
}

// Values returns the reading's positional wire values. RawGyro and RawAccel are
// not included since they are not wire fields.
func (r SensorReading) Values() [FieldCount]float64 {
	var v [FieldCount]float64
	r.GyroAccel.put(v[0:6])
	r.GyroVelocity.put(v[6:12])
	r.Accel.put(v[12:18])
	v[18] = r.HeartRate
	v[19] = r.SkinTemperature
	v[20] = r.DeltaPedometer
	v[21] = r.DeltaDistance
	v[22] = r.Speed
	v[23] = r.Pace
	v[24] = r.DeltaCalories
	v[25] = r.UV
	return v
}

func axisFrom(v []float64) AxisStats {
	return AxisStats{
		MeanX:   v[0],
		StdDevX: v[1],
		MeanY:   v[2],
		StdDevY: v[3],
		MeanZ:   v[4],
		StdDevZ: v[5],
	}
}

func (a AxisStats) put(v []float64) {
	v[0], v[1] = a.MeanX, a.StdDevX
	v[2], v[3] = a.MeanY, a.StdDevY
	v[4], v[5] = a.MeanZ, a.StdDevZ
}
