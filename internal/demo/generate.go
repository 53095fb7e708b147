package demo

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/bandlink/internal/telemetry"
)

// GeneratorOptions controls a synthetic recording. Zero fields take the
// defaults noted on each.
type GeneratorOptions struct {
	// Readings is the number of records to produce (default 300).
	Readings int
	// SampleRate is the simulated IMU rate in Hz (default 50).
	SampleRate float64
	// WindowSamples is the number of IMU samples summarised per record
	// (default 50, one second at 50 Hz).
	WindowSamples int
	// Seed makes the output reproducible.
	Seed uint64
}

func (o GeneratorOptions) withDefaults() GeneratorOptions {
	if o.Readings <= 0 {
		o.Readings = 300
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 50
	}
	if o.WindowSamples <= 0 {
		o.WindowSamples = 50
	}
	return o
}

const (
	strideMetres    = 0.75
	kcalPerStep     = 0.04
	gravity         = 9.81
	restingHR       = 68.0
	peakHR          = 142.0
	baseSkinTempC   = 32.8
	skinTempRiseC   = 1.6
	gyroAmplitude   = 1.2 // rad/s
	accelAmplitude  = 2.4 // m/s^2
	noiseSigma      = 0.08
	walkCadenceHz   = 1.6
	runCadenceHz    = 2.8
	cadenceRampFrac = 0.4
)

// Generate synthesises a walk that builds into a run. Each record summarises a
// window of simulated IMU samples by per-axis mean and standard deviation, in
// the same layout the band's firmware emits.
func Generate(opts GeneratorOptions) []telemetry.SensorReading {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	dt := 1 / opts.SampleRate
	windowSecs := float64(opts.WindowSamples) * dt

	n := opts.WindowSamples
	gx, gy, gz := make([]float64, n), make([]float64, n), make([]float64, n)
	gax, gay, gaz := make([]float64, n), make([]float64, n), make([]float64, n)
	ax, ay, az := make([]float64, n), make([]float64, n), make([]float64, n)
	noise := func() float64 { return rng.NormFloat64() * noiseSigma }
	uvBase := 3 + rng.Float64()*4

	var phase, prevGX, prevGY, prevGZ, stepsCarry float64
	out := make([]telemetry.SensorReading, opts.Readings)

	for i := range out {
		progress := float64(i) / float64(max(opts.Readings-1, 1))
		effort := math.Min(progress/cadenceRampFrac, 1)
		cadence := walkCadenceHz + (runCadenceHz-walkCadenceHz)*effort

		for k := range n {
			phase += 2 * math.Pi * cadence * dt
			amp := 0.5 + effort
			gx[k] = gyroAmplitude*amp*math.Sin(phase) + noise()
			gy[k] = 0.4*gyroAmplitude*amp*math.Sin(2*phase) + noise()
			gz[k] = 0.2*gyroAmplitude*math.Cos(phase) + noise()
			gax[k] = (gx[k] - prevGX) / dt
			gay[k] = (gy[k] - prevGY) / dt
			gaz[k] = (gz[k] - prevGZ) / dt
			prevGX, prevGY, prevGZ = gx[k], gy[k], gz[k]
			ax[k] = accelAmplitude*amp*math.Sin(phase+math.Pi/4) + noise()
			ay[k] = 0.5*accelAmplitude*amp*math.Cos(phase) + noise()
			az[k] = gravity + accelAmplitude*amp*math.Abs(math.Sin(phase)) + noise()
		}

		steps := cadence*windowSecs + stepsCarry
		whole := math.Floor(steps)
		stepsCarry = steps - whole
		distance := whole * strideMetres
		speed := distance / windowSecs
		pace := 0.0
		if speed > 0 {
			pace = 1000 / speed / 60
		}

		var v [telemetry.FieldCount]float64
		putStats(v[0:6], gax, gay, gaz)
		putStats(v[6:12], gx, gy, gz)
		putStats(v[12:18], ax, ay, az)
		v[18] = math.Round(restingHR + (peakHR-restingHR)*effort + rng.NormFloat64()*1.5)
		v[19] = round(baseSkinTempC+skinTempRiseC*progress+rng.NormFloat64()*0.05, 2)
		v[20] = whole
		v[21] = round(distance, 2)
		v[22] = round(speed, 2)
		v[23] = round(pace, 2)
		v[24] = round(whole*kcalPerStep*(1+effort), 3)
		v[25] = round(math.Max(0, uvBase+rng.NormFloat64()*0.2), 1)
		out[i] = telemetry.FromValues(v)
	}
	return out
}

func putStats(dst []float64, x, y, z []float64) {
	for i, axis := range [][]float64{x, y, z} {
		mean, std := stat.MeanStdDev(axis, nil)
		dst[2*i] = round(mean, 4)
		dst[2*i+1] = round(std, 4)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
