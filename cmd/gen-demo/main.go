// Command gen-demo synthesises a demo recording and optionally plots it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/bandlink/internal/demo"
	"github.com/banshee-data/bandlink/internal/telemetry"
)

var (
	out      = flag.String("out", "internal/demo/recordings/default.json", "Output recording path")
	plotPath = flag.String("plot", "", "Also render heart rate and speed to this image (png, svg or pdf)")
	readings = flag.Int("n", 300, "Number of readings")
	rate     = flag.Float64("rate", 50, "Simulated IMU sample rate in Hz")
	window   = flag.Int("window", 50, "IMU samples summarised per reading")
	seed     = flag.Uint64("seed", 1, "Random seed")
)

func main() {
	flag.Parse()

	seq := demo.Generate(demo.GeneratorOptions{
		Readings:      *readings,
		SampleRate:    *rate,
		WindowSamples: *window,
		Seed:          *seed,
	})
	if err := writeRecording(*out, seq); err != nil {
		log.Fatalf("failed to write recording: %v", err)
	}
	log.Printf("wrote %d readings to %s", len(seq), *out)

	if *plotPath != "" {
		if err := demo.PlotRecording(seq, *plotPath); err != nil {
			log.Fatalf("failed to plot recording: %v", err)
		}
		log.Printf("plotted recording to %s", *plotPath)
	}
}

func writeRecording(path string, seq []telemetry.SensorReading) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := demo.WriteRecording(f, seq); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
