package demo

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/units"
)

// PlotRecording renders heart rate and speed over a recording to path. The
// image format follows the file extension (png, svg, pdf).
func PlotRecording(seq []telemetry.SensorReading, path string) error {
	if len(seq) == 0 {
		return ErrEmptyRecording
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Demo recording (%d readings)", len(seq))
	p.X.Label.Text = "Reading"
	p.Y.Label.Text = "bpm / " + units.SpeedLabel(units.KMPH)

	hr := make(plotter.XYs, len(seq))
	speed := make(plotter.XYs, len(seq))
	for i, r := range seq {
		hr[i] = plotter.XY{X: float64(i), Y: r.HeartRate}
		speed[i] = plotter.XY{X: float64(i), Y: units.ConvertSpeed(r.Speed, units.KMPH)}
	}

	hrLine, err := plotter.NewLine(hr)
	if err != nil {
		return err
	}
	hrLine.Color = color.RGBA{R: 200, G: 30, B: 45, A: 255}
	hrLine.Width = vg.Points(1)
	p.Add(hrLine)
	p.Legend.Add("heart rate", hrLine)

	speedLine, err := plotter.NewLine(speed)
	if err != nil {
		return err
	}
	speedLine.Color = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	speedLine.Width = vg.Points(1)
	p.Add(speedLine)
	p.Legend.Add("speed", speedLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
