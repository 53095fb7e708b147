package api

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/bandlink/internal/framing"
	"github.com/banshee-data/bandlink/internal/httputil"
	"github.com/banshee-data/bandlink/internal/store"
	"github.com/banshee-data/bandlink/internal/telemetry"
	"github.com/banshee-data/bandlink/internal/units"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// samplePacket prefills the parse form.
const samplePacket = "0.01,0.02,0.03,0.04,0.05,0.06,0.07,0.08,0.09,0.10,0.11,0.12,0.13,0.14,0.15,0.16,0.17,0.18,75,36.5,100,200,1.2,5.0,50,0.5"

// AttachAdminRoutes attaches the chart and packet parsing pages to the debug
// mux served at /debug/. These routes are accessible only over
// localhost/via Tailscale.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("chart", "Recent readings chart", s.handleChart)
	debug.HandleFunc("parse", "Test packet framing and decoding", s.handleParse)
}

// handleChart renders the store's history as an echarts line chart. The
// speed_units and temp_units query parameters select display units.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	speedUnits := r.URL.Query().Get("speed_units")
	if speedUnits == "" {
		speedUnits = units.MPS
	}
	if !units.IsValidSpeed(speedUnits) {
		httputil.BadRequest(w, "speed_units must be one of: "+units.ValidSpeedUnitsString())
		return
	}
	tempUnits := r.URL.Query().Get("temp_units")
	if tempUnits == "" {
		tempUnits = units.Celsius
	}
	if !units.IsValidTemperature(tempUnits) {
		httputil.BadRequest(w, "temp_units must be c or f")
		return
	}

	history := s.session.Store().History()
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(
		historyChart("Heart rate & skin temperature", history,
			series{"heart rate (bpm)", func(r telemetry.SensorReading) float64 { return r.HeartRate }},
			series{"skin temperature (" + units.TemperatureLabel(tempUnits) + ")", func(r telemetry.SensorReading) float64 {
				return units.ConvertTemperature(r.SkinTemperature, tempUnits)
			}},
		),
		historyChart("Motion", history,
			series{"speed (" + units.SpeedLabel(speedUnits) + ")", func(r telemetry.SensorReading) float64 {
				return units.ConvertSpeed(r.Speed, speedUnits)
			}},
			series{"accel x", func(r telemetry.SensorReading) float64 { return r.RawAccel.X }},
			series{"gyro x", func(r telemetry.SensorReading) float64 { return r.RawGyro.X }},
		),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

type series struct {
	name  string
	value func(telemetry.SensorReading) float64
}

func historyChart(title string, history []store.Sample, lines ...series) *charts.Line {
	x := make([]string, len(history))
	for i, h := range history {
		x[i] = h.At.Format("15:04:05.000")
	}

	subtitle := "no readings yet"
	if n := len(history); n > 0 {
		subtitle = fmt.Sprintf("%d readings, latest %s", n, history[n-1].At.Format(time.RFC3339))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "bandlink", Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	line.SetXAxis(x)
	for _, l := range lines {
		data := make([]opts.LineData, len(history))
		for i, h := range history {
			data[i] = opts.LineData{Value: l.value(h.Reading)}
		}
		line.AddSeries(l.name, data)
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

// ParseResult is one packet framed from the parse input.
type ParseResult struct {
	Packet    string                   `json:"packet"`
	Reading   *telemetry.SensorReading `json:"reading,omitempty"`
	Fallbacks []int                    `json:"fallbacks,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

var parseForm = template.Must(template.New("parse").Parse(`<!DOCTYPE html>
<html><head><title>bandlink parse</title></head>
<body>
<h1>Test parse</h1>
<p>Framing: {{.Framing}}, strict fields: {{.Strict}}</p>
<form method="POST">
<textarea name="packet" rows="6" cols="100">{{.Sample}}</textarea><br>
<button type="submit">Parse</button>
</form>
</body></html>
`))

// handleParse frames and decodes text exactly as the live pipeline would,
// without publishing anything to the store.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = parseForm.Execute(w, map[string]any{
			"Framing": framing.NewAssembler(s.framing).Strategy(),
			"Strict":  s.decoder.Strict,
			"Sample":  samplePacket,
		})
	case http.MethodPost:
		input := r.FormValue("packet")
		if strings.TrimSpace(input) == "" {
			httputil.BadRequest(w, "missing packet")
			return
		}
		httputil.WriteJSONOK(w, s.parse(input))
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) parse(input string) []ParseResult {
	packets := framing.NewAssembler(s.framing).Push(input)
	if len(packets) == 0 {
		// an unterminated record is still worth decoding here
		packets = []string{strings.TrimSpace(input)}
	}

	results := make([]ParseResult, 0, len(packets))
	for _, p := range packets {
		res := ParseResult{Packet: p}
		decoded, err := s.decoder.Decode(p)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Reading = &decoded.Reading
			res.Fallbacks = decoded.Fallbacks
		}
		results = append(results, res)
	}
	return results
}
