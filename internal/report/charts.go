package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gunmetal-robotics/sentry/internal/security"
)

// maxChartPoints caps each scatter series; denser series are strided down.
const maxChartPoints = 4000

// viridisRamp colors the engagement scatter by confidence.
var viridisRamp = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderHTML writes the interactive chart page for one session.
func RenderHTML(data *SessionData, w io.Writer) error {
	page := components.NewPage()
	page.AddCharts(
		attitudeChart(data),
		engagementChart(data),
		activityChart(data),
	)
	return page.Render(w)
}

// WriteHTMLFile renders the chart page to <outDir>/<base>.html, refusing
// paths that resolve outside outDir. Returns the written path.
func WriteHTMLFile(data *SessionData, outDir, baseName string) (string, error) {
	path := filepath.Join(outDir, security.SanitizeFilename(baseName)+".html")
	if err := security.ValidatePathWithinAllowedDirs(path, []string{outDir}); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := RenderHTML(data, f); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return path, nil
}

// stride keeps a series under maxChartPoints.
func stride(n int) int {
	if n <= maxChartPoints {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(maxChartPoints)))
}

// attitudeChart plots commanded and observed attitude ticks against session
// time, both axes on one tick scale.
func attitudeChart(data *SessionData) *charts.Scatter {
	cmdYaw := make([]opts.ScatterData, 0, maxChartPoints)
	cmdPitch := make([]opts.ScatterData, 0, maxChartPoints)
	cs := stride(len(data.Commands))
	for i := 0; i < len(data.Commands); i += cs {
		c := data.Commands[i]
		t := data.seconds(c.SentAt)
		cmdYaw = append(cmdYaw, opts.ScatterData{Value: []interface{}{t, c.Yaw}})
		cmdPitch = append(cmdPitch, opts.ScatterData{Value: []interface{}{t, c.Pitch}})
	}

	obsYaw := make([]opts.ScatterData, 0, maxChartPoints)
	obsPitch := make([]opts.ScatterData, 0, maxChartPoints)
	ts := stride(len(data.Telemetry))
	for i := 0; i < len(data.Telemetry); i += ts {
		rec := data.Telemetry[i]
		t := data.seconds(rec.ReceivedAt)
		obsYaw = append(obsYaw, opts.ScatterData{Value: []interface{}{t, rec.Yaw}})
		obsPitch = append(obsPitch, opts.ScatterData{Value: []interface{}{t, rec.Pitch}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sentry Session Report", Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Attitude Over Session", Subtitle: sessionSubtitle(data)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Ticks", NameLocation: "middle", NameGap: 45}),
	)

	scatter.AddSeries("commanded yaw", cmdYaw, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	scatter.AddSeries("observed yaw", obsYaw, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ffab91"}))
	scatter.AddSeries("commanded pitch", cmdPitch, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#448aff"}))
	scatter.AddSeries("observed pitch", obsPitch, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#81d4fa"}))
	return scatter
}

// engagementChart plots each lock as duration over session time, colored by
// peak confidence.
func engagementChart(data *SessionData) *charts.Scatter {
	points := make([]opts.ScatterData, 0, len(data.Engagements))
	for _, e := range data.Engagements {
		t := data.seconds(e.LockedAt)
		points = append(points, opts.ScatterData{Value: []interface{}{t, e.DurationMs, e.PeakConfidence}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Engagements", Subtitle: fmt.Sprintf("%s locks=%d", sessionSubtitle(data), len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Lock time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Duration (ms)", NameLocation: "middle", NameGap: 45}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisRamp},
		}),
	)
	scatter.AddSeries("engagements", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	return scatter
}

// activityChart summarizes the session's record counts.
func activityChart(data *SessionData) *charts.Bar {
	x := []string{"Commands", "Telemetry", "Engagements", "Pulses"}
	pulses := 0
	if data.Stats != nil {
		pulses = data.Stats.TotalPulses
	}
	y := []opts.BarData{
		{Value: len(data.Commands)},
		{Value: len(data.Telemetry)},
		{Value: len(data.Engagements)},
		{Value: pulses},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Session Activity", Subtitle: sessionSubtitle(data)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("activity", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func sessionSubtitle(data *SessionData) string {
	if data.Session == nil {
		return ""
	}
	return fmt.Sprintf("session=%s color=%s", data.Session.SessionID, data.Session.TargetColor)
}
