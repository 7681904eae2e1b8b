package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gunmetal-robotics/sentry/internal/security"
)

var plotTitles = map[string]string{
	"yaw":   "Yaw Profile",
	"pitch": "Pitch Profile",
}

var (
	commandedColor = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	observedColor  = color.RGBA{R: 68, G: 138, B: 255, A: 255}
)

// SaveSweepPlots writes one PNG per axis (yaw, pitch) into outDir, each
// overlaying the commanded and observed tick profile. Returns the written
// paths.
func SaveSweepPlots(data *SessionData, outDir, baseName string) ([]string, error) {
	base := security.SanitizeFilename(baseName)

	var written []string
	for _, axis := range []string{"yaw", "pitch"} {
		path := filepath.Join(outDir, fmt.Sprintf("%s_%s.png", base, axis))
		if err := security.ValidatePathWithinAllowedDirs(path, []string{outDir}); err != nil {
			return written, err
		}
		if err := saveAxisPlot(data, axis, path); err != nil {
			return written, fmt.Errorf("save %s plot: %w", axis, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func saveAxisPlot(data *SessionData, axis, path string) error {
	p := plot.New()
	p.Title.Text = plotTitles[axis]
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Ticks"

	if pts := commandSeries(data, axis); len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = commandedColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("commanded", line)
	}

	if pts := telemetrySeries(data, axis); len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = observedColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("observed", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

func commandSeries(data *SessionData, axis string) plotter.XYs {
	pts := make(plotter.XYs, 0, len(data.Commands))
	for _, c := range data.Commands {
		v := c.Yaw
		if axis == "pitch" {
			v = c.Pitch
		}
		pts = append(pts, plotter.XY{X: data.seconds(c.SentAt), Y: float64(v)})
	}
	return pts
}

func telemetrySeries(data *SessionData, axis string) plotter.XYs {
	pts := make(plotter.XYs, 0, len(data.Telemetry))
	for _, t := range data.Telemetry {
		v := t.Yaw
		if axis == "pitch" {
			v = t.Pitch
		}
		pts = append(pts, plotter.XY{X: data.seconds(t.ReceivedAt), Y: float64(v)})
	}
	return pts
}
