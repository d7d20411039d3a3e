// Package visualize renders training curves with gonum/plot.
package visualize

import (
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ezoic/atomtrain/pkg/errors"
)

// Default canvas size of saved plots.
var (
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
)

// Series is one named curve, indexed by training cycle.
type Series struct {
	Name   string
	Values []float64
	Color  color.Color
}

var (
	trainColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	testColor  = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// PlotLosses saves train and test loss against the training cycle to path.
// The image format follows the extension (png, svg, pdf, ...).
func PlotLosses(train, test []float64, path string) error {
	return Plot("Training history", "Loss", path,
		Series{Name: "Train", Values: train, Color: trainColor},
		Series{Name: "Test", Values: test, Color: testColor},
	)
}

// Plot draws each non-empty series as a line against the 1-based cycle and
// saves the figure to path.
func Plot(title, yLabel, path string, series ...Series) error {
	if filepath.Ext(path) == "" {
		return errors.NewValueError("visualize.Plot", "output path needs an image extension: "+path)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Training cycle"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	drawn := 0
	for _, s := range series {
		if len(s.Values) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.Values))
		for i, v := range s.Values {
			pts[i].X = float64(i + 1)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "series %s", s.Name)
		}
		line.Width = vg.Points(1.5)
		if s.Color != nil {
			line.Color = s.Color
		}
		p.Add(line)
		p.Legend.Add(s.Name, line)
		drawn++
	}
	if drawn == 0 {
		return errors.NewModelError("visualize.Plot", "nothing to plot", errors.ErrEmptyData)
	}
	p.Legend.Top = true

	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", strings.TrimSpace(path))
	}
	return nil
}
