package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotTemperature draws temps against the sample index. The image format
// follows the file extension.
func plotTemperature(path string, temps []float64) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Compensated temperature"
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "°C"

	xys := make(plotter.XYs, len(temps))
	for i, t := range temps {
		xys[i].X = float64(i)
		xys[i].Y = t
	}
	if err := plotutil.AddLines(p, "temperature", xys); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
