// Package visual renders PNG images of digit inputs, network architectures
// and accuracy histories for the API's example endpoints.
package visual

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// grayscale is a simple palette from black to white.
type grayscale []color.Color

func (g grayscale) Colors() []color.Color { return g }

func grayColors(n int) grayscale {
	g := make(grayscale, n)
	for i := range g {
		v := uint8(i * 255 / (n - 1))
		g[i] = color.Gray{Y: v}
	}
	return g
}

// digitGrid adapts a row-major pixel vector to plotter.GridXYZ, flipping the
// rows so the image is not drawn upside down.
type digitGrid struct {
	cols, rows int
	data       []float64
}

func (g digitGrid) Dims() (int, int)   { return g.cols, g.rows }
func (g digitGrid) X(c int) float64    { return float64(c) }
func (g digitGrid) Y(r int) float64    { return float64(r) }
func (g digitGrid) Z(c, r int) float64 { return g.data[(g.rows-1-r)*g.cols+c] }

// RenderDigit draws a pixel vector as a grayscale heatmap and returns the
// encoded PNG.
func RenderDigit(input []float64, cols int, title string) ([]byte, error) {
	if cols <= 0 || len(input) == 0 || len(input)%cols != 0 {
		return nil, fmt.Errorf("cannot arrange %d pixels into %d columns", len(input), cols)
	}
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(plotter.NewHeatMap(digitGrid{cols: cols, rows: len(input) / cols, data: input}, grayColors(64)))
	return renderPNG(p, 2*vg.Inch, 2*vg.Inch)
}

// AccuracyHistory plots per-epoch accuracies as a line chart.
func AccuracyHistory(accuracies []float64) ([]byte, error) {
	pts := make(plotter.XYs, len(accuracies))
	for i, a := range accuracies {
		pts[i].X = float64(i + 1)
		pts[i].Y = a
	}
	p := plot.New()
	p.Title.Text = "accuracy per epoch"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "accuracy"
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	p.Add(line, plotter.NewGrid())
	return renderPNG(p, 6*vg.Inch, 4*vg.Inch)
}

// layers larger than this are drawn truncated
const maxNeuronsShown = 16

// Architecture draws one column of points per layer, centered vertically.
func Architecture(sizes []int) ([]byte, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no layers to draw")
	}
	var pts plotter.XYs
	for l, size := range sizes {
		shown := size
		if shown > maxNeuronsShown {
			shown = maxNeuronsShown
		}
		for i := 0; i < shown; i++ {
			pts = append(pts, plotter.XY{
				X: float64(l),
				Y: float64(i) - float64(shown-1)/2,
			})
		}
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("architecture %v", sizes)
	p.HideAxes()
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	p.Add(scatter)
	return renderPNG(p, 6*vg.Inch, 4*vg.Inch)
}

func renderPNG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
