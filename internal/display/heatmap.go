// Package display renders generated frames and packet layouts for inspection.
package display

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/frame-producer/internal/percival/pattern"
)

// pixelGrid adapts a decimated pixel matrix to plotter.GridXYZ. Matrix row 0
// holds the bottom image row so that Y increases up the plot.
type pixelGrid struct {
	m      *mat.Dense
	stride int
}

func (g pixelGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g pixelGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g pixelGrid) X(c int) float64    { return float64(c * g.stride) }
func (g pixelGrid) Y(r int) float64    { return float64(r * g.stride) }

// decimate samples every stride-th pixel of a rows x cols array.
func decimate(pixels []uint16, rows, cols, stride int) pixelGrid {
	gr := (rows + stride - 1) / stride
	gc := (cols + stride - 1) / stride
	m := mat.NewDense(gr, gc, nil)
	for i := 0; i < gr; i++ {
		src := (rows - 1 - i*stride) * cols
		if src < 0 {
			src = 0
		}
		for j := 0; j < gc; j++ {
			m.Set(i, j, float64(pixels[src+j*stride]))
		}
	}
	return pixelGrid{m: m, stride: stride}
}

// WriteHeatmaps renders image.png and reset.png into dir, keeping one pixel
// in stride along each axis.
func WriteHeatmaps(dir string, frame *pattern.Frame, stride int) ([]string, error) {
	if frame == nil {
		return nil, fmt.Errorf("no frame to display")
	}
	if stride < 1 {
		stride = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create display directory %s: %w", dir, err)
	}

	rows, cols := frame.Layout.Rows(), frame.Layout.Cols()
	var written []string
	for _, img := range []struct {
		name   string
		title  string
		pixels []uint16
	}{
		{"image.png", "Image", frame.Image},
		{"reset.png", "Reset", frame.Reset},
	} {
		if len(img.pixels) != rows*cols {
			return written, fmt.Errorf("%s array has %d pixels, want %d", img.title, len(img.pixels), rows*cols)
		}
		path := filepath.Join(dir, img.name)
		if err := saveHeatmap(path, img.title, decimate(img.pixels, rows, cols, stride)); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func saveHeatmap(path, title string, grid pixelGrid) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "column"
	p.Y.Label.Text = "row"

	hm := plotter.NewHeatMap(grid, palette.Heat(64, 1))
	p.Add(hm)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
