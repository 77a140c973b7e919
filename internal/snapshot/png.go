package snapshot

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// CellSize is the drawn size of one grid cell.
const CellSize = 0.4 * vg.Centimeter

// gridXYZ shows a Grid to plotter.HeatMap with row 0 at the top.
type gridXYZ struct{ g *arena.Grid }

func (x gridXYZ) Dims() (c, r int) { return x.g.Cols(), x.g.Rows() }
func (x gridXYZ) X(c int) float64  { return float64(c) }
func (x gridXYZ) Y(r int) float64  { return float64(r) }
func (x gridXYZ) Z(c, r int) float64 {
	return float64(stateIndex(x.g.At(arena.Cell{Row: x.g.Rows() - 1 - r, Col: c})))
}

type statePalette struct{}

func (statePalette) Colors() []color.Color {
	out := make([]color.Color, len(States))
	for i, s := range States {
		out[i] = RGBA(s)
	}
	return out
}

// centre maps a grid cell to plot coordinates.
func centre(g *arena.Grid, c arena.Cell) plotter.XY {
	return plotter.XY{X: float64(c.Col), Y: float64(g.Rows() - 1 - c.Row)}
}

// Plot builds the gonum plot of v.
func Plot(v View) (*plot.Plot, error) {
	if v.Grid == nil {
		return nil, errors.New("snapshot: no grid")
	}
	g := v.Grid
	p := plot.New()
	p.Title.Text = v.Title
	p.X.Label.Text = "col"
	p.Y.Label.Text = "row (flipped)"
	p.X.Min, p.X.Max = -0.5, float64(g.Cols())-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(g.Rows())-0.5

	hm := plotter.NewHeatMap(gridXYZ{g}, statePalette{})
	hm.Min, hm.Max = 0, float64(len(States)-1)
	p.Add(hm)

	for i, path := range v.Paths {
		if len(path.Cells) < 2 {
			continue
		}
		pts := make(plotter.XYs, len(path.Cells))
		for j, c := range path.Cells {
			pts[j] = centre(g, c)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("path of agent %d: %w", path.Agent, err)
		}
		line.Width = vg.Points(1.5)
		line.Color = pathColor(i)
		p.Add(line)
		p.Legend.Add("robot "+agentLabel(v.Agents, path.Agent), line)
	}

	if labels, err := cellLabels(g, v.Robots, ""); err != nil {
		return nil, err
	} else if labels != nil {
		p.Add(labels)
	}
	if labels, err := cellLabels(g, v.Goals, "*"); err != nil {
		return nil, err
	} else if labels != nil {
		p.Add(labels)
	}
	p.Legend.Top = true
	return p, nil
}

func cellLabels(g *arena.Grid, cells map[string]arena.Cell, suffix string) (*plotter.Labels, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	var data plotter.XYLabels
	for _, id := range sortedKeys(cells) {
		data.XYs = append(data.XYs, centre(g, cells[id]))
		data.Labels = append(data.Labels, id+suffix)
	}
	labels, err := plotter.NewLabels(data)
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = text.XCenter
		labels.TextStyle[i].YAlign = text.YCenter
	}
	return labels, nil
}

func pathColor(i int) color.Color {
	palette := []color.RGBA{
		{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
		{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
		{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
		{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
		{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
		{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
	}
	return palette[i%len(palette)]
}

// WritePNG renders v as a PNG sized to the grid.
func WritePNG(w io.Writer, v View) error {
	p, err := Plot(v)
	if err != nil {
		return err
	}
	width := CellSize*vg.Length(v.Grid.Cols()) + 3*vg.Centimeter
	height := CellSize*vg.Length(v.Grid.Rows()) + 3*vg.Centimeter
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
