package snapshot

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// AssetsHost serves the echarts javascript.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// HeatMap builds the echarts heatmap of v's grid. Row 0 is drawn at the top.
func HeatMap(v View) (*charts.HeatMap, error) {
	if v.Grid == nil {
		return nil, errors.New("snapshot: no grid")
	}
	g := v.Grid
	cols := make([]string, g.Cols())
	for c := range cols {
		cols[c] = strconv.Itoa(c)
	}
	rows := make([]string, g.Rows())
	for r := range rows {
		rows[r] = strconv.Itoa(g.Rows() - 1 - r)
	}

	data := make([]opts.HeatMapData, 0, g.Rows()*g.Cols())
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			s := g.At(arena.Cell{Row: r, Col: c})
			data = append(data, opts.HeatMapData{
				Name:  s.String(),
				Value: [3]interface{}{c, g.Rows() - 1 - r, stateIndex(s)},
			})
		}
	}

	colors := make([]string, len(States))
	for i, s := range States {
		colors[i] = Hex(s)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Arena grid",
			Width:      fmt.Sprintf("%dpx", 40+22*g.Cols()),
			Height:     fmt.Sprintf("%dpx", 120+22*g.Rows()),
			AssetsHost: AssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{Title: v.Title, Subtitle: subtitle(v)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: cols, Name: "col"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: rows, Name: "row"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(false),
			Calculable: opts.Bool(false),
			Min:        0,
			Max:        float32(len(States) - 1),
			InRange:    &opts.VisualMapInRange{Color: colors},
		}),
	)
	hm.SetXAxis(cols).AddSeries("cells", data)
	return hm, nil
}

func subtitle(v View) string {
	s := fmt.Sprintf("%dx%d cells, %d robots", v.Grid.Rows(), v.Grid.Cols(), len(v.Robots))
	if len(v.Goals) > 0 {
		s += fmt.Sprintf(", %d goals", len(v.Goals))
	}
	if len(v.Paths) > 0 {
		s += fmt.Sprintf(", %d planned paths", len(v.Paths))
	}
	return s
}

// WriteHTML renders v as a standalone echarts page.
func WriteHTML(w io.Writer, v View) error {
	hm, err := HeatMap(v)
	if err != nil {
		return err
	}
	return hm.Render(w)
}
