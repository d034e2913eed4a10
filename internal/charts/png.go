package charts

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// PNG dimensions.
const (
	pngWidth  = 1024
	pngHeight = 480
)

// RenderPNG draws a line or stacked area ChartConfig as a PNG.
func RenderPNG(w io.Writer, cfg ChartConfig) error {
	var series []chart.Series
	switch cfg.ChartType {
	case TypeLine:
		series = lineSeries(cfg)
	case TypeStackedArea:
		series = stackedSeries(cfg)
	default:
		return fmt.Errorf("png rendering not supported for %s charts", cfg.ChartType)
	}
	maxY := 1.0
	for _, s := range series {
		if cs, ok := s.(chart.ContinuousSeries); ok {
			for _, v := range cs.YValues {
				if v > maxY {
					maxY = v
				}
			}
		}
	}
	if len(series) == 0 {
		series = []chart.Series{chart.ContinuousSeries{Name: "No data", XValues: []float64{0, 1}, YValues: []float64{0, 0}}}
	}
	ch := chart.Chart{
		Title:      cfg.Title,
		Width:      pngWidth,
		Height:     pngHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           cfg.XAxis,
			ValueFormatter: yearFormatter,
		},
		YAxis: chart.YAxis{
			Name:  cfg.YAxis,
			Range: &chart.ContinuousRange{Min: 0, Max: maxY * 1.05},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch.Render(chart.PNG, w)
}

func yearFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.Itoa(int(f))
	}
	return ""
}

// xy converts a series to chart coordinates. go-chart needs two distinct X
// values, so a single point is padded one year to the right.
func xy(s ChartSeries) ([]float64, []float64) {
	xs := make([]float64, 0, len(s.Data)+1)
	ys := make([]float64, 0, len(s.Data)+1)
	for i, p := range s.Data {
		x, err := strconv.ParseFloat(p.Label, 64)
		if err != nil {
			x = float64(i)
		}
		xs = append(xs, x)
		ys = append(ys, p.Value)
	}
	if len(xs) == 1 {
		xs = append(xs, xs[0]+1)
		ys = append(ys, ys[0])
	}
	return xs, ys
}

func color(hex string) drawing.Color {
	if hex == "" {
		return chart.ColorAlternateGray
	}
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

func lineSeries(cfg ChartConfig) []chart.Series {
	var out []chart.Series
	for _, s := range cfg.Series {
		if len(s.Data) == 0 {
			continue
		}
		xs, ys := xy(s)
		out = append(out, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: color(s.Color),
				StrokeWidth: 2,
				DotWidth:    3,
				DotColor:    color(s.Color),
			},
		})
	}
	return out
}

// stackedSeries draws cumulative totals, top layer first, so each filled
// band shows one substance.
func stackedSeries(cfg ChartConfig) []chart.Series {
	var layers []chart.ContinuousSeries
	var running []float64
	for _, s := range cfg.Series {
		if len(s.Data) == 0 {
			continue
		}
		xs, ys := xy(s)
		if running == nil {
			running = make([]float64, len(ys))
		}
		cum := make([]float64, len(ys))
		for i := range ys {
			if i < len(running) {
				running[i] += ys[i]
				cum[i] = running[i]
			}
		}
		layers = append(layers, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: cum,
			Style: chart.Style{
				StrokeColor: color(s.Color),
				FillColor:   color(s.Color).WithAlpha(200),
				StrokeWidth: 1,
			},
		})
	}
	out := make([]chart.Series, 0, len(layers))
	for i := len(layers) - 1; i >= 0; i-- {
		out = append(out, layers[i])
	}
	return out
}
