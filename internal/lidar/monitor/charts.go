package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/velodyne.report/internal/httputil"
	"github.com/banshee-data/velodyne.report/internal/lidar"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis ramp used for intensity colouring.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// parseView reads the "view" query parameter: "xy" (top down, default),
// "xz" or "yz".
func parseView(r *http.Request) (string, error) {
	switch v := r.URL.Query().Get("view"); v {
	case "", "xy":
		return "xy", nil
	case "xz", "yz":
		return v, nil
	default:
		return "", fmt.Errorf("unknown view %q", v)
	}
}

func projectView(p lidar.Point3D, view string) (float64, float64) {
	switch view {
	case "xz":
		return float64(p.X), float64(p.Z)
	case "yz":
		return float64(p.Y), float64(p.Z)
	default:
		return float64(p.X), float64(p.Y)
	}
}

// handlePointsChart renders the latest batch as an interactive echarts
// scatter coloured by intensity.
func (ws *WebServer) handlePointsChart(w http.ResponseWriter, r *http.Request) {
	view, err := parseView(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, "%v", err)
		return
	}
	batch, ok := ws.LatestBatch()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no batch decoded yet")
		return
	}

	data := make([]opts.ScatterData, 0, batch.Len())
	maxAbs := 0.0
	for _, p := range batch.Points {
		a, b := projectView(p, view)
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(a), math.Abs(b)))
		data = append(data, opts.ScatterData{Value: []interface{}{a, b, int(p.Intensity), p.LaserIndex}})
	}
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LiDAR points", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Latest point batch",
			Subtitle: fmt.Sprintf("frame=%s points=%d view=%s", batch.FrameID, batch.Len(), view),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: string(view[0]) + " (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: string(view[1]) + " (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to render chart: %v", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePointsPNG renders the latest batch as a static PNG. The optional
// "size" query parameter sets the edge length in inches (2 to 20).
func (ws *WebServer) handlePointsPNG(w http.ResponseWriter, r *http.Request) {
	view, err := parseView(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, "%v", err)
		return
	}
	size := 6.0
	if s := r.URL.Query().Get("size"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 2 || v > 20 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "size must be between 2 and 20")
			return
		}
		size = v
	}
	batch, ok := ws.LatestBatch()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no batch decoded yet")
		return
	}

	var buf bytes.Buffer
	if err := renderPointsPNG(&buf, batch, view, vg.Length(size)*vg.Inch); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to render plot: %v", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func renderPointsPNG(out io.Writer, batch lidar.PointBatch, view string, size vg.Length) error {
	pts := make(plotter.XYs, batch.Len())
	for i, p := range batch.Points {
		pts[i].X, pts[i].Y = projectView(p, view)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s (%d points)", batch.FrameID, batch.Timestamp.UTC().Format("15:04:05.000"), batch.Len())
	p.X.Label.Text = string(view[0]) + " (m)"
	p.Y.Label.Text = string(view[1]) + " (m)"
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to create scatter: %w", err)
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(1)
	scatter.GlyphStyle.Color = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 0xff}
	p.Add(scatter)

	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}
	_, err = wt.WriteTo(out)
	return err
}
