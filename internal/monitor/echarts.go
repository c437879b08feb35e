package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/anchorpoint/internal/httputil"
)

// echartsAssetsHost serves the echarts bundle; overridable for offline use.
var echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// HandleTrace renders the retained hits as an HTML scatter (X/Z top-down,
// colored by height).
func (r *TraceRecorder) HandleTrace(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	samples := r.Samples()
	data := make([]opts.ScatterData, 0, len(samples))
	minY, maxY := 0.0, 0.0
	for _, s := range samples {
		if !s.Hit {
			continue
		}
		p := s.Pose.Position
		if len(data) == 0 || p.Y < minY {
			minY = p.Y
		}
		if len(data) == 0 || p.Y > maxY {
			maxY = p.Y
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Z, p.Y}})
	}
	if maxY == minY {
		maxY = minY + 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hit Trace", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Recent Hits (top-down)", Subtitle: fmt.Sprintf("hits=%d frames=%d rate=%.0f%%", len(data), len(samples), 100*r.HitRate())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minY),
			Max:        float32(maxY),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("hits", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
