package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/dealr/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachAdminRoutes mounts the dealer's debug pages under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("brightness", "colour sensor brightness and spike threshold", s.handleBrightnessChart)
	debug.HandleFunc("dealer", "dealer status snapshot", s.showStatus)
	debug.HandleSilentFunc("calibration", s.showCalibration)
}

// handleBrightnessChart plots the recent clear-channel samples against the
// spike threshold, which is the first thing to look at when fine adjust
// misses tags.
func (s *Server) handleBrightnessChart(w http.ResponseWriter, r *http.Request) {
	history := s.dealer.History()
	snap := s.dealer.Snapshot()

	x := make([]int, len(history))
	samples := make([]opts.LineData, len(history))
	threshold := make([]opts.LineData, len(history))
	for i, v := range history {
		x[i] = i - len(history) + 1
		samples[i] = opts.LineData{Value: v}
		threshold[i] = opts.LineData{Value: snap.SpikeThreshold}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Dealer Brightness", Theme: "dark", Width: "1000px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Clear channel", Subtitle: fmt.Sprintf("state=%s stable=%s samples=%d", snap.State, snap.Stable, len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "C", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("brightness", samples).
		AddSeries("spike threshold", threshold, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
