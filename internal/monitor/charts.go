package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/kestrel-sense/driverwatch/internal/httputil"
)

// echartsAssetsPrefix points chart pages at the hosted go-echarts assets so
// the daemon does not have to serve the JS bundle itself.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><title>driverwatch monitor</title>
<style>
body { background: #111; color: #ddd; font-family: sans-serif; margin: 12px; }
iframe { border: 1px solid #333; background: #191919; width: 100%%; height: 540px; }
</style>
</head>
<body>
<h1>driverwatch monitor: driver %s</h1>
<iframe src="/debug/drowsiness-score"></iframe>
<iframe src="/debug/drowsiness-components"></iframe>
<p><a href="/debug/drowsiness-score.png">score history PNG</a> |
<a href="/debug/drowsiness-alerts">alert log</a></p>
</body>
</html>
`

// AttachRoutes mounts the monitor debug surface. These routes sit behind the
// shared /debug/ index and are not publicly reachable.
func (m *Monitor) AttachRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("drowsiness", "drowsiness monitor dashboard", m.handleDashboard)
	debug.HandleSilentFunc("drowsiness-score", m.handleScoreChart)
	debug.HandleSilentFunc("drowsiness-components", m.handleComponentsChart)
	debug.HandleSilentFunc("drowsiness-score.png", m.handleScorePNG)
	debug.HandleSilentFunc("drowsiness-alerts", m.handleAlerts)
}

func (m *Monitor) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, dashboardHTML, m.eng.Snapshot().DriverID)
}

// handleScoreChart renders the recorded score and PERCLOS history as an
// echarts line chart.
func (m *Monitor) handleScoreChart(w http.ResponseWriter, r *http.Request) {
	samples := m.Samples()

	x := make([]string, len(samples))
	score := make([]opts.LineData, len(samples))
	perclos := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = s.At.Format("15:04:05")
		score[i] = opts.LineData{Value: s.Score}
		perclos[i] = opts.LineData{Value: s.Perclos}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Drowsiness Score",
			Theme:      "dark",
			Width:      "1200px",
			Height:     "480px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Drowsiness score",
			Subtitle: fmt.Sprintf("samples=%d", len(samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	line.SetXAxis(x).
		AddSeries("score", score).
		AddSeries("perclos", perclos)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleComponentsChart renders the current published signals as a bar
// chart.
func (m *Monitor) handleComponentsChart(w http.ResponseWriter, r *http.Request) {
	snap := m.eng.Snapshot()

	x := []string{"score", "perclos", "EAR", "MAR", "calibration"}
	y := []opts.BarData{
		{Value: snap.DrowsyScore},
		{Value: snap.Perclos},
		{Value: snap.EAR},
		{Value: snap.MAR},
		{Value: snap.CalibrationProgress},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:      "dark",
			Width:      "1200px",
			Height:     "480px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Current signals",
			Subtitle: fmt.Sprintf("status=%s blinks=%d", snap.Status, snap.BlinkCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("signals", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, m.Alerts())
}
