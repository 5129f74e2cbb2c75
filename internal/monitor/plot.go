package monitor

import (
	"fmt"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kestrel-sense/driverwatch/internal/httputil"
)

// handleScorePNG renders the score history as a PNG for inclusion in
// reports. X is seconds since the first retained sample.
func (m *Monitor) handleScorePNG(w http.ResponseWriter, r *http.Request) {
	samples := m.Samples()
	if len(samples) == 0 {
		httputil.NotFound(w, "no samples recorded yet")
		return
	}

	p := plot.New()
	p.Title.Text = "Drowsiness score"
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Score"
	p.Y.Min = 0
	p.Y.Max = 1

	start := samples[0].At
	scorePts := make(plotter.XYs, len(samples))
	perclosPts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		x := s.At.Sub(start).Seconds()
		scorePts[i] = plotter.XY{X: x, Y: s.Score}
		perclosPts[i] = plotter.XY{X: x, Y: s.Perclos}
	}

	scoreLine, err := plotter.NewLine(scorePts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("building score line: %v", err))
		return
	}
	perclosLine, err := plotter.NewLine(perclosPts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("building perclos line: %v", err))
		return
	}
	perclosLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(scoreLine, perclosLine)
	p.Legend.Add("score", scoreLine)
	p.Legend.Add("perclos", perclosLine)
	p.Legend.Top = true

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("rendering plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// Headers are gone; nothing useful left to send.
		return
	}
}
