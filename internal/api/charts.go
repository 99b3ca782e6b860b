package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/geofuse/internal/fusion"
)

// trackChart renders a quick HTML plot of a session's recent estimates using
// go-echarts: the fused track as an XY scatter colored by accuracy, plus an
// accuracy-over-time line. Debugging-only endpoint; the stored estimates are
// the source of truth.
// Query params:
//   - session_id (required)
//   - limit (optional; default 500) number of most recent estimates
func (s *Server) trackChart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'session_id' parameter")
		return
	}

	limit := 500
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 10000 {
			limit = v
		}
	}

	estimates, err := s.db.RecentEstimates(sessionID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get estimates: %v", err))
		return
	}
	if len(estimates) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no estimates for session")
		return
	}

	// RecentEstimates returns newest first; charts read better oldest first.
	for i, j := 0, len(estimates)-1; i < j; i, j = i+1, j-1 {
		estimates[i], estimates[j] = estimates[j], estimates[i]
	}

	scatter := trackScatter(sessionID, estimates)
	line := accuracyLine(estimates)

	page := components.NewPage()
	page.AddCharts(scatter, line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func trackScatter(sessionID string, estimates []fusion.Estimate) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(estimates))
	maxAcc := 0.0
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, e := range estimates {
		if e.AccuracyMeters > maxAcc {
			maxAcc = e.AccuracyMeters
		}
		minLat = math.Min(minLat, e.Latitude)
		maxLat = math.Max(maxLat, e.Latitude)
		minLon = math.Min(minLon, e.Longitude)
		maxLon = math.Max(maxLon, e.Longitude)
		data = append(data, opts.ScatterData{Value: []interface{}{e.Longitude, e.Latitude, e.AccuracyMeters}})
	}
	if maxAcc == 0 {
		maxAcc = 1.0
	}

	// Pad the axis ranges so edge points stay visible.
	latPad := (maxLat - minLat) * 0.05
	lonPad := (maxLon - minLon) * 0.05
	if latPad == 0 {
		latPad = 1e-5
	}
	if lonPad == 0 {
		lonPad = 1e-5
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fused Track", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Fused Track", Subtitle: fmt.Sprintf("session=%s points=%d", sessionID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minLon - lonPad, Max: maxLon + lonPad, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minLat - latPad, Max: maxLat + latPad, Name: "Latitude", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxAcc),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("track", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	return scatter
}

func accuracyLine(estimates []fusion.Estimate) *charts.Line {
	x := make([]string, 0, len(estimates))
	y := make([]opts.LineData, 0, len(estimates))
	for _, e := range estimates {
		x = append(x, e.Time.Format(time.TimeOnly))
		y = append(y, opts.LineData{Value: e.AccuracyMeters})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Estimate Accuracy", Subtitle: "meters, lower is better"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Accuracy (m)"}),
	)
	line.SetXAxis(x).AddSeries("accuracy", y)
	return line
}
