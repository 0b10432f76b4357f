package api

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/dora-sat/flight/internal/db"
	"github.com/dora-sat/flight/internal/health"
	"github.com/dora-sat/flight/internal/httputil"
)

var defaultChartParameters = []string{"cpu_usage", "mem_usage"}

// AttachAdminRoutes adds the telemetry chart under /debug/. Like every
// tsweb debug route it is only reachable from localhost.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("telemetry-chart", "stored telemetry parameter history", s.handleTelemetryChart)
}

// handleTelemetryChart renders stored samples as a line chart.
// Query params:
//   - subsystem (optional; default OBC)
//   - parameter (repeatable; default cpu_usage and mem_usage)
//   - limit (optional; samples per parameter)
//
// Samples whose value is not numeric are skipped.
func (s *Server) handleTelemetryChart(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.ServiceUnavailable(w, "telemetry database not configured")
		return
	}
	subsystem := r.URL.Query().Get("subsystem")
	if subsystem == "" {
		subsystem = health.Subsystem
	}
	params := r.URL.Query()["parameter"]
	if len(params) == 0 {
		params = defaultChartParameters
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Flight Telemetry", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Telemetry", Subtitle: fmt.Sprintf("subsystem=%s", subsystem)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
	)

	total := 0
	for _, name := range params {
		samples, err := s.store.Parameters(db.ParameterQuery{Subsystem: subsystem, Parameter: name, Limit: limit})
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to query %s: %v", name, err))
			return
		}
		line.AddSeries(name, lineData(samples), charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		total += len(samples)
	}
	if total == 0 {
		httputil.NotFound(w, fmt.Sprintf("no telemetry stored for %s %v", subsystem, params))
		return
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// lineData converts newest-first samples into oldest-first chart points.
func lineData(samples []db.Parameter) []opts.LineData {
	data := make([]opts.LineData, 0, len(samples))
	for _, p := range slices.Backward(samples) {
		v, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			continue
		}
		data = append(data, opts.LineData{Value: []interface{}{p.Timestamp.UnixMilli(), v}})
	}
	return data
}
