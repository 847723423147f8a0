package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"slices"

	"github.com/banshee-data/trafficsim/internal/sim"
	"github.com/banshee-data/trafficsim/internal/track"
	"github.com/banshee-data/trafficsim/internal/units"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/samber/lo"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleTrackChart renders every lane and the current agent positions as an
// XZ scatter.
func (s *Server) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	p := s.world.Path()
	snap := s.world.Snapshot()

	scatter := charts.NewScatter()
	maxAbs := 1.0
	for i := 0; i < p.LaneCount(); i++ {
		lines, err := p.LaneLines(i, track.DefaultExportSamples)
		if err != nil {
			internalError(w, err.Error())
			return
		}
		var data []opts.ScatterData
		for _, ls := range lines {
			for _, pt := range ls {
				maxAbs = math.Max(maxAbs, math.Max(math.Abs(pt[0]), math.Abs(pt[1])))
				data = append(data, opts.ScatterData{Value: []interface{}{pt[0], pt[1]}})
			}
		}
		spec, _ := p.Lane(i)
		scatter.AddSeries(spec.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	}

	agents := make([]opts.ScatterData, 0, len(snap.Agents))
	for _, a := range snap.Agents {
		agents = append(agents, opts.ScatterData{
			Name:  a.ID,
			Value: []interface{}{a.Pose.Position.X, a.Pose.Position.Z, a.CurrentSpeed},
		})
	}
	scatter.AddSeries("agents", agents,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#fde725"}),
	)

	pad := maxAbs * 1.05
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: p.Name(), Subtitle: fmt.Sprintf("tick=%d agents=%d", snap.Tick, len(snap.Agents))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		internalError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSpeedChart renders the recorded speed of every agent of a run.
// Query params:
//   - run: run ID (required)
//   - units: mps (default), mph, kmph, kph
func (s *Server) handleSpeedChart(w http.ResponseWriter, r *http.Request) {
	if !s.requireRuns(w) {
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		badRequest(w, "missing run")
		return
	}
	unit, err := units.Parse(r.URL.Query().Get("units"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		runError(w, err)
		return
	}
	samples, err := s.runs.Samples(r.Context(), runID, "")
	if err != nil {
		internalError(w, err.Error())
		return
	}

	line := speedChart(runID, samples, unit)
	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		internalError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// speedChart builds one series per agent over the union of sampled ticks.
// Ticks an agent was not sampled at are left as gaps.
func speedChart(runID string, samples []sim.Sample, unit units.Unit) *charts.Line {
	tickSet := make(map[int64]struct{})
	byAgent := make(map[string]map[int64]float64)
	for _, smp := range samples {
		tickSet[smp.Tick] = struct{}{}
		if byAgent[smp.AgentID] == nil {
			byAgent[smp.AgentID] = make(map[int64]float64)
		}
		byAgent[smp.AgentID][smp.Tick] = unit.Convert(smp.Speed)
	}

	ticks := lo.Keys(tickSet)
	slices.Sort(ticks)

	ids := lo.Keys(byAgent)
	slices.Sort(ids)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Agent speeds", Theme: "dark", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Agent speeds", Subtitle: fmt.Sprintf("run=%s agents=%d samples=%d", runID, len(ids), len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "speed (" + unit.Label() + ")", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(ticks)
	for _, id := range ids {
		speeds := byAgent[id]
		data := make([]opts.LineData, len(ticks))
		for i, t := range ticks {
			if v, ok := speeds[t]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries(id, data, charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(true)}))
	}
	return line
}
