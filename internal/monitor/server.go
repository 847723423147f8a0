// Package monitor serves the live world and recorded runs over HTTP: a JSON
// API, go-echarts pages and PNG lane plots.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/trafficsim/internal/sim"
	"github.com/banshee-data/trafficsim/internal/store"
	"github.com/banshee-data/trafficsim/internal/track"
	"github.com/banshee-data/trafficsim/internal/traffic"
	"github.com/banshee-data/trafficsim/internal/version"
)

// RunStore is the read side of the run database.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]*store.Run, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	Samples(ctx context.Context, runID, agentID string) ([]sim.Sample, error)
	ModeChanges(ctx context.Context, runID string) ([]sim.ModeChange, error)
}

// Server exposes a world and, optionally, a run store and a manual input.
type Server struct {
	world *sim.World
	runs  RunStore
	input *traffic.ManualInput
}

// Option configures a Server.
type Option func(*Server)

// WithRunStore enables the /api/runs and /charts/speeds routes.
func WithRunStore(rs RunStore) Option {
	return func(s *Server) { s.runs = rs }
}

// WithInput enables POST /api/input for a player agent.
func WithInput(in *traffic.ManualInput) Option {
	return func(s *Server) { s.input = in }
}

// NewServer creates a monitor for world.
func NewServer(world *sim.World, options ...Option) *Server {
	s := &Server{world: world}
	for _, o := range options {
		o(s)
	}
	return s
}

// RegisterRoutes mounts every route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/track", s.handleTrack)
	mux.HandleFunc("GET /api/lanes/{index}/segments", s.handleLaneSegments)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.handleAgent)
	mux.HandleFunc("POST /api/agents/{id}/handbrake", s.handleHandbrake)
	mux.HandleFunc("POST /api/input", s.handleInput)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/runs/{id}/samples", s.handleRunSamples)
	mux.HandleFunc("GET /api/runs/{id}/mode_changes", s.handleRunModeChanges)
	mux.HandleFunc("GET /charts/track", s.handleTrackChart)
	mux.HandleFunc("GET /charts/speeds", s.handleSpeedChart)
	mux.HandleFunc("GET /plots/lanes.png", s.handleLanePlot)
}

// LaneInfo describes one lane of the track.
type LaneInfo struct {
	Index    int            `json:"index"`
	Name     string         `json:"name"`
	Side     track.Side     `json:"side"`
	Movement track.Movement `json:"movement"`
	Distance float64        `json:"distance"`
	Passing  bool           `json:"passing"`
	Partner  *int           `json:"partner,omitempty"`
	Segments int            `json:"segments"`
}

// TrackInfo describes the track.
type TrackInfo struct {
	Name  string     `json:"name"`
	Nodes int        `json:"nodes"`
	Lanes []LaneInfo `json:"lanes"`
}

func describeTrack(p *track.Path) (TrackInfo, error) {
	info := TrackInfo{Name: p.Name(), Nodes: p.NodesCount()}
	for i := 0; i < p.LaneCount(); i++ {
		spec, err := p.Lane(i)
		if err != nil {
			return TrackInfo{}, err
		}
		segs, err := p.Segments(i)
		if err != nil {
			return TrackInfo{}, err
		}
		li := LaneInfo{
			Index:    i,
			Name:     spec.Name,
			Side:     spec.Side,
			Movement: spec.Movement,
			Distance: spec.Distance,
			Passing:  spec.Passing,
			Segments: len(segs),
		}
		if partner, err := p.Partner(i); err == nil {
			li.Partner = &partner
		}
		info.Lanes = append(info.Lanes, li)
	}
	return info, nil
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Current())
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	info, err := describeTrack(s.world.Path())
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleLaneSegments exports a lane's segments.
// Query params:
//   - format: geojson (default) or wkt
//   - samples: points per segment (default track.DefaultExportSamples)
func (s *Server) handleLaneSegments(w http.ResponseWriter, r *http.Request) {
	lane, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		badRequest(w, "invalid lane index")
		return
	}
	samples := track.DefaultExportSamples
	if v := r.URL.Query().Get("samples"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 256 {
			badRequest(w, "samples must be between 1 and 256")
			return
		}
		samples = n
	}

	p := s.world.Path()
	switch format := r.URL.Query().Get("format"); format {
	case "", "geojson":
		data, err := p.ExportGeoJSON(lane, samples)
		if err != nil {
			laneError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(data)
	case "wkt":
		text, err := p.ExportWKT(lane, samples)
		if err != nil {
			laneError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
	default:
		badRequest(w, "unknown format "+strconv.Quote(format))
	}
}

func laneError(w http.ResponseWriter, err error) {
	if errors.Is(err, track.ErrInvalidLane) {
		notFound(w, err.Error())
		return
	}
	internalError(w, err.Error())
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Snapshot())
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	view, ok := s.world.Snapshot().Agent(r.PathValue("id"))
	if !ok {
		notFound(w, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHandbrake(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	id := r.PathValue("id")
	if !s.world.SetHandbrake(id, body.On) {
		notFound(w, "no curve follower "+strconv.Quote(id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "handbrake": body.On})
}

type inputRequest struct {
	Throttle  float64 `json:"throttle"`
	Steer     float64 `json:"steer"`
	Handbrake bool    `json:"handbrake"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if s.input == nil {
		notFound(w, "no input-driven agent")
		return
	}
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid body: "+err.Error())
		return
	}
	s.input.Set(req.Throttle, req.Steer, req.Handbrake)
	writeJSON(w, http.StatusOK, inputRequest{
		Throttle:  s.input.Throttle(),
		Steer:     s.input.Steer(),
		Handbrake: s.input.Handbrake(),
	})
}

func (s *Server) requireRuns(w http.ResponseWriter) bool {
	if s.runs == nil {
		notFound(w, "run storage disabled")
		return false
	}
	return true
}

func runError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		notFound(w, err.Error())
		return
	}
	internalError(w, err.Error())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireRuns(w) {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireRuns(w) {
		return
	}
	run, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		runError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunSamples(w http.ResponseWriter, r *http.Request) {
	if !s.requireRuns(w) {
		return
	}
	id := r.PathValue("id")
	if _, err := s.runs.GetRun(r.Context(), id); err != nil {
		runError(w, err)
		return
	}
	samples, err := s.runs.Samples(r.Context(), id, r.URL.Query().Get("agent"))
	if err != nil {
		internalError(w, err.Error())
		return
	}
	if samples == nil {
		samples = []sim.Sample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleRunModeChanges(w http.ResponseWriter, r *http.Request) {
	if !s.requireRuns(w) {
		return
	}
	id := r.PathValue("id")
	if _, err := s.runs.GetRun(r.Context(), id); err != nil {
		runError(w, err)
		return
	}
	changes, err := s.runs.ModeChanges(r.Context(), id)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	if changes == nil {
		changes = []sim.ModeChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}
