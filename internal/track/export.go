package track

import (
	"fmt"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	geojson "github.com/paulmach/go.geojson"
)

// DefaultExportSamples is the number of curve steps per exported segment.
const DefaultExportSamples = 8

// LaneLines samples every segment of a lane onto the ground plane.
func (p *Path) LaneLines(lane, samples int) (orb.MultiLineString, error) {
	segs, err := p.Segments(lane)
	if err != nil {
		return nil, err
	}
	if samples < 1 {
		samples = DefaultExportSamples
	}
	lines := make(orb.MultiLineString, len(segs))
	for i, s := range segs {
		pts := s.Sample(samples)
		ls := make(orb.LineString, len(pts))
		for j, pt := range pts {
			ls[j] = geom.Ground(pt)
		}
		lines[i] = ls
	}
	return lines, nil
}

// ExportWKT renders a lane as a WKT MULTILINESTRING in ground coordinates.
func (p *Path) ExportWKT(lane, samples int) (string, error) {
	lines, err := p.LaneLines(lane, samples)
	if err != nil {
		return "", err
	}
	return wkt.MarshalString(lines), nil
}

// ExportGeoJSON renders a lane as a feature collection with one LineString per
// segment and one Point per handle.
func (p *Path) ExportGeoJSON(lane, samples int) ([]byte, error) {
	lines, err := p.LaneLines(lane, samples)
	if err != nil {
		return nil, err
	}
	segs, _ := p.Segments(lane)
	name := p.lanes[lane].Name

	fc := geojson.NewFeatureCollection()
	for i, ls := range lines {
		coords := make([][]float64, len(ls))
		for j, pt := range ls {
			coords[j] = []float64{pt.X(), pt.Y()}
		}
		f := geojson.NewLineStringFeature(coords)
		f.SetProperty("lane", name)
		f.SetProperty("segment", i)
		fc.AddFeature(f)

		h := geom.Ground(segs[i].Handle)
		hf := geojson.NewPointFeature([]float64{h.X(), h.Y()})
		hf.SetProperty("lane", name)
		hf.SetProperty("handle", i)
		fc.AddFeature(hf)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lane %d geojson: %w", lane, err)
	}
	return b, nil
}
