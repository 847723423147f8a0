package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"github.com/banshee-data/trafficsim/internal/sim"
	"github.com/banshee-data/trafficsim/internal/track"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Lane plot size.
const (
	PlotWidth  = 8 * vg.Inch
	PlotHeight = 8 * vg.Inch
)

// PlotLanes draws every lane of p on the ground plane with the given agents
// on top.
func PlotLanes(p *track.Path, agents []sim.AgentView, samples int) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%s - lanes", p.Name())
	pl.X.Label.Text = "X (m)"
	pl.Y.Label.Text = "Z (m)"

	colors := generateColors(p.LaneCount())
	for i := 0; i < p.LaneCount(); i++ {
		lines, err := p.LaneLines(i, samples)
		if err != nil {
			return nil, fmt.Errorf("lane %d: %w", i, err)
		}
		spec, _ := p.Lane(i)
		for j, ls := range lines {
			pts := make(plotter.XYs, len(ls))
			for k, pt := range ls {
				pts[k] = plotter.XY{X: pt[0], Y: pt[1]}
			}
			l, err := plotter.NewLine(pts)
			if err != nil {
				return nil, fmt.Errorf("lane %d segment %d: %w", i, j, err)
			}
			l.Color = colors[i]
			l.Width = vg.Points(1)
			pl.Add(l)
			if j == 0 {
				pl.Legend.Add(spec.Name, l)
			}
		}
	}

	if len(agents) > 0 {
		pts := make(plotter.XYs, len(agents))
		for i, a := range agents {
			pts[i] = plotter.XY{X: a.Pose.Position.X, Y: a.Pose.Position.Z}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("agents: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		sc.GlyphStyle.Color = color.Black
		pl.Add(sc)
		pl.Legend.Add("agents", sc)
	}

	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// SaveLanePlot writes the lane plot of a world to file. The format follows
// the file extension.
func SaveLanePlot(w *sim.World, file string) error {
	pl, err := PlotLanes(w.Path(), w.Snapshot().Agents, track.DefaultExportSamples)
	if err != nil {
		return err
	}
	if err := pl.Save(PlotWidth, PlotHeight, file); err != nil {
		return fmt.Errorf("save lane plot: %w", err)
	}
	return nil
}

func (s *Server) handleLanePlot(w http.ResponseWriter, r *http.Request) {
	pl, err := PlotLanes(s.world.Path(), s.world.Snapshot().Agents, track.DefaultExportSamples)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	wt, err := pl.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		internalError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}

func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL in [0, 1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3) * 255), uint8(hueToRGB(p, q, h) * 255), uint8(hueToRGB(p, q, h-1.0/3) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}
