package track

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trafficsim/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxTrackFileSize bounds track files read from disk.
const maxTrackFileSize = 4 * 1024 * 1024

// File is the on-disk track authoring format.
type File struct {
	Name  string     `json:"name"`
	Nodes []Node     `json:"nodes"`
	Lanes []LaneSpec `json:"lanes"`
}

// LoadFile reads a JSON track file and builds its path.
func LoadFile(path string, opts CurveOptions) (*Path, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" {
		return nil, fmt.Errorf("track file must be .json, got %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat track file: %w", err)
	}
	if info.Size() > maxTrackFileSize {
		return nil, fmt.Errorf("track file too large: %d bytes (max %d)", info.Size(), maxTrackFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}
	p, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("track file %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a track file and builds its path. Missing node frames are
// derived: forward from the neighbouring nodes, up from the world up axis
// and right from forward and up.
func Parse(data []byte, opts CurveOptions) (*Path, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse track JSON: %w", err)
	}
	if f.Name == "" {
		f.Name = "track"
	}
	return NewPath(f.Name, CompleteFrames(f.Nodes), f.Lanes, opts)
}

// CompleteFrames fills zero forward, right and up vectors of a closed loop of
// nodes. Authored vectors are normalised and otherwise left alone.
func CompleteFrames(nodes []Node) []Node {
	n := len(nodes)
	out := make([]Node, n)
	for i, node := range nodes {
		if geom.IsZero(node.Up) {
			node.Up = geom.WorldUp
		}
		if geom.IsZero(node.Forward) && n > 1 {
			prev := nodes[(i-1+n)%n].Position
			next := nodes[(i+1)%n].Position
			node.Forward = geom.ProjectOnPlane(r3.Sub(next, prev), node.Up)
		}
		node.Forward = geom.Normalize(node.Forward)
		node.Up = geom.Normalize(node.Up)
		if geom.IsZero(node.Right) {
			node.Right = geom.RightOf(node.Forward, node.Up)
		}
		node.Right = geom.Normalize(node.Right)
		out[i] = node
	}
	return out
}
