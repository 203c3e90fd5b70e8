package tileset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

// MinBoxExtent is the smallest extent written for any box axis.
const MinBoxExtent = 0.01

// ErrInvalidBox is returned for bounding volumes that are not 12-number boxes.
var ErrInvalidBox = errors.New("bounding volume is not a box")

// Manifest is a tileset.json document.
type Manifest struct {
	Asset          Asset   `json:"asset"`
	GeometricError float64 `json:"geometricError"`
	Root           *Tile3D `json:"root"`
}

type Asset struct {
	Version    string `json:"version"`
	GltfUpAxis string `json:"gltfUpAxis"`
}

type BoundingVolume struct {
	Box []float64 `json:"box"`
}

type Content struct {
	URI string `json:"uri"`
}

// Tile3D is one tile object of the manifest.
type Tile3D struct {
	BoundingVolume BoundingVolume `json:"boundingVolume"`
	GeometricError float64        `json:"geometricError"`
	Refine         string         `json:"refine,omitempty"`
	Transform      []float64      `json:"transform,omitempty"`
	Content        *Content       `json:"content,omitempty"`
	Children       []*Tile3D      `json:"children,omitempty"`
}

func newAsset() Asset {
	return Asset{Version: "1.0", GltfUpAxis: "Z"}
}

// Box converts b into the 3D Tiles box form: center followed by the three
// half-axis vectors. Each extent is at least MinBoxExtent.
func Box(b pmath.Box3) []float64 {
	c := b.Center()
	s := b.Size()
	half := func(v float64) float64 {
		return math.Max(v, MinBoxExtent) / 2
	}
	return []float64{
		c.X, c.Y, c.Z,
		half(s.X), 0, 0,
		0, half(s.Y), 0,
		0, 0, half(s.Z),
	}
}

// BoxBounds converts an axis-aligned 3D Tiles box back to min/max form.
func BoxBounds(box []float64) (pmath.Box3, error) {
	if len(box) != 12 {
		return pmath.Box3{}, fmt.Errorf("%w: %d numbers", ErrInvalidBox, len(box))
	}
	c := pmath.Vec3{X: box[0], Y: box[1], Z: box[2]}
	h := pmath.Vec3{
		X: math.Abs(box[3]) + math.Abs(box[6]) + math.Abs(box[9]),
		Y: math.Abs(box[4]) + math.Abs(box[7]) + math.Abs(box[10]),
		Z: math.Abs(box[5]) + math.Abs(box[8]) + math.Abs(box[11]),
	}
	return pmath.NewBox3(c.Sub(h), c.Add(h)), nil
}

// ManifestOptions controls manifest emission.
type ManifestOptions struct {
	// Transform places the root in its target frame. Nil or identity writes none.
	Transform *pmath.Mat4
}

// Manifest converts the tree into a tileset.json document. The top-level
// geometric error equals the root sentinel.
func (t *Tree) Manifest(opts ManifestOptions) *Manifest {
	out := make(map[int]*Tile3D, len(t.Nodes))
	t.Walk(func(idx, parent int) {
		n := &t.Nodes[idx]
		tile := &Tile3D{
			BoundingVolume: BoundingVolume{Box: Box(n.Bounds)},
			GeometricError: n.Error,
		}
		if n.Content != "" {
			tile.Content = &Content{URI: n.Content}
		}
		out[idx] = tile
		if parent >= 0 {
			out[parent].Children = append(out[parent].Children, tile)
		}
	})

	root := out[t.Root]
	root.Refine = "REPLACE"
	if opts.Transform != nil && !opts.Transform.IsIdentity() {
		root.Transform = opts.Transform.Slice()
	}
	return &Manifest{
		Asset:          newAsset(),
		GeometricError: root.GeometricError,
		Root:           root,
	}
}

// Child is one dataset referenced by a merged manifest.
type Child struct {
	URI    string
	Bounds pmath.Box3
}

// Merge builds a root manifest over several tilesets: the root carries
// MergedRootError and each child RootError with its tileset as content.
func Merge(children []Child, transform *pmath.Mat4) *Manifest {
	bounds := pmath.EmptyBox()
	root := &Tile3D{GeometricError: MergedRootError, Refine: "REPLACE"}
	for _, c := range children {
		bounds = bounds.ExpandByBox(c.Bounds)
		root.Children = append(root.Children, &Tile3D{
			BoundingVolume: BoundingVolume{Box: Box(c.Bounds)},
			GeometricError: RootError,
			Content:        &Content{URI: c.URI},
		})
	}
	root.BoundingVolume = BoundingVolume{Box: Box(bounds)}
	if transform != nil && !transform.IsIdentity() {
		root.Transform = transform.Slice()
	}
	return &Manifest{Asset: newAsset(), GeometricError: MergedRootError, Root: root}
}

// Marshal encodes the manifest as JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes a tileset.json document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing tileset: %w", err)
	}
	if m.Root == nil {
		return nil, errors.New("tileset has no root")
	}
	return &m, nil
}

// ReadFile parses a tileset.json from disk.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tileset: %w", err)
	}
	return Parse(data)
}
