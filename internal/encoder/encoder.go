// Package encoder turns a leaf's triangles and materials into tile bytes in
// the configured output format.
package encoder

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshtiler/pkg/formats"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// Encoder errors.
var (
	ErrEmptyTile        = errors.New("tile has no triangles")
	ErrUnsupportedImage = errors.New("texture format cannot be embedded")
	ErrUnknownFormat    = errors.New("unknown output format")
)

// Tile is the content of one leaf after texture processing.
type Tile struct {
	Triangles []mesh.Triangle
	Materials []mesh.Material
}

// Options configures an Encoder.
type Options struct {
	Format    formats.OutputFormat
	Generator string
}

// Encoder writes tiles in a single output format.
type Encoder struct {
	opts Options
}

// New creates an encoder.
func New(opts Options) *Encoder {
	return &Encoder{opts: opts}
}

// Format returns the configured output format.
func (e *Encoder) Format() formats.OutputFormat {
	return e.opts.Format
}

// Encode serializes t.
func (e *Encoder) Encode(t Tile) ([]byte, error) {
	if len(t.Triangles) == 0 {
		return nil, ErrEmptyTile
	}

	switch e.opts.Format {
	case formats.FormatB3DM:
		return e.b3dm(t.Triangles, t.Materials)
	case formats.FormatGLTF:
		return BuildGLB(t.Triangles, t.Materials, GLBOptions{Generator: e.opts.Generator})
	case formats.FormatI3DM:
		return e.i3dm(t)
	case formats.FormatPNTS:
		return e.pnts(t)
	case formats.FormatCMPT:
		return e.cmpt(t.Triangles, t.Materials)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, e.opts.Format)
	}
}

func (e *Encoder) b3dm(tris []mesh.Triangle, mats []mesh.Material) ([]byte, error) {
	glb, err := BuildGLB(tris, mats, GLBOptions{Generator: e.opts.Generator, BatchID: true})
	if err != nil {
		return nil, err
	}
	return formats.EncodeB3DM(glb, formats.NewBatchTable(1))
}

// i3dm centers the model on the leaf and places a single instance there.
func (e *Encoder) i3dm(t Tile) ([]byte, error) {
	center := mesh.BoundsOf(t.Triangles).Center()
	glb, err := BuildGLB(t.Triangles, t.Materials, GLBOptions{Generator: e.opts.Generator, Offset: center})
	if err != nil {
		return nil, err
	}
	return formats.EncodeI3DM(glb, []pmath.Vec3{center}, center)
}

// pnts writes the leaf's unique vertices as points colored by material.
func (e *Encoder) pnts(t Tile) ([]byte, error) {
	seen := make(map[pmath.Vec3]bool)
	var points []formats.Point
	for i := range t.Triangles {
		tri := &t.Triangles[i]
		c := mesh.DefaultMaterial().Diffuse
		if m := tri.Material; m >= 0 && m < len(t.Materials) {
			c = t.Materials[m].Diffuse
		}
		for j := 0; j < 3; j++ {
			p := tri.V[j].Position
			if seen[p] {
				continue
			}
			seen[p] = true
			points = append(points, formats.Point{Position: p, Color: toRGB(c)})
		}
	}
	return formats.EncodePNTS(points, mesh.BoundsOf(t.Triangles).Center())
}

// cmpt writes one b3dm per material group.
func (e *Encoder) cmpt(tris []mesh.Triangle, mats []mesh.Material) ([]byte, error) {
	var order []int
	groups := make(map[int][]mesh.Triangle)
	for i := range tris {
		m := tris[i].Material
		if m < 0 || m >= len(mats) {
			m = -1
		}
		if _, ok := groups[m]; !ok {
			order = append(order, m)
		}
		groups[m] = append(groups[m], tris[i])
	}

	inner := make([][]byte, 0, len(order))
	for _, m := range order {
		group := groups[m]
		sub := mesh.BuildSubset(group, mats)
		tile, err := e.b3dm(group, sub.Materials)
		if err != nil {
			return nil, fmt.Errorf("material group %d: %w", m, err)
		}
		inner = append(inner, tile)
	}
	return formats.EncodeCMPT(inner)
}

func toRGB(c [4]float32) [3]uint8 {
	var out [3]uint8
	for i := 0; i < 3; i++ {
		v := c[i]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i] = uint8(v*255 + 0.5)
	}
	return out
}
