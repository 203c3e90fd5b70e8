package loader

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// SDFScheme prefixes procedural inputs, e.g. "sdf:sphere?r=10&cells=64".
const SDFScheme = "sdf"

// DefaultSDFCells is the marching cubes resolution along the longest axis.
const DefaultSDFCells = 64

// SDFLoader tessellates a signed distance primitive. Supported shapes are
// sphere (r), box (x, y, z) and cylinder (h, r).
type SDFLoader struct{}

// Load parses id and renders the shape with marching cubes.
func (SDFLoader) Load(ctx context.Context, id string) (*mesh.Mesh, error) {
	u, err := url.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid sdf uri: %w", err)
	}
	if u.Scheme != SDFScheme {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, id)
	}
	shape := u.Opaque
	if shape == "" {
		shape = u.Host
	}
	q := u.Query()

	cells := DefaultSDFCells
	if v := q.Get("cells"); v != "" {
		if cells, err = strconv.Atoi(v); err != nil || cells < 2 {
			return nil, fmt.Errorf("invalid cells %q", v)
		}
	}

	s, err := buildSDF(shape, q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tris := render.ToTriangles(s, render.NewMarchingCubesUniform(cells))

	m := &mesh.Mesh{
		Name:      shape,
		Triangles: make([]mesh.Triangle, 0, len(tris)),
		Materials: []mesh.Material{mesh.DefaultMaterial()},
	}
	for _, tri := range tris {
		n := tri.Normal()
		normal := pmath.Vec3{X: n.X, Y: n.Y, Z: n.Z}
		var t mesh.Triangle
		for j := 0; j < 3; j++ {
			v := tri[j]
			t.V[j] = mesh.Vertex{Position: pmath.Vec3{X: v.X, Y: v.Y, Z: v.Z}, Normal: normal}
		}
		t.HasNormal = true
		if t.Area() == 0 {
			continue
		}
		m.Triangles = append(m.Triangles, t)
	}
	return m, nil
}

func buildSDF(shape string, q url.Values) (sdf.SDF3, error) {
	num := func(key string, def float64) (float64, error) {
		v := q.Get(key)
		if v == "" {
			return def, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return 0, fmt.Errorf("invalid %s %q", key, v)
		}
		return f, nil
	}

	switch shape {
	case "sphere":
		r, err := num("r", 1)
		if err != nil {
			return nil, err
		}
		return sdf.Sphere3D(r)
	case "box":
		x, err := num("x", 1)
		if err != nil {
			return nil, err
		}
		y, err := num("y", x)
		if err != nil {
			return nil, err
		}
		z, err := num("z", x)
		if err != nil {
			return nil, err
		}
		return sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	case "cylinder":
		h, err := num("h", 1)
		if err != nil {
			return nil, err
		}
		r, err := num("r", h/2)
		if err != nil {
			return nil, err
		}
		return sdf.Cylinder3D(h, r, 0)
	}
	return nil, fmt.Errorf("%w: sdf shape %q", ErrUnsupported, shape)
}
