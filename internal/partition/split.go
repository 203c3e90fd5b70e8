// Package partition splits triangle soups into leaf tiles by recursive
// axis-aligned plane cuts, clipping triangles that straddle a plane.
package partition

import (
	"github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// Epsilon is the distance from a split plane within which a vertex counts as on the plane.
const Epsilon = 1e-6

// minArea is the area below which a clipped triangle is dropped.
const minArea = 1e-12

type side int

const (
	sideLeft side = iota
	sideRight
	sideOn
)

func classify(coord, threshold float64) side {
	switch {
	case coord < threshold-Epsilon:
		return sideLeft
	case coord > threshold+Epsilon:
		return sideRight
	default:
		return sideOn
	}
}

// SplitStats counts what a split did to its input.
type SplitStats struct {
	Spanning int // triangles that needed clipping
	Added    int // pieces created by clipping beyond the one they replace
	Dropped  int // zero-area clip outputs discarded
}

func (s *SplitStats) add(o SplitStats) {
	s.Spanning += o.Spanning
	s.Added += o.Added
	s.Dropped += o.Dropped
}

// Split cuts tris by the plane axis = threshold. Each output triangle is a
// copy; the input slice is not modified. The returned subsets contain only the
// materials each side references, and the output triangles index into them.
func Split(tris []mesh.Triangle, materials []mesh.Material, axis math.Axis, threshold float64) (left []mesh.Triangle, leftMats mesh.Subset, right []mesh.Triangle, rightMats mesh.Subset) {
	left, right, _ = splitTriangles(tris, axis, threshold)
	leftMats = mesh.BuildSubset(left, materials)
	rightMats = mesh.BuildSubset(right, materials)
	return left, leftMats, right, rightMats
}

// splitTriangles is Split without material remapping.
func splitTriangles(tris []mesh.Triangle, axis math.Axis, threshold float64) (left, right []mesh.Triangle, stats SplitStats) {
	left = make([]mesh.Triangle, 0, len(tris)/2+1)
	right = make([]mesh.Triangle, 0, len(tris)/2+1)

	for i := range tris {
		t := &tris[i]
		var sides [3]side
		var nLeft, nRight, nOn int
		for j := 0; j < 3; j++ {
			sides[j] = classify(t.V[j].Position.Component(axis), threshold)
			switch sides[j] {
			case sideLeft:
				nLeft++
			case sideRight:
				nRight++
			default:
				nOn++
			}
		}

		switch {
		case nOn >= 2:
			left = append(left, *t)
			continue
		case nRight == 0:
			left = append(left, *t)
			continue
		case nLeft == 0:
			right = append(right, *t)
			continue
		}

		stats.Spanning++
		var l, r []mesh.Triangle
		if nOn == 1 {
			l, r = clipOnPlane(t, sides, axis, threshold)
		} else {
			l, r = clipOneTwo(t, sides, nLeft, axis, threshold)
		}
		stats.Added += len(l) + len(r) - 1
		for _, out := range l {
			if out.Area() < minArea {
				stats.Dropped++
				continue
			}
			left = append(left, out)
		}
		for _, out := range r {
			if out.Area() < minArea {
				stats.Dropped++
				continue
			}
			right = append(right, out)
		}
	}
	return left, right, stats
}

// clipOnPlane handles one on-plane vertex with the other two on opposite sides.
func clipOnPlane(t *mesh.Triangle, sides [3]side, axis math.Axis, threshold float64) (left, right []mesh.Triangle) {
	on := 0
	for j := 0; j < 3; j++ {
		if sides[j] == sideOn {
			on = j
		}
	}
	// Walk the winding from the on-plane vertex so both halves keep orientation.
	a, b := (on+1)%3, (on+2)%3
	va, vb, vo := t.V[a], t.V[b], t.V[on]
	ix := intersect(va, vb, axis, threshold)

	// (on, a, I) and (on, I, b) preserve the source winding.
	first := withVertices(t, vo, va, ix)
	second := withVertices(t, vo, ix, vb)
	if sides[a] == sideLeft {
		return []mesh.Triangle{rotateTo(first, va)}, []mesh.Triangle{second}
	}
	return []mesh.Triangle{rotateTo(second, vb)}, []mesh.Triangle{first}
}

// clipOneTwo handles one vertex alone on one side and two on the other.
func clipOneTwo(t *mesh.Triangle, sides [3]side, nLeft int, axis math.Axis, threshold float64) (left, right []mesh.Triangle) {
	minority := sideLeft
	if nLeft == 2 {
		minority = sideRight
	}
	m := 0
	for j := 0; j < 3; j++ {
		if sides[j] == minority {
			m = j
		}
	}
	a, b := (m+1)%3, (m+2)%3
	vm, va, vb := t.V[m], t.V[a], t.V[b]

	if nearPlane(va, axis, threshold) && nearPlane(vb, axis, threshold) {
		if minority == sideLeft {
			return nil, []mesh.Triangle{*t}
		}
		return []mesh.Triangle{*t}, nil
	}

	ia := intersect(vm, va, axis, threshold)
	ib := intersect(vm, vb, axis, threshold)

	minor := []mesh.Triangle{withVertices(t, vm, ia, ib)}
	// The remaining quad ia, a, b, ib is fanned from ia.
	major := []mesh.Triangle{
		withVertices(t, ia, va, vb),
		withVertices(t, ia, vb, ib),
	}
	if minority == sideLeft {
		return minor, major
	}
	return major, minor
}

func nearPlane(v mesh.Vertex, axis math.Axis, threshold float64) bool {
	d := v.Position.Component(axis) - threshold
	return d >= -Epsilon && d <= Epsilon
}

// intersect returns the vertex where edge a-b crosses the plane. The clip
// parameter is clamped to [0,1] and a zero-length edge yields a.
func intersect(a, b mesh.Vertex, axis math.Axis, threshold float64) mesh.Vertex {
	ca := a.Position.Component(axis)
	cb := b.Position.Component(axis)
	var t float64
	if cb != ca {
		t = (threshold - ca) / (cb - ca)
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return mesh.Vertex{
		Position: a.Position.Lerp(b.Position, t),
		UV:       a.UV.Lerp(b.UV, t),
		Normal:   a.Normal.Lerp(b.Normal, t).Normalize(),
	}
}

func withVertices(src *mesh.Triangle, a, b, c mesh.Vertex) mesh.Triangle {
	out := *src
	out.V = [3]mesh.Vertex{a, b, c}
	return out
}

// rotateTo cycles the triangle's vertices until first leads. Cyclic rotation
// keeps the winding.
func rotateTo(t mesh.Triangle, first mesh.Vertex) mesh.Triangle {
	for k := 0; k < 3; k++ {
		if t.V[0] == first {
			return t
		}
		t.V = [3]mesh.Vertex{t.V[1], t.V[2], t.V[0]}
	}
	return t
}
