// Package lod builds progressively coarser copies of a mesh by quadric error
// metric edge collapse.
package lod

import (
	"container/heap"

	"github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// boundaryWeight scales the penalty planes placed along open edges so the
// outline of a mesh, including UV seams, moves last.
const boundaryWeight = 1000

const (
	keepA = iota
	keepB
	keepMid
)

type face struct {
	v         [3]int
	material  int
	hasUV     bool
	hasNormal bool
	removed   bool
}

type edgeKey struct{ a, b int }

func newEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

type vertexKey struct {
	pos, normal math.Vec3
	uv          math.Vec2
}

type simplifier struct {
	verts   []mesh.Vertex
	quads   []quadric
	stamp   []int
	removed []bool
	vfaces  [][]int
	faces   []face
	live    int
	queue   collapseHeap
	seq     int
}

// Simplify returns a copy of m reduced to at most target triangles, or as
// close as the collapse constraints allow. Vertices sharing position, UV and
// normal are welded first; vertices that differ in any attribute stay apart,
// which keeps UV seams as open edges. Identical input always yields identical output.
func Simplify(m *mesh.Mesh, target int) *mesh.Mesh {
	out := &mesh.Mesh{Name: m.Name, Materials: m.Materials}
	if target >= len(m.Triangles) {
		out.Triangles = append([]mesh.Triangle(nil), m.Triangles...)
		return out
	}
	if target < 0 {
		target = 0
	}

	s := newSimplifier(m)
	for s.live > target && s.queue.Len() > 0 {
		c := heap.Pop(&s.queue).(*collapse)
		if s.removed[c.a] || s.removed[c.b] || s.stamp[c.a] != c.stampA || s.stamp[c.b] != c.stampB {
			continue
		}
		s.apply(c)
	}

	out.Triangles = make([]mesh.Triangle, 0, s.live)
	for i := range s.faces {
		f := &s.faces[i]
		if f.removed {
			continue
		}
		out.Triangles = append(out.Triangles, mesh.Triangle{
			V:         [3]mesh.Vertex{s.verts[f.v[0]], s.verts[f.v[1]], s.verts[f.v[2]]},
			Material:  f.material,
			HasUV:     f.hasUV,
			HasNormal: f.hasNormal,
		})
	}
	return out
}

func newSimplifier(m *mesh.Mesh) *simplifier {
	s := &simplifier{}
	index := make(map[vertexKey]int, len(m.Triangles))
	weld := func(v mesh.Vertex) int {
		k := vertexKey{pos: v.Position, normal: v.Normal, uv: v.UV}
		if i, ok := index[k]; ok {
			return i
		}
		i := len(s.verts)
		index[k] = i
		s.verts = append(s.verts, v)
		return i
	}

	s.faces = make([]face, 0, len(m.Triangles))
	for i := range m.Triangles {
		t := &m.Triangles[i]
		f := face{
			v:         [3]int{weld(t.V[0]), weld(t.V[1]), weld(t.V[2])},
			material:  t.Material,
			hasUV:     t.HasUV,
			hasNormal: t.HasNormal,
		}
		// Faces that weld to fewer than three vertices carry no area.
		if f.v[0] == f.v[1] || f.v[1] == f.v[2] || f.v[0] == f.v[2] {
			continue
		}
		s.faces = append(s.faces, f)
	}

	n := len(s.verts)
	s.quads = make([]quadric, n)
	s.stamp = make([]int, n)
	s.removed = make([]bool, n)
	s.vfaces = make([][]int, n)

	edgeUse := make(map[edgeKey]int)
	var edgeOrder []edgeKey
	for fi := range s.faces {
		f := &s.faces[fi]
		p0, p1, p2 := s.verts[f.v[0]].Position, s.verts[f.v[1]].Position, s.verts[f.v[2]].Position
		normal := p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
		q := planeQuadric(normal, -normal.Dot(p0), 1)
		for j := 0; j < 3; j++ {
			vi := f.v[j]
			s.quads[vi] = s.quads[vi].add(q)
			s.vfaces[vi] = append(s.vfaces[vi], fi)

			k := newEdgeKey(f.v[j], f.v[(j+1)%3])
			if edgeUse[k] == 0 {
				edgeOrder = append(edgeOrder, k)
			}
			edgeUse[k]++
		}
		s.live++
	}

	// Open edges get a plane through the edge perpendicular to its face.
	for fi := range s.faces {
		f := &s.faces[fi]
		p0, p1, p2 := s.verts[f.v[0]].Position, s.verts[f.v[1]].Position, s.verts[f.v[2]].Position
		faceNormal := p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
		for j := 0; j < 3; j++ {
			a, b := f.v[j], f.v[(j+1)%3]
			if edgeUse[newEdgeKey(a, b)] != 1 {
				continue
			}
			pa, pb := s.verts[a].Position, s.verts[b].Position
			perp := pb.Sub(pa).Cross(faceNormal).Normalize()
			q := planeQuadric(perp, -perp.Dot(pa), boundaryWeight)
			s.quads[a] = s.quads[a].add(q)
			s.quads[b] = s.quads[b].add(q)
		}
	}

	for _, k := range edgeOrder {
		s.push(k.a, k.b)
	}
	heap.Init(&s.queue)
	return s
}

// push queues the collapse of b into a with its current cost.
func (s *simplifier) push(a, b int) {
	cost, _ := s.evaluate(a, b)
	s.seq++
	heap.Push(&s.queue, &collapse{
		cost:   cost,
		seq:    s.seq,
		a:      a,
		b:      b,
		stampA: s.stamp[a],
		stampB: s.stamp[b],
	})
}

// evaluate picks the cheapest of the two endpoints and the midpoint.
func (s *simplifier) evaluate(a, b int) (float64, int) {
	q := s.quads[a].add(s.quads[b])
	pa, pb := s.verts[a].Position, s.verts[b].Position
	best, mode := q.eval(pa), keepA
	if c := q.eval(pb); c < best {
		best, mode = c, keepB
	}
	if c := q.eval(pa.Lerp(pb, 0.5)); c < best {
		best, mode = c, keepMid
	}
	return best, mode
}

func (s *simplifier) merged(a, b, mode int) mesh.Vertex {
	switch mode {
	case keepB:
		return s.verts[b]
	case keepMid:
		va, vb := s.verts[a], s.verts[b]
		return mesh.Vertex{
			Position: va.Position.Lerp(vb.Position, 0.5),
			UV:       va.UV.Lerp(vb.UV, 0.5),
			Normal:   va.Normal.Lerp(vb.Normal, 0.5).Normalize(),
		}
	default:
		return s.verts[a]
	}
}

// flips reports whether moving a and b to p would invert or flatten a surviving face.
func (s *simplifier) flips(a, b int, p math.Vec3) bool {
	check := func(list []int) bool {
		for _, fi := range list {
			f := &s.faces[fi]
			if f.removed {
				continue
			}
			hasA, hasB := false, false
			var before, after [3]math.Vec3
			for j := 0; j < 3; j++ {
				vi := f.v[j]
				before[j] = s.verts[vi].Position
				after[j] = before[j]
				if vi == a {
					hasA = true
					after[j] = p
				} else if vi == b {
					hasB = true
					after[j] = p
				}
			}
			if hasA && hasB {
				continue
			}
			n0 := before[1].Sub(before[0]).Cross(before[2].Sub(before[0]))
			n1 := after[1].Sub(after[0]).Cross(after[2].Sub(after[0]))
			if n1.Length() <= n0.Length()*1e-6 || n0.Dot(n1) <= 0 {
				return true
			}
		}
		return false
	}
	return check(s.vfaces[a]) || check(s.vfaces[b])
}

func (s *simplifier) apply(c *collapse) {
	a, b := c.a, c.b
	_, mode := s.evaluate(a, b)
	v := s.merged(a, b, mode)
	if s.flips(a, b, v.Position) {
		return
	}

	s.verts[a] = v
	s.quads[a] = s.quads[a].add(s.quads[b])
	s.removed[b] = true
	s.stamp[a]++

	for _, fi := range s.vfaces[b] {
		f := &s.faces[fi]
		if f.removed {
			continue
		}
		shared := false
		for j := 0; j < 3; j++ {
			if f.v[j] == a {
				shared = true
			}
		}
		if shared {
			f.removed = true
			s.live--
			continue
		}
		for j := 0; j < 3; j++ {
			if f.v[j] == b {
				f.v[j] = a
			}
		}
		s.vfaces[a] = append(s.vfaces[a], fi)
	}
	s.vfaces[b] = nil

	// Drop dead faces from a's list and requeue its edges.
	kept := s.vfaces[a][:0]
	seen := make(map[int]bool)
	var neighbors []int
	for _, fi := range s.vfaces[a] {
		f := &s.faces[fi]
		if f.removed {
			continue
		}
		kept = append(kept, fi)
		for j := 0; j < 3; j++ {
			n := f.v[j]
			if n != a && !seen[n] {
				seen[n] = true
				neighbors = append(neighbors, n)
			}
		}
	}
	s.vfaces[a] = kept
	for _, n := range neighbors {
		s.push(a, n)
	}
}
