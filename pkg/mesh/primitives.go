package mesh

import "github.com/Faultbox/meshtiler/pkg/math"

// Box returns the 12 outward-facing triangles of an axis-aligned box.
func Box(min, max math.Vec3) *Mesh {
	c := math.NewBox3(min, max).Corners()
	// Corner index bits: 1=x, 2=y, 4=z.
	quads := [6][4]int{
		{0, 2, 3, 1}, // -z
		{4, 5, 7, 6}, // +z
		{0, 1, 5, 4}, // -y
		{2, 6, 7, 3}, // +y
		{0, 4, 6, 2}, // -x
		{1, 3, 7, 5}, // +x
	}
	normals := [6]math.Vec3{{Z: -1}, {Z: 1}, {Y: -1}, {Y: 1}, {X: -1}, {X: 1}}
	uvs := [4]math.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	m := &Mesh{Name: "box", Materials: []Material{DefaultMaterial()}}
	for f, q := range quads {
		var vs [4]Vertex
		for k := 0; k < 4; k++ {
			vs[k] = Vertex{Position: c[q[k]], UV: uvs[k], Normal: normals[f]}
		}
		m.Triangles = append(m.Triangles,
			Triangle{V: [3]Vertex{vs[0], vs[1], vs[2]}, HasUV: true, HasNormal: true},
			Triangle{V: [3]Vertex{vs[0], vs[2], vs[3]}, HasUV: true, HasNormal: true},
		)
	}
	return m
}

// Grid returns a flat nx by ny grid of unit quads in the XY plane, two
// triangles per quad, with UVs spanning [0,1].
func Grid(nx, ny int) *Mesh {
	m := &Mesh{Name: "grid", Materials: []Material{DefaultMaterial()}}
	m.Triangles = make([]Triangle, 0, nx*ny*2)
	vert := func(i, j int) Vertex {
		return Vertex{
			Position: math.Vec3{X: float64(i), Y: float64(j)},
			UV:       math.Vec2{X: float64(i) / float64(nx), Y: float64(j) / float64(ny)},
			Normal:   math.Vec3{Z: 1},
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			a, b, c, d := vert(i, j), vert(i+1, j), vert(i+1, j+1), vert(i, j+1)
			m.Triangles = append(m.Triangles,
				Triangle{V: [3]Vertex{a, b, c}, HasUV: true, HasNormal: true},
				Triangle{V: [3]Vertex{a, c, d}, HasUV: true, HasNormal: true},
			)
		}
	}
	return m
}
