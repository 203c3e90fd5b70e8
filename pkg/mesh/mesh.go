// Package mesh defines the triangle soup, material table and texture types
// that flow through every stage of the tiler.
package mesh

import (
	"fmt"

	"github.com/Faultbox/meshtiler/pkg/math"
)

// Vertex is a single corner of a triangle.
type Vertex struct {
	Position math.Vec3
	UV       math.Vec2
	Normal   math.Vec3
}

// Triangle is three vertices in winding order plus the material it uses.
// Material indexes the owning Mesh's material table; -1 means no material.
type Triangle struct {
	V         [3]Vertex
	Material  int
	HasUV     bool
	HasNormal bool
}

// Area returns the triangle's surface area.
func (t *Triangle) Area() float64 {
	return math.TriangleArea(t.V[0].Position, t.V[1].Position, t.V[2].Position)
}

// Bounds returns the bounding box of the three vertices.
func (t *Triangle) Bounds() math.Box3 {
	return math.EmptyBox().
		ExpandByPoint(t.V[0].Position).
		ExpandByPoint(t.V[1].Position).
		ExpandByPoint(t.V[2].Position)
}

// FaceNormal returns the unit geometric normal implied by the winding order.
func (t *Triangle) FaceNormal() math.Vec3 {
	a, b, c := t.V[0].Position, t.V[1].Position, t.V[2].Position
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}

// Texture holds an encoded image. Data is never decoded in this package.
type Texture struct {
	Name string
	MIME string
	Data []byte
}

// Material describes surface appearance. Texture may be nil.
type Material struct {
	Name     string
	Diffuse  [4]float32
	Specular [4]float32
	Texture  *Texture
}

// DefaultMaterial is used for triangles that do not reference a material.
func DefaultMaterial() Material {
	return Material{
		Name:    "default",
		Diffuse: [4]float32{1, 1, 1, 1},
	}
}

// Mesh is a triangle soup with its materials. Materials are shared by
// reference and must not be mutated once the mesh leaves its loader.
type Mesh struct {
	Name      string
	Triangles []Triangle
	Materials []Material
}

// Bounds computes the bounding box over all triangle vertices.
func (m *Mesh) Bounds() math.Box3 {
	return BoundsOf(m.Triangles)
}

// BoundsOf computes the bounding box of a triangle slice.
func BoundsOf(tris []Triangle) math.Box3 {
	b := math.EmptyBox()
	for i := range tris {
		for j := 0; j < 3; j++ {
			b = b.ExpandByPoint(tris[i].V[j].Position)
		}
	}
	return b
}

// SurfaceArea returns the sum of triangle areas.
func (m *Mesh) SurfaceArea() float64 {
	return SurfaceAreaOf(m.Triangles)
}

// SurfaceAreaOf sums the areas of a triangle slice.
func SurfaceAreaOf(tris []Triangle) float64 {
	var total float64
	for i := range tris {
		total += tris[i].Area()
	}
	return total
}

// Validate checks that every triangle references an existing material.
func (m *Mesh) Validate() error {
	for i := range m.Triangles {
		mi := m.Triangles[i].Material
		if mi < -1 || mi >= len(m.Materials) {
			return fmt.Errorf("triangle %d references material %d of %d", i, mi, len(m.Materials))
		}
	}
	return nil
}

// HasTextures reports whether any material carries a texture.
func (m *Mesh) HasTextures() bool {
	for i := range m.Materials {
		if m.Materials[i].Texture != nil {
			return true
		}
	}
	return false
}
