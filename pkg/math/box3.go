package math

import "math"

// Box3 is an axis-aligned bounding box. The zero value is not empty;
// use EmptyBox to start an accumulation.
type Box3 struct {
	Min, Max Vec3
}

// EmptyBox returns a box that contains nothing and absorbs the first point expanded into it.
func EmptyBox() Box3 {
	inf := math.Inf(1)
	return Box3{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// NewBox3 returns a box spanning min and max.
func NewBox3(min, max Vec3) Box3 {
	return Box3{Min: min, Max: max}
}

// IsEmpty reports whether the box contains no point.
func (b Box3) IsEmpty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

// ExpandByPoint returns the box grown to include p.
func (b Box3) ExpandByPoint(p Vec3) Box3 {
	return Box3{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// ExpandByBox returns the union of b and other. Empty boxes are ignored.
func (b Box3) ExpandByBox(other Box3) Box3 {
	if other.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return other
	}
	return Box3{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Size returns the extent along each axis. Empty boxes have zero size.
func (b Box3) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Center returns the midpoint of the box.
func (b Box3) Center() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Min.Add(b.Max).Scale(0.5)
}

// MaxExtent returns the largest of the three extents.
func (b Box3) MaxExtent() float64 {
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}

// ContainsBox reports whether other lies inside b within eps.
func (b Box3) ContainsBox(other Box3, eps float64) bool {
	if other.IsEmpty() {
		return true
	}
	return other.Min.X >= b.Min.X-eps && other.Min.Y >= b.Min.Y-eps && other.Min.Z >= b.Min.Z-eps &&
		other.Max.X <= b.Max.X+eps && other.Max.Y <= b.Max.Y+eps && other.Max.Z <= b.Max.Z+eps
}

// Corners returns the eight corner points of the box.
func (b Box3) Corners() [8]Vec3 {
	var c [8]Vec3
	for i := 0; i < 8; i++ {
		p := b.Min
		if i&1 != 0 {
			p.X = b.Max.X
		}
		if i&2 != 0 {
			p.Y = b.Max.Y
		}
		if i&4 != 0 {
			p.Z = b.Max.Z
		}
		c[i] = p
	}
	return c
}
