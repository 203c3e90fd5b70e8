package lod

import "github.com/Faultbox/meshtiler/pkg/math"

// quadric is a symmetric 4x4 matrix stored as its upper triangle.
type quadric [10]float64

// planeQuadric returns the quadric of the plane n.p + d = 0 scaled by w.
func planeQuadric(n math.Vec3, d, w float64) quadric {
	a, b, c := n.X, n.Y, n.Z
	return quadric{
		w * a * a, w * a * b, w * a * c, w * a * d,
		w * b * b, w * b * c, w * b * d,
		w * c * c, w * c * d,
		w * d * d,
	}
}

func (q quadric) add(o quadric) quadric {
	for i := range q {
		q[i] += o[i]
	}
	return q
}

// eval returns v^T Q v for the homogeneous point (p, 1).
func (q quadric) eval(p math.Vec3) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}
