package atlas

import (
	"image"
	"math"
)

// nextPow2 returns the smallest power of two >= n, with a minimum of 1.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// shelfLayout places rectangles of the given sizes left to right in rows, in
// the order given. It returns each rectangle's origin and the power-of-two
// atlas size.
func shelfLayout(sizes []image.Point) ([]image.Point, image.Point) {
	if len(sizes) == 0 {
		return nil, image.Point{}
	}
	var area, widest int
	for _, s := range sizes {
		area += s.X * s.Y
		if s.X > widest {
			widest = s.X
		}
	}
	width := nextPow2(max(widest, int(math.Ceil(math.Sqrt(float64(area))))))

	origins := make([]image.Point, len(sizes))
	x, y, shelf := 0, 0, 0
	for i, s := range sizes {
		if x+s.X > width {
			x = 0
			y += shelf
			shelf = 0
		}
		origins[i] = image.Pt(x, y)
		x += s.X
		if s.Y > shelf {
			shelf = s.Y
		}
	}
	return origins, image.Pt(width, nextPow2(y+shelf))
}
