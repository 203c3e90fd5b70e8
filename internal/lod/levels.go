package lod

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// ErrInvalidRatios is returned when level ratios are empty, out of (0,1] or increasing.
var ErrInvalidRatios = errors.New("invalid LOD ratios")

// Level is one simplified copy of the source mesh. Level 0 is the finest.
type Level struct {
	Index int
	Ratio float64
	Mesh  *mesh.Mesh
}

// DefaultRatios returns n successive halvings starting at 1.
func DefaultRatios(n int) []float64 {
	ratios := make([]float64, n)
	r := 1.0
	for i := range ratios {
		ratios[i] = r
		r /= 2
	}
	return ratios
}

// ValidateRatios checks that ratios are in (0,1] and non-increasing.
func ValidateRatios(ratios []float64) error {
	if len(ratios) == 0 {
		return fmt.Errorf("%w: no levels", ErrInvalidRatios)
	}
	for i, r := range ratios {
		if r <= 0 || r > 1 || math.IsNaN(r) {
			return fmt.Errorf("%w: level %d ratio %v", ErrInvalidRatios, i, r)
		}
		if i > 0 && r > ratios[i-1] {
			return fmt.Errorf("%w: level %d ratio %v exceeds level %d", ErrInvalidRatios, i, r, i-1)
		}
	}
	return nil
}

// BuildLevels simplifies m once per ratio. Each ratio is relative to the
// source triangle count, and each level is simplified from the previous one.
func BuildLevels(ctx context.Context, m *mesh.Mesh, ratios []float64, log *zap.Logger) ([]Level, error) {
	if err := ValidateRatios(ratios); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	source := len(m.Triangles)
	levels := make([]Level, 0, len(ratios))
	prev := m
	for i, r := range ratios {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target := int(math.Round(float64(source) * r))
		cur := Simplify(prev, target)
		log.Debug("lod level built",
			zap.Int("level", i),
			zap.Float64("ratio", r),
			zap.Int("target", target),
			zap.Int("triangles", len(cur.Triangles)))
		levels = append(levels, Level{Index: i, Ratio: r, Mesh: cur})
		prev = cur
	}
	return levels, nil
}
