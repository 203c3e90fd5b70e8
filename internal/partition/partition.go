package partition

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// Address locates a node in the split tree. Each split doubles the
// coordinate on its axis and adds 0 for the left child or 1 for the right.
// Path records the same bits in split order regardless of axis, so it
// identifies the node even where two subtrees reach equal coordinates.
type Address struct {
	X, Y, Z int
	Depth   int
	Path    uint64
}

// Child returns the address of the left (right=false) or right child when splitting on axis.
func (a Address) Child(axis math.Axis, right bool) Address {
	bit := 0
	if right {
		bit = 1
	}
	c := a
	c.Depth++
	c.Path = a.Path<<1 | uint64(bit)
	switch axis {
	case math.AxisX:
		c.X = a.X*2 + bit
	case math.AxisY:
		c.Y = a.Y*2 + bit
	default:
		c.Z = a.Z*2 + bit
	}
	return c
}

func (a Address) String() string {
	return fmt.Sprintf("%d_%d_%d", a.X, a.Y, a.Z)
}

// Name is a file-safe unique name: the coordinates followed by the split path.
func (a Address) Name() string {
	if a.Depth == 0 {
		return a.String()
	}
	return fmt.Sprintf("%s_%0*b", a.String(), a.Depth, a.Path)
}

// Contains reports whether b is a or one of its descendants.
func (a Address) Contains(b Address) bool {
	if b.Depth < a.Depth {
		return false
	}
	return b.Path>>uint(b.Depth-a.Depth) == a.Path
}

// Parent returns the address one split up. The root is its own parent.
// Coordinates are not recoverable from the path alone, so only Depth and
// Path are meaningful on the result.
func (a Address) Parent() Address {
	if a.Depth == 0 {
		return a
	}
	return Address{Depth: a.Depth - 1, Path: a.Path >> 1}
}

// SelectBestAxis returns the axis with the largest extent. Ties go to X, then Y, then Z.
func SelectBestAxis(b math.Box3) math.Axis {
	s := b.Size()
	axis := math.AxisX
	best := s.X
	if s.Y > best {
		axis, best = math.AxisY, s.Y
	}
	if s.Z > best {
		axis = math.AxisZ
	}
	return axis
}

// ComputeSplitThreshold returns the midpoint of the box along axis.
func ComputeSplitThreshold(b math.Box3, axis math.Axis) float64 {
	return (b.Min.Component(axis) + b.Max.Component(axis)) * 0.5
}

// Leaf is one output tile of a partition: its triangles, the material subset
// they reference and their bounds.
type Leaf struct {
	Address   Address
	Triangles []mesh.Triangle
	Materials mesh.Subset
	Bounds    math.Box3
}

// Options controls recursion.
type Options struct {
	MaxDepth             int
	MinTrianglesPerSplit int
	// TileSize stops splitting cells whose longest edge is at most this size. 0 disables.
	TileSize float64
	Logger   *zap.Logger
}

// Stats summarizes a completed partition.
type Stats struct {
	Leaves  int
	Input   int
	Output  int
	Splits  int
	Clipped SplitStats
}

// Accounted reports whether every input triangle is represented in the
// output exactly once after clipping.
func (s Stats) Accounted() bool {
	return s.Output == s.Input+s.Clipped.Added-s.Clipped.Dropped
}

type frame struct {
	addr Address
	tris []mesh.Triangle
}

// Partition recursively splits m and calls emit once per leaf, depth first with
// the left subtree before the right. Material indexes in m are not modified;
// each leaf gets a fresh subset. Cancellation is checked between leaves.
func Partition(ctx context.Context, m *mesh.Mesh, opts Options, emit func(*Leaf) error) (Stats, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	stats := Stats{Input: len(m.Triangles)}

	stack := []frame{{tris: m.Triangles}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		bounds := mesh.BoundsOf(f.tris)
		if f.addr.Depth >= opts.MaxDepth || len(f.tris) <= opts.MinTrianglesPerSplit || bounds.IsEmpty() ||
			(opts.TileSize > 0 && bounds.MaxExtent() <= opts.TileSize) {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if len(f.tris) == 0 {
				continue
			}
			leaf := &Leaf{
				Address:   f.addr,
				Triangles: append([]mesh.Triangle(nil), f.tris...),
				Bounds:    bounds,
			}
			leaf.Materials = mesh.BuildSubset(leaf.Triangles, m.Materials)
			stats.Leaves++
			stats.Output += len(leaf.Triangles)
			if err := emit(leaf); err != nil {
				return stats, err
			}
			continue
		}

		axis := SelectBestAxis(bounds)
		threshold := ComputeSplitThreshold(bounds, axis)
		left, right, ss := splitTriangles(f.tris, axis, threshold)
		stats.Splits++
		stats.Clipped.add(ss)
		log.Debug("split",
			zap.Stringer("address", f.addr),
			zap.Int("depth", f.addr.Depth),
			zap.Stringer("axis", axis),
			zap.Float64("threshold", threshold),
			zap.Int("left", len(left)),
			zap.Int("right", len(right)),
			zap.Int("spanning", ss.Spanning))

		// Right is pushed first so the left subtree is emitted first.
		stack = append(stack,
			frame{addr: f.addr.Child(axis, true), tris: right},
			frame{addr: f.addr.Child(axis, false), tris: left},
		)
	}
	return stats, nil
}
