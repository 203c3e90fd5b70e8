// Package tileset assembles encoded tiles of every LOD level into one
// hierarchy and writes the tileset.json manifest describing it.
package tileset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Faultbox/meshtiler/internal/partition"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

// Geometric errors of the synthetic roots.
const (
	RootError       = 1000
	MergedRootError = 2000
)

// ErrNoTiles is returned when Build is called before any tile was added.
var ErrNoTiles = errors.New("tileset has no tiles")

// Tile is one encoded leaf as reported by the pipeline.
type Tile struct {
	LOD     int
	Address partition.Address
	Bounds  pmath.Box3
	URI     string
}

// Node is one entry of the flat arena. Children index Tree.Nodes.
type Node struct {
	Address  partition.Address
	LOD      int
	Bounds   pmath.Box3
	Error    float64
	Content  string
	Children []int
}

// Tree is a built hierarchy. Root indexes Nodes.
type Tree struct {
	Nodes []Node
	Root  int
	// Overlaps lists fine leaves hung beside coarse tiles of the same region
	// because the coarse level was split deeper there. Under REPLACE
	// refinement both are drawn once that region refines.
	Overlaps []Overlap
}

// Overlap is a fine leaf whose coarse counterpart has no content of its own.
type Overlap struct {
	LOD     int
	Address partition.Address
}

// Options controls error assignment.
type Options struct {
	// ErrorThreshold is a lower bound for leaf geometric error when positive.
	ErrorThreshold float64
	// RootError overrides the sentinel assigned to the root. Zero means RootError.
	RootError float64
}

// Builder collects tiles from concurrently running LOD levels.
type Builder struct {
	mu    sync.Mutex
	tiles map[int][]Tile
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{tiles: make(map[int][]Tile)}
}

// Add records a tile. It is safe for concurrent use.
func (b *Builder) Add(t Tile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tiles[t.LOD] = append(b.tiles[t.LOD], t)
}

// Len returns the number of tiles added.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ts := range b.tiles {
		n += len(ts)
	}
	return n
}

type nodeKey struct {
	depth int
	path  uint64
}

func keyOf(a partition.Address) nodeKey {
	return nodeKey{depth: a.Depth, path: a.Path}
}

// levelTree indexes the nodes of one LOD level inside the shared arena.
type levelTree struct {
	lod   int
	root  int
	index map[nodeKey]int
}

// Build assembles the tree. The coarsest level's root is the top; below each
// node of a coarser level hang the nodes of the next finer level covering the
// same region, so clients replace coarse content by finer content.
func (b *Builder) Build(opts Options) (*Tree, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lods := make([]int, 0, len(b.tiles))
	for lod, ts := range b.tiles {
		if len(ts) > 0 {
			lods = append(lods, lod)
		}
	}
	if len(lods) == 0 {
		return nil, ErrNoTiles
	}
	// Coarsest (highest index) first.
	sort.Sort(sort.Reverse(sort.IntSlice(lods)))

	t := &Tree{}
	levels := make([]*levelTree, 0, len(lods))
	for _, lod := range lods {
		lt, err := t.insertLevel(lod, b.tiles[lod])
		if err != nil {
			return nil, err
		}
		levels = append(levels, lt)
	}
	for i := 1; i < len(levels); i++ {
		t.stitch(levels[i-1], levels[i])
	}
	t.Root = levels[0].root

	t.aggregate(opts.ErrorThreshold)
	root := opts.RootError
	if root == 0 {
		root = RootError
	}
	t.Nodes[t.Root].Error = root
	return t, nil
}

// insertLevel adds the tiles of one level and a node for every address prefix.
func (t *Tree) insertLevel(lod int, tiles []Tile) (*levelTree, error) {
	sorted := append([]Tile(nil), tiles...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Address, sorted[j].Address
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.Path < b.Path
	})

	lt := &levelTree{lod: lod, index: make(map[nodeKey]int)}
	get := func(a partition.Address) int {
		k := keyOf(a)
		if idx, ok := lt.index[k]; ok {
			return idx
		}
		t.Nodes = append(t.Nodes, Node{Address: a, LOD: lod, Bounds: pmath.EmptyBox()})
		idx := len(t.Nodes) - 1
		lt.index[k] = idx
		return idx
	}

	lt.root = get(partition.Address{})
	for _, tile := range sorted {
		idx := get(tile.Address)
		n := &t.Nodes[idx]
		if n.Content != "" {
			return nil, fmt.Errorf("duplicate tile %s at lod %d", tile.Address.Name(), lod)
		}
		n.Address = tile.Address
		n.Content = tile.URI
		n.Bounds = tile.Bounds

		// Link the chain of prefixes up to the first one already linked.
		child := idx
		for a := tile.Address; a.Depth > 0; {
			a = a.Parent()
			_, existed := lt.index[keyOf(a)]
			parent := get(a)
			t.addChild(parent, child)
			if existed {
				break
			}
			child = parent
		}
	}

	for _, idx := range lt.index {
		children := t.Nodes[idx].Children
		sort.Slice(children, func(i, j int) bool {
			return t.Nodes[children[i]].Address.Path < t.Nodes[children[j]].Address.Path
		})
	}
	return lt, nil
}

func (t *Tree) addChild(parent, child int) {
	for _, c := range t.Nodes[parent].Children {
		if c == child {
			return
		}
	}
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, child)
}

// stitch hangs the nodes of fine below the nodes of coarse covering them.
// A fine node goes below the coarse node at its own address when that node
// has content, or when the fine node is a leaf; otherwise its children are
// matched further down. Fine nodes where coarse has no node go below the
// deepest coarse ancestor.
func (t *Tree) stitch(coarse, fine *levelTree) {
	stack := []int{fine.root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn := &t.Nodes[f]

		c, ok := coarse.index[keyOf(fn.Address)]
		switch {
		case ok && (t.Nodes[c].Content != "" || len(fn.Children) == 0):
			if t.Nodes[c].Content == "" && len(t.Nodes[c].Children) > 0 {
				t.Overlaps = append(t.Overlaps, Overlap{LOD: fn.LOD, Address: fn.Address})
			}
			t.addChild(c, f)
		case ok:
			// Fine internal nodes carry nothing; descend into their children.
			for i := len(fn.Children) - 1; i >= 0; i-- {
				stack = append(stack, fn.Children[i])
			}
		default:
			a := fn.Address
			for {
				a = a.Parent()
				if idx, found := coarse.index[keyOf(a)]; found {
					t.addChild(idx, f)
					break
				}
			}
		}
	}
}

// aggregate computes bounds and geometric error bottom-up with an explicit
// post-order traversal.
func (t *Tree) aggregate(threshold float64) {
	type frame struct {
		node    int
		visited bool
	}
	stack := []frame{{node: t.Root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.Nodes[f.node]

		if !f.visited {
			stack = append(stack, frame{node: f.node, visited: true})
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: n.Children[i]})
			}
			continue
		}

		var maxChild float64
		for _, c := range n.Children {
			n.Bounds = n.Bounds.ExpandByBox(t.Nodes[c].Bounds)
			maxChild = math.Max(maxChild, t.Nodes[c].Error)
		}
		switch {
		case len(n.Children) == 0:
			n.Error = math.Max(ExtentError(n.Bounds), threshold)
		case maxChild > 0:
			n.Error = maxChild * 2
		default:
			n.Error = ExtentError(n.Bounds)
		}
	}
}

// ExtentError is the geometric error of a box: its largest extent over 20.
func ExtentError(b pmath.Box3) float64 {
	if b.IsEmpty() {
		return 0
	}
	return b.MaxExtent() / 20
}

// Walk visits every node reachable from the root in pre-order together with
// its parent index (-1 for the root).
func (t *Tree) Walk(fn func(idx, parent int)) {
	type frame struct{ node, parent int }
	stack := []frame{{node: t.Root, parent: -1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(f.node, f.parent)
		children := t.Nodes[f.node].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], parent: f.node})
		}
	}
}
