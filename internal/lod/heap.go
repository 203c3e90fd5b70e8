package lod

// collapse is a candidate edge contraction of b into a.
type collapse struct {
	cost   float64
	seq    int
	a, b   int
	stampA int
	stampB int
}

// collapseHeap orders candidates by cost, then by the order they were queued.
type collapseHeap []*collapse

func (h collapseHeap) Len() int { return len(h) }
func (h collapseHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].seq < h[j].seq
}
func (h collapseHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *collapseHeap) Push(x interface{}) {
	*h = append(*h, x.(*collapse))
}

func (h *collapseHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return c
}
