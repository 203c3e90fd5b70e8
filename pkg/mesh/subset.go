package mesh

// Subset is the part of a mesh's material table referenced by a set of
// triangles. Materials holds copies in first-reference order; Origin maps
// each local index back to the source table.
type Subset struct {
	Materials []Material
	Origin    []int
}

// BuildSubset remaps tris in place so their Material fields index a fresh
// table containing only the materials they reference. Triangles with no
// material keep -1.
func BuildSubset(tris []Triangle, table []Material) Subset {
	var s Subset
	remap := make(map[int]int)
	for i := range tris {
		src := tris[i].Material
		if src < 0 || src >= len(table) {
			tris[i].Material = -1
			continue
		}
		dst, ok := remap[src]
		if !ok {
			dst = len(s.Materials)
			remap[src] = dst
			s.Materials = append(s.Materials, table[src])
			s.Origin = append(s.Origin, src)
		}
		tris[i].Material = dst
	}
	return s
}
