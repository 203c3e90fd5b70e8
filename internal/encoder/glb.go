package encoder

import (
	"fmt"
	"math"

	"github.com/Faultbox/meshtiler/internal/atlas"
	"github.com/Faultbox/meshtiler/pkg/formats"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// DefaultGenerator is written into asset.generator.
const DefaultGenerator = "meshtiler"

// GLBOptions controls optional glTF content.
type GLBOptions struct {
	Generator string
	// BatchID adds a _BATCHID attribute assigning every vertex to feature 0.
	BatchID bool
	// Offset is subtracted from every position.
	Offset pmath.Vec3
}

type vertexKey struct {
	pos    [3]float32
	normal [3]float32
	uv     [2]float32
}

// primitive is the index list of one material group.
type primitive struct {
	material int
	indices  []uint32
}

// indexed is a leaf's deduplicated vertex data.
type indexed struct {
	keys   []vertexKey
	prims  []primitive
	hasUV  bool
	minPos [3]float32
	maxPos [3]float32
}

// indexTriangles welds identical vertices and groups triangles by material in
// first-use order. Out-of-range materials fall into the -1 group.
func indexTriangles(tris []mesh.Triangle, nMaterials int, offset pmath.Vec3) *indexed {
	ix := &indexed{}
	lookup := make(map[vertexKey]uint32, len(tris)*2)
	group := make(map[int]int)

	for i := range tris {
		t := &tris[i]
		if t.HasUV {
			ix.hasUV = true
		}
	}

	for i := range tris {
		t := &tris[i]
		m := t.Material
		if m < 0 || m >= nMaterials {
			m = -1
		}
		g, ok := group[m]
		if !ok {
			g = len(ix.prims)
			group[m] = g
			ix.prims = append(ix.prims, primitive{material: m})
		}

		face := t.FaceNormal()
		for j := 0; j < 3; j++ {
			v := t.V[j]
			n := face
			if t.HasNormal {
				n = v.Normal
			}
			p := v.Position.Sub(offset)
			k := vertexKey{
				pos:    [3]float32{float32(p.X), float32(p.Y), float32(p.Z)},
				normal: [3]float32{float32(n.X), float32(n.Y), float32(n.Z)},
			}
			if ix.hasUV {
				k.uv = [2]float32{float32(v.UV.X), float32(v.UV.Y)}
			}
			idx, ok := lookup[k]
			if !ok {
				idx = uint32(len(ix.keys))
				lookup[k] = idx
				ix.keys = append(ix.keys, k)
			}
			ix.prims[g].indices = append(ix.prims[g].indices, idx)
		}
	}

	for i, k := range ix.keys {
		for c := 0; c < 3; c++ {
			if i == 0 || k.pos[c] < ix.minPos[c] {
				ix.minPos[c] = k.pos[c]
			}
			if i == 0 || k.pos[c] > ix.maxPos[c] {
				ix.maxPos[c] = k.pos[c]
			}
		}
	}
	return ix
}

// builder accumulates the glTF document and its single binary buffer.
type builder struct {
	doc    formats.Document
	bin    []byte
	images map[*mesh.Texture]int
	ext    map[string]bool
}

func (b *builder) addView(data []byte, target int) int {
	for len(b.bin)%4 != 0 {
		b.bin = append(b.bin, 0)
	}
	b.doc.BufferViews = append(b.doc.BufferViews, formats.BufferView{
		Buffer:     0,
		ByteOffset: len(b.bin),
		ByteLength: len(data),
		Target:     target,
	})
	b.bin = append(b.bin, data...)
	return len(b.doc.BufferViews) - 1
}

func (b *builder) addAccessor(a formats.Accessor) int {
	b.doc.Accessors = append(b.doc.Accessors, a)
	return len(b.doc.Accessors) - 1
}

func (b *builder) useExtension(name string, required bool) {
	if b.ext[name] {
		return
	}
	b.ext[name] = true
	b.doc.ExtensionsUsed = append(b.doc.ExtensionsUsed, name)
	if required {
		b.doc.ExtensionsRequired = append(b.doc.ExtensionsRequired, name)
	}
}

// addTexture embeds tex once and returns its glTF texture index.
func (b *builder) addTexture(tex *mesh.Texture) (int, error) {
	if idx, ok := b.images[tex]; ok {
		return idx, nil
	}
	mime := atlas.MIMEOf(atlas.Sniff(tex))
	if mime == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedImage, tex.Name)
	}
	if len(b.doc.Samplers) == 0 {
		b.doc.Samplers = append(b.doc.Samplers, formats.Sampler{
			MagFilter: formats.FilterLinear,
			MinFilter: formats.FilterNearestMipmapLinear,
			WrapS:     formats.WrapRepeat,
			WrapT:     formats.WrapRepeat,
		})
	}

	view := b.addView(tex.Data, 0)
	b.doc.Images = append(b.doc.Images, formats.Image{BufferView: view, MimeType: mime})
	source := len(b.doc.Images) - 1
	sampler := 0

	t := formats.Texture{Sampler: &sampler}
	if mime == atlas.MIMEWebP {
		t.Extensions = map[string]interface{}{
			formats.ExtTextureWebP: map[string]int{"source": source},
		}
		b.useExtension(formats.ExtTextureWebP, true)
	} else {
		t.Source = &source
	}
	b.doc.Textures = append(b.doc.Textures, t)
	idx := len(b.doc.Textures) - 1
	b.images[tex] = idx
	return idx, nil
}

func (b *builder) addMaterial(m mesh.Material) (int, error) {
	gm := formats.Material{
		Name: m.Name,
		PBRMetallicRoughness: formats.PBRMetallicRoughness{
			MetallicFactor:  0,
			RoughnessFactor: 1,
		},
		Extensions: map[string]interface{}{formats.ExtMaterialsUnlit: struct{}{}},
	}
	b.useExtension(formats.ExtMaterialsUnlit, false)

	if m.Texture != nil {
		idx, err := b.addTexture(m.Texture)
		if err != nil {
			return 0, err
		}
		gm.PBRMetallicRoughness.BaseColorTexture = &formats.TextureRef{Index: idx}
	} else {
		c := m.Diffuse
		gm.PBRMetallicRoughness.BaseColorFactor = []float32{c[0], c[1], c[2], c[3]}
	}
	b.doc.Materials = append(b.doc.Materials, gm)
	return len(b.doc.Materials) - 1, nil
}

// BuildGLB encodes triangles and their material table as a binary glTF with
// one primitive per referenced material.
func BuildGLB(tris []mesh.Triangle, mats []mesh.Material, opts GLBOptions) ([]byte, error) {
	if len(tris) == 0 {
		return nil, ErrEmptyTile
	}
	generator := opts.Generator
	if generator == "" {
		generator = DefaultGenerator
	}

	ix := indexTriangles(tris, len(mats), opts.Offset)
	b := &builder{
		images: make(map[*mesh.Texture]int),
		ext:    make(map[string]bool),
	}
	b.doc.Asset = formats.Asset{Version: "2.0", Generator: generator}

	n := len(ix.keys)
	pos := make([]byte, 0, n*12)
	nrm := make([]byte, 0, n*12)
	var uv []byte
	for _, k := range ix.keys {
		pos = appendFloats(pos, k.pos[:]...)
		nrm = appendFloats(nrm, k.normal[:]...)
		if ix.hasUV {
			uv = appendFloats(uv, k.uv[:]...)
		}
	}

	attrs := map[string]int{
		"POSITION": b.addAccessor(formats.Accessor{
			BufferView:    b.addView(pos, formats.TargetArrayBuffer),
			ComponentType: formats.ComponentFloat,
			Count:         n,
			Type:          "VEC3",
			Min:           widen(ix.minPos),
			Max:           widen(ix.maxPos),
		}),
		"NORMAL": b.addAccessor(formats.Accessor{
			BufferView:    b.addView(nrm, formats.TargetArrayBuffer),
			ComponentType: formats.ComponentFloat,
			Count:         n,
			Type:          "VEC3",
		}),
	}
	if ix.hasUV {
		attrs["TEXCOORD_0"] = b.addAccessor(formats.Accessor{
			BufferView:    b.addView(uv, formats.TargetArrayBuffer),
			ComponentType: formats.ComponentFloat,
			Count:         n,
			Type:          "VEC2",
		})
	}
	if opts.BatchID {
		attrs["_BATCHID"] = b.addAccessor(formats.Accessor{
			BufferView:    b.addView(make([]byte, n*4), formats.TargetArrayBuffer),
			ComponentType: formats.ComponentFloat,
			Count:         n,
			Type:          "SCALAR",
		})
	}

	gmesh := formats.Mesh{Name: "mesh_0"}
	for _, p := range ix.prims {
		m := mesh.DefaultMaterial()
		if p.material >= 0 {
			m = mats[p.material]
		}
		mi, err := b.addMaterial(m)
		if err != nil {
			return nil, err
		}

		var maxIndex uint32
		for _, v := range p.indices {
			if v > maxIndex {
				maxIndex = v
			}
		}
		ct := formats.IndexComponentType(int(maxIndex))
		acc := b.addAccessor(formats.Accessor{
			BufferView:    b.addView(encodeIndices(p.indices, ct), formats.TargetElementArrayBuffer),
			ComponentType: ct,
			Count:         len(p.indices),
			Type:          "SCALAR",
		})

		prim := formats.Primitive{
			Attributes: attrs,
			Indices:    &acc,
			Material:   &mi,
			Mode:       formats.ModeTriangles,
		}
		gmesh.Primitives = append(gmesh.Primitives, prim)
	}

	meshIndex := 0
	b.doc.Meshes = []formats.Mesh{gmesh}
	b.doc.Nodes = []formats.Node{{Mesh: &meshIndex}}
	b.doc.Scenes = []formats.Scene{{Nodes: []int{0}}}
	b.doc.Buffers = []formats.Buffer{{ByteLength: len(b.bin)}}

	return formats.EncodeGLB(&b.doc, b.bin)
}

func appendFloats(dst []byte, fs ...float32) []byte {
	for _, f := range fs {
		bits := math.Float32bits(f)
		dst = append(dst, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	return dst
}

func encodeIndices(indices []uint32, componentType int) []byte {
	size := formats.ComponentSize(componentType)
	out := make([]byte, 0, len(indices)*size)
	for _, v := range indices {
		switch componentType {
		case formats.ComponentUnsignedByte:
			out = append(out, byte(v))
		case formats.ComponentUnsignedShort:
			out = append(out, byte(v), byte(v>>8))
		default:
			out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		}
	}
	return out
}

func widen(v [3]float32) []float64 {
	return []float64{float64(v[0]), float64(v[1]), float64(v[2])}
}
