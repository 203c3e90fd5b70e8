package encoder

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshtiler/pkg/formats"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

func unitBox() *mesh.Mesh {
	return mesh.Box(pmath.Vec3{}, pmath.Vec3{X: 1, Y: 2, Z: 3})
}

func pngTexture(t *testing.T) *mesh.Texture {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return &mesh.Texture{Name: "wall.png", MIME: "image/png", Data: buf.Bytes()}
}

func TestBuildGLB_Box(t *testing.T) {
	m := unitBox()
	data, err := BuildGLB(m.Triangles, m.Materials, GLBOptions{})
	require.NoError(t, err)

	glb, err := formats.ParseGLB(data)
	require.NoError(t, err)
	doc := glb.Document

	assert.Equal(t, "2.0", doc.Asset.Version)
	assert.Equal(t, DefaultGenerator, doc.Asset.Generator)
	require.Len(t, doc.Meshes, 1)
	require.Len(t, doc.Meshes[0].Primitives, 1)

	prim := doc.Meshes[0].Primitives[0]
	assert.Equal(t, formats.ModeTriangles, prim.Mode)
	assert.Contains(t, prim.Attributes, "NORMAL")
	assert.Contains(t, prim.Attributes, "TEXCOORD_0")
	assert.NotContains(t, prim.Attributes, "_BATCHID")

	posAcc := doc.Accessors[prim.Attributes["POSITION"]]
	assert.Equal(t, 24, posAcc.Count, "4 unique vertices per face")
	assert.Equal(t, []float64{0, 0, 0}, posAcc.Min)
	assert.Equal(t, []float64{1, 2, 3}, posAcc.Max)

	idx, err := glb.Indices(*prim.Indices)
	require.NoError(t, err)
	assert.Len(t, idx, 36)
	assert.Equal(t, formats.ComponentUnsignedByte, doc.Accessors[*prim.Indices].ComponentType)

	for i, bv := range doc.BufferViews {
		assert.Zero(t, bv.ByteOffset%4, "buffer view %d offset", i)
	}

	require.Len(t, doc.Materials, 1)
	mat := doc.Materials[0]
	assert.Equal(t, float32(0), mat.PBRMetallicRoughness.MetallicFactor)
	assert.Equal(t, float32(1), mat.PBRMetallicRoughness.RoughnessFactor)
	assert.Equal(t, []float32{1, 1, 1, 1}, mat.PBRMetallicRoughness.BaseColorFactor)
	assert.Contains(t, mat.Extensions, formats.ExtMaterialsUnlit)
	assert.Contains(t, doc.ExtensionsUsed, formats.ExtMaterialsUnlit)
}

func TestBuildGLB_IndexWidth(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{"byte", 4, formats.ComponentUnsignedByte},
		{"byte limit", 14, formats.ComponentUnsignedByte},    // max index 224
		{"restart byte", 15, formats.ComponentUnsignedShort}, // max index 255
		{"short", 20, formats.ComponentUnsignedShort},
		{"restart short", 255, formats.ComponentUnsignedInt}, // max index 65535
		{"int", 256, formats.ComponentUnsignedInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mesh.Grid(tt.n, tt.n)
			data, err := BuildGLB(m.Triangles, m.Materials, GLBOptions{})
			require.NoError(t, err)
			glb, err := formats.ParseGLB(data)
			require.NoError(t, err)

			prim := glb.Document.Meshes[0].Primitives[0]
			assert.Equal(t, tt.want, glb.Document.Accessors[*prim.Indices].ComponentType)
			assert.Equal(t, (tt.n+1)*(tt.n+1), glb.Document.Accessors[prim.Attributes["POSITION"]].Count)
		})
	}
}

func TestBuildGLB_PrimitivePerMaterial(t *testing.T) {
	m := unitBox()
	tex := pngTexture(t)
	mats := []mesh.Material{
		{Name: "red", Diffuse: [4]float32{1, 0, 0, 1}},
		{Name: "wall", Diffuse: [4]float32{1, 1, 1, 1}, Texture: tex},
	}
	for i := range m.Triangles {
		m.Triangles[i].Material = i % 2
	}
	// Triangle 3 reuses the texture through a second material.
	mats = append(mats, mesh.Material{Name: "wall2", Texture: tex})
	m.Triangles[3].Material = 2

	data, err := BuildGLB(m.Triangles, mats, GLBOptions{})
	require.NoError(t, err)
	glb, err := formats.ParseGLB(data)
	require.NoError(t, err)
	doc := glb.Document

	require.Len(t, doc.Meshes[0].Primitives, 3)
	require.Len(t, doc.Materials, 3)
	assert.Len(t, doc.Images, 1, "shared texture embedded once")
	require.Len(t, doc.Samplers, 1)
	assert.Equal(t, formats.FilterLinear, doc.Samplers[0].MagFilter)
	assert.Equal(t, formats.FilterNearestMipmapLinear, doc.Samplers[0].MinFilter)
	assert.Equal(t, formats.WrapRepeat, doc.Samplers[0].WrapS)
	assert.Equal(t, "image/png", doc.Images[0].MimeType)

	require.NotNil(t, doc.Materials[1].PBRMetallicRoughness.BaseColorTexture)
	assert.Nil(t, doc.Materials[0].PBRMetallicRoughness.BaseColorTexture)
	assert.Equal(t, []float32{1, 0, 0, 1}, doc.Materials[0].PBRMetallicRoughness.BaseColorFactor)

	total := 0
	for _, p := range doc.Meshes[0].Primitives {
		total += doc.Accessors[*p.Indices].Count
	}
	assert.Equal(t, 36, total)
}

func TestBuildGLB_Errors(t *testing.T) {
	_, err := BuildGLB(nil, nil, GLBOptions{})
	assert.ErrorIs(t, err, ErrEmptyTile)

	m := unitBox()
	mats := []mesh.Material{{Name: "tga", Texture: &mesh.Texture{Name: "wall.tga", Data: []byte{0, 0, 2}}}}
	_, err = BuildGLB(m.Triangles, mats, GLBOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestEncode_Formats(t *testing.T) {
	m := unitBox()

	tests := []struct {
		format formats.OutputFormat
		magic  string
	}{
		{formats.FormatB3DM, "b3dm"},
		{formats.FormatGLTF, "glTF"},
		{formats.FormatI3DM, "i3dm"},
		{formats.FormatPNTS, "pnts"},
		{formats.FormatCMPT, "cmpt"},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			data, err := New(Options{Format: tt.format}).Encode(Tile{Triangles: m.Triangles, Materials: m.Materials})
			require.NoError(t, err)
			assert.Equal(t, tt.magic, formats.Magic(data))
		})
	}
}

func TestEncode_B3DM(t *testing.T) {
	m := unitBox()
	data, err := New(Options{Format: formats.FormatB3DM}).Encode(Tile{Triangles: m.Triangles, Materials: m.Materials})
	require.NoError(t, err)

	tile, err := formats.ParseB3DM(data)
	require.NoError(t, err)
	assert.Equal(t, 1, tile.BatchLength)
	assert.Zero(t, (formats.B3DMHeaderSize+len(tile.FeatureTableJSON))%8)
	assert.Zero(t, len(tile.BatchTableJSON)%8)

	bt, err := tile.BatchTable()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, bt.BatchID)
	assert.Equal(t, []string{"mesh_0"}, bt.Name)

	glb, err := formats.ParseGLB(tile.GLB)
	require.NoError(t, err)
	assert.Contains(t, glb.Document.Meshes[0].Primitives[0].Attributes, "_BATCHID")
}

func TestEncode_I3DMCentersModel(t *testing.T) {
	m := mesh.Box(pmath.Vec3{X: 10, Y: 10, Z: 10}, pmath.Vec3{X: 12, Y: 14, Z: 16})
	data, err := New(Options{Format: formats.FormatI3DM}).Encode(Tile{Triangles: m.Triangles, Materials: m.Materials})
	require.NoError(t, err)

	tile, err := formats.ParseI3DM(data)
	require.NoError(t, err)
	assert.Equal(t, 1, tile.InstancesLength)
	assert.Equal(t, []float64{11, 12, 13}, tile.RTCCenter)

	glb, err := formats.ParseGLB(tile.GLB)
	require.NoError(t, err)
	pos := glb.Document.Accessors[glb.Document.Meshes[0].Primitives[0].Attributes["POSITION"]]
	assert.Equal(t, []float64{-1, -2, -3}, pos.Min)
	assert.Equal(t, []float64{1, 2, 3}, pos.Max)
}

func TestEncode_PNTSUniqueVertices(t *testing.T) {
	m := unitBox()
	m.Materials[0].Diffuse = [4]float32{0, 1, 0, 1}
	data, err := New(Options{Format: formats.FormatPNTS}).Encode(Tile{Triangles: m.Triangles, Materials: m.Materials})
	require.NoError(t, err)

	tile, err := formats.ParsePNTS(data)
	require.NoError(t, err)
	assert.Equal(t, 8, tile.PointsLength, "box corners")
	assert.Equal(t, [3]uint8{0, 255, 0}, tile.Points[0].Color)
}

func TestEncode_CMPTOneTilePerMaterial(t *testing.T) {
	m := unitBox()
	mats := []mesh.Material{mesh.DefaultMaterial(), {Name: "blue", Diffuse: [4]float32{0, 0, 1, 1}}}
	for i := range m.Triangles {
		if i >= 6 {
			m.Triangles[i].Material = 1
		}
	}
	data, err := New(Options{Format: formats.FormatCMPT}).Encode(Tile{Triangles: m.Triangles, Materials: mats})
	require.NoError(t, err)

	inner, err := formats.ParseCMPT(data)
	require.NoError(t, err)
	require.Len(t, inner, 2)
	for _, b := range inner {
		tile, err := formats.ParseB3DM(b)
		require.NoError(t, err)
		assert.Equal(t, 1, tile.BatchLength)
	}
	// Input triangles keep their material indices.
	assert.Equal(t, 1, m.Triangles[6].Material)
}

func TestEncode_Errors(t *testing.T) {
	m := unitBox()

	_, err := New(Options{Format: formats.FormatB3DM}).Encode(Tile{})
	assert.True(t, errors.Is(err, ErrEmptyTile))

	_, err = New(Options{Format: formats.OutputFormat(42)}).Encode(Tile{Triangles: m.Triangles})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
