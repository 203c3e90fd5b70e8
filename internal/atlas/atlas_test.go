package atlas

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	green = color.RGBA{0, 255, 0, 255}
)

// halves returns a PNG texture whose left half is left and right half is right.
func halves(t *testing.T, name string, w, h int, left, right color.RGBA) *mesh.Texture {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &mesh.Texture{Name: name, MIME: MIMEPNG, Data: buf.Bytes()}
}

func uvTri(mat int, a, b, c pmath.Vec2) mesh.Triangle {
	return mesh.Triangle{
		V: [3]mesh.Vertex{
			{Position: pmath.Vec3{X: a.X, Y: a.Y}, UV: a},
			{Position: pmath.Vec3{X: b.X, Y: b.Y}, UV: b},
			{Position: pmath.Vec3{X: c.X, Y: c.Y}, UV: c},
		},
		Material: mat,
		HasUV:    true,
	}
}

func sample(t *testing.T, tex *mesh.Texture, uv pmath.Vec2) color.RGBA {
	t.Helper()
	img, err := Decode(tex)
	require.NoError(t, err)
	b := img.Bounds()
	x := b.Min.X + int(uv.X*float64(b.Dx()))
	y := b.Min.Y + int(uv.Y*float64(b.Dy()))
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func centroid(tr mesh.Triangle) pmath.Vec2 {
	return tr.V[0].UV.Add(tr.V[1].UV).Add(tr.V[2].UV).Scale(1.0 / 3)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
		ok   bool
	}{
		{"0", KeepOriginal, true},
		{"3", RepackCompressed, true},
		{"repack", Repack, true},
		{"KeepOriginal", KeepOriginal, true},
		{"repack-compressed", RepackCompressed, true},
		{"7", 0, false},
		{"shrink", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		tex  mesh.Texture
		want string
	}{
		{"png", mesh.Texture{Data: []byte("\x89PNG\r\n\x1a\n....")}, FormatPNG},
		{"jpeg", mesh.Texture{Data: []byte{0xff, 0xd8, 0xff, 0xe0}}, FormatJPEG},
		{"gif", mesh.Texture{Data: []byte("GIF89a")}, FormatGIF},
		{"bmp", mesh.Texture{Data: []byte("BM\x00\x00")}, FormatBMP},
		{"webp", mesh.Texture{Data: []byte("RIFF\x00\x00\x00\x00WEBPVP8L")}, FormatWebP},
		{"tga by extension", mesh.Texture{Name: "wall.TGA", Data: []byte{0, 0, 2}}, FormatTGA},
		{"unknown", mesh.Texture{Name: "x.dds", Data: []byte("DDS ")}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(&tt.tex))
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode(&mesh.Texture{Name: "x.dds", Data: []byte("DDS ")})
	assert.ErrorIs(t, err, ErrUnsupportedTexture)
}

func TestShelfLayout(t *testing.T) {
	origins, size := shelfLayout([]image.Point{{10, 10}, {10, 5}, {20, 4}})

	assert.Equal(t, image.Pt(32, 16), size)
	assert.Equal(t, []image.Point{{0, 0}, {10, 0}, {0, 10}}, origins)
	assert.Equal(t, 1, nextPow2(0))
	assert.Equal(t, 64, nextPow2(33))
}

func TestKeepOriginal(t *testing.T) {
	tex := halves(t, "a.png", 8, 8, red, blue)
	mats := []mesh.Material{{Name: "a", Texture: tex}}
	tris := []mesh.Triangle{uvTri(0, pmath.Vec2{}, pmath.Vec2{X: 1}, pmath.Vec2{Y: 1})}

	out, err := NewPacker(Options{Strategy: KeepOriginal}, nil).Pack(tris, mats)

	require.NoError(t, err)
	assert.Same(t, tex, out.Materials[0].Texture)
	assert.Equal(t, tris, out.Triangles)
}

func TestCompress(t *testing.T) {
	tex := halves(t, "a.png", 16, 16, red, blue)
	mats := []mesh.Material{{Name: "a", Texture: tex}}
	tris := []mesh.Triangle{uvTri(0, pmath.Vec2{}, pmath.Vec2{X: 1}, pmath.Vec2{Y: 1})}

	out, err := NewPacker(Options{Strategy: Compress}, nil).Pack(tris, mats)

	require.NoError(t, err)
	assert.Equal(t, MIMEJPEG, out.Materials[0].Texture.MIME)
	assert.Equal(t, FormatJPEG, Sniff(out.Materials[0].Texture))
	assert.Same(t, tex, mats[0].Texture, "input materials must not change")
}

func TestRepack(t *testing.T) {
	texA := halves(t, "a.png", 64, 64, red, blue)
	texB := halves(t, "b.png", 32, 32, green, green)
	mats := []mesh.Material{
		{Name: "a", Texture: texA},
		{Name: "plain", Diffuse: [4]float32{1, 1, 1, 1}},
		{Name: "b", Texture: texB},
	}
	tris := []mesh.Triangle{
		// Red quarter of texture a only.
		uvTri(0, pmath.Vec2{X: 0.1, Y: 0.1}, pmath.Vec2{X: 0.4, Y: 0.1}, pmath.Vec2{X: 0.1, Y: 0.4}),
		uvTri(2, pmath.Vec2{X: 0.2, Y: 0.2}, pmath.Vec2{X: 0.8, Y: 0.2}, pmath.Vec2{X: 0.2, Y: 0.8}),
		uvTri(1, pmath.Vec2{}, pmath.Vec2{X: 1}, pmath.Vec2{Y: 1}),
	}

	out, err := NewPacker(Options{Strategy: Repack}, nil).Pack(tris, mats)
	require.NoError(t, err)

	// The two textured materials merge into one atlas; the plain material stays.
	require.Len(t, out.Materials, 2)
	assert.Equal(t, "atlas", out.Materials[0].Name)
	assert.Equal(t, "plain", out.Materials[1].Name)
	atlasTex := out.Materials[0].Texture
	assert.Equal(t, MIMEPNG, atlasTex.MIME)

	img, err := Decode(atlasTex)
	require.NoError(t, err)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	assert.Equal(t, w, nextPow2(w))
	assert.Equal(t, h, nextPow2(h))
	assert.Less(t, w*h, 64*64+32*32, "atlas should be smaller than both sources")

	assert.Equal(t, 0, out.Triangles[0].Material)
	assert.Equal(t, 0, out.Triangles[1].Material)
	assert.Equal(t, 1, out.Triangles[2].Material)
	for _, tr := range out.Triangles[:2] {
		for j := 0; j < 3; j++ {
			uv := tr.V[j].UV
			assert.True(t, uv.X >= 0 && uv.X <= 1 && uv.Y >= 0 && uv.Y <= 1, "uv %v outside atlas", uv)
		}
	}
	assert.Equal(t, red, sample(t, atlasTex, centroid(out.Triangles[0])))
	assert.Equal(t, green, sample(t, atlasTex, centroid(out.Triangles[1])))

	// Plain triangle and inputs untouched.
	assert.Equal(t, tris[2].V, out.Triangles[2].V)
	assert.Equal(t, 0.1, tris[0].V[0].UV.X)
}

func TestRepackDeterministic(t *testing.T) {
	texA := halves(t, "a.png", 64, 64, red, blue)
	mats := []mesh.Material{{Name: "a", Texture: texA}}
	tris := []mesh.Triangle{
		uvTri(0, pmath.Vec2{X: 0.6, Y: 0.1}, pmath.Vec2{X: 0.9, Y: 0.1}, pmath.Vec2{X: 0.6, Y: 0.5}),
	}

	p := NewPacker(Options{Strategy: Repack}, nil)
	a, err := p.Pack(tris, mats)
	require.NoError(t, err)
	b, err := p.Pack(tris, mats)
	require.NoError(t, err)

	assert.Equal(t, a.Materials[0].Texture.Data, b.Materials[0].Texture.Data)
	assert.Equal(t, blue, sample(t, a.Materials[0].Texture, centroid(a.Triangles[0])))

	hits, misses := p.cache.Stats()
	assert.Equal(t, 1, misses)
	assert.Equal(t, 1, hits)
}

func TestRepackWrappedUVKeepsTexture(t *testing.T) {
	tex := halves(t, "a.png", 8, 8, red, blue)
	mats := []mesh.Material{{Name: "a", Texture: tex}}
	tris := []mesh.Triangle{uvTri(0, pmath.Vec2{}, pmath.Vec2{X: 3}, pmath.Vec2{Y: 2})}

	out, err := NewPacker(Options{Strategy: Repack}, nil).Pack(tris, mats)

	require.NoError(t, err)
	require.Len(t, out.Materials, 1)
	assert.Same(t, tex, out.Materials[0].Texture)
	assert.Equal(t, tris[0].V, out.Triangles[0].V)
}

func TestRepackCompressedAndMaxSize(t *testing.T) {
	tex := halves(t, "a.png", 64, 64, red, blue)
	mats := []mesh.Material{{Name: "a", Texture: tex}}
	tris := []mesh.Triangle{uvTri(0, pmath.Vec2{}, pmath.Vec2{X: 1}, pmath.Vec2{Y: 1})}

	out, err := NewPacker(Options{Strategy: RepackCompressed, MaxSize: 16}, nil).Pack(tris, mats)

	require.NoError(t, err)
	assert.Equal(t, MIMEJPEG, out.Materials[0].Texture.MIME)
	img, err := Decode(out.Materials[0].Texture)
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 16)
	assert.LessOrEqual(t, img.Bounds().Dy(), 16)
}

func TestRepackWebP(t *testing.T) {
	tex := halves(t, "a.png", 16, 16, red, blue)
	mats := []mesh.Material{{Name: "a", Texture: tex}}
	tris := []mesh.Triangle{uvTri(0, pmath.Vec2{X: 0.1, Y: 0.1}, pmath.Vec2{X: 0.4, Y: 0.1}, pmath.Vec2{X: 0.1, Y: 0.4})}

	out, err := NewPacker(Options{Strategy: Repack, Encoding: FormatWebP}, nil).Pack(tris, mats)

	require.NoError(t, err)
	assert.Equal(t, MIMEWebP, out.Materials[0].Texture.MIME)
	assert.Equal(t, red, sample(t, out.Materials[0].Texture, centroid(out.Triangles[0])))
}

func TestUnsupportedTextureFails(t *testing.T) {
	mats := []mesh.Material{{Name: "a", Texture: &mesh.Texture{Name: "a.dds", Data: []byte("DDS ")}}}
	tris := []mesh.Triangle{uvTri(0, pmath.Vec2{}, pmath.Vec2{X: 1}, pmath.Vec2{Y: 1})}

	_, err := NewPacker(Options{Strategy: Repack}, nil).Pack(tris, mats)
	assert.ErrorIs(t, err, ErrUnsupportedTexture)
}
