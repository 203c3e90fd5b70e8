// Package atlas processes the textures referenced by a leaf tile: passing
// them through, re-encoding them, or cropping the referenced regions into a
// single power-of-two atlas with remapped texture coordinates.
package atlas

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/HugoSmits86/nativewebp"
	"github.com/anthonynsimon/bild/transform"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// Gutter is the number of pixels kept around each cropped region so that
// texture filtering does not bleed neighbouring regions into each other.
const Gutter = 2

// uvTolerance allows UVs that sit a hair outside [0,1] from clipping arithmetic.
const uvTolerance = 1e-6

// Options controls packing.
type Options struct {
	Strategy    Strategy
	JPEGQuality int
	// Encoding is "png" (default) or "webp" for losslessly encoded atlases.
	Encoding string
	// MaxSize caps the atlas edge; larger atlases are downscaled. 0 disables.
	MaxSize int
	Logger  *zap.Logger
}

// Packer applies a Strategy to leaf tiles. A Packer is safe for concurrent use.
type Packer struct {
	opts  Options
	cache *Cache
	log   *zap.Logger
}

// NewPacker creates a packer. cache may be shared across packers of one task.
func NewPacker(opts Options, cache *Cache) *Packer {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 75
	}
	if cache == nil {
		cache = NewCache()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Packer{opts: opts, cache: cache, log: log}
}

// Packed is a leaf's geometry and materials after texture processing.
type Packed struct {
	Triangles []mesh.Triangle
	Materials []mesh.Material
}

// Pack processes the textures of one leaf. The inputs are not modified.
func (p *Packer) Pack(tris []mesh.Triangle, mats []mesh.Material) (*Packed, error) {
	switch {
	case p.opts.Strategy == KeepOriginal:
		return &Packed{Triangles: tris, Materials: mats}, nil
	case p.opts.Strategy.repacks():
		return p.repack(tris, mats)
	default:
		out := make([]mesh.Material, len(mats))
		copy(out, mats)
		for i := range out {
			if out[i].Texture == nil {
				continue
			}
			tex, err := p.recompress(out[i].Texture)
			if err != nil {
				return nil, err
			}
			out[i].Texture = tex
		}
		return &Packed{Triangles: tris, Materials: out}, nil
	}
}

func (p *Packer) recompress(tex *mesh.Texture) (*mesh.Texture, error) {
	img, err := p.cache.Decode(tex)
	if err != nil {
		return nil, err
	}
	return p.encodeJPEG(tex.Name, img)
}

func (p *Packer) encodeJPEG(name string, img image.Image) (*mesh.Texture, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding %s as jpeg: %w", name, err)
	}
	return &mesh.Texture{Name: name, MIME: MIMEJPEG, Data: buf.Bytes()}, nil
}

type region struct {
	material int
	src      image.Rectangle // pixels in the source texture
	size     image.Point     // source texture size
	img      image.Image
}

func (p *Packer) repack(tris []mesh.Triangle, mats []mesh.Material) (*Packed, error) {
	// Collect textured materials in first-use order with their UV bounds.
	type uvBounds struct {
		min, max pmath.Vec2
		repack   bool
	}
	bounds := make(map[int]*uvBounds)
	var order []int
	for i := range tris {
		mi := tris[i].Material
		if mi < 0 || mi >= len(mats) || mats[mi].Texture == nil {
			continue
		}
		b, ok := bounds[mi]
		if !ok {
			inf := math.Inf(1)
			b = &uvBounds{min: pmath.Vec2{X: inf, Y: inf}, max: pmath.Vec2{X: -inf, Y: -inf}, repack: true}
			bounds[mi] = b
			order = append(order, mi)
		}
		if !tris[i].HasUV {
			b.repack = false
			continue
		}
		for j := 0; j < 3; j++ {
			uv := tris[i].V[j].UV
			if uv.X < -uvTolerance || uv.X > 1+uvTolerance || uv.Y < -uvTolerance || uv.Y > 1+uvTolerance {
				// Wrapped coordinates need the whole texture with REPEAT sampling.
				b.repack = false
			}
			b.min.X = math.Min(b.min.X, uv.X)
			b.min.Y = math.Min(b.min.Y, uv.Y)
			b.max.X = math.Max(b.max.X, uv.X)
			b.max.Y = math.Max(b.max.Y, uv.Y)
		}
	}

	outMats := make([]mesh.Material, len(mats))
	copy(outMats, mats)

	var regions []region
	for _, mi := range order {
		b := bounds[mi]
		tex := mats[mi].Texture
		if !b.repack {
			p.log.Debug("texture kept whole", zap.String("texture", tex.Name))
			if p.opts.Strategy.compresses() {
				t, err := p.recompress(tex)
				if err != nil {
					return nil, err
				}
				outMats[mi].Texture = t
			}
			continue
		}
		img, err := p.cache.Decode(tex)
		if err != nil {
			return nil, err
		}
		size := img.Bounds().Size()
		x0 := clamp(int(math.Floor(b.min.X*float64(size.X)))-Gutter, 0, size.X)
		y0 := clamp(int(math.Floor(b.min.Y*float64(size.Y)))-Gutter, 0, size.Y)
		x1 := clamp(int(math.Ceil(b.max.X*float64(size.X)))+Gutter, 0, size.X)
		y1 := clamp(int(math.Ceil(b.max.Y*float64(size.Y)))+Gutter, 0, size.Y)
		if x1 <= x0 {
			x1 = min(x0+1, size.X)
			x0 = x1 - 1
		}
		if y1 <= y0 {
			y1 = min(y0+1, size.Y)
			y0 = y1 - 1
		}
		regions = append(regions, region{
			material: mi,
			src:      image.Rect(x0, y0, x1, y1),
			size:     size,
			img:      img,
		})
	}

	if len(regions) == 0 {
		return &Packed{Triangles: tris, Materials: outMats}, nil
	}

	sizes := make([]image.Point, len(regions))
	for i, r := range regions {
		sizes[i] = r.src.Size()
	}
	origins, atlasSize := shelfLayout(sizes)

	atlas := image.NewRGBA(image.Rectangle{Max: atlasSize})
	for i, r := range regions {
		crop := transform.Crop(r.img, r.src)
		xdraw.Copy(atlas, origins[i], crop, crop.Bounds(), xdraw.Src, nil)
	}

	var atlasImg image.Image = atlas
	if m := p.opts.MaxSize; m > 0 && (atlasSize.X > m || atlasSize.Y > m) {
		scale := float64(m) / float64(max(atlasSize.X, atlasSize.Y))
		w := max(1, int(float64(atlasSize.X)*scale))
		h := max(1, int(float64(atlasSize.Y)*scale))
		p.log.Debug("downscaling atlas",
			zap.Int("width", atlasSize.X), zap.Int("height", atlasSize.Y),
			zap.Int("to_width", w), zap.Int("to_height", h))
		atlasImg = transform.Resize(atlas, w, h, transform.Linear)
	}

	tex, err := p.encodeAtlas(atlasImg)
	if err != nil {
		return nil, err
	}

	// All repacked materials collapse into one atlas material appended last.
	first := mats[regions[0].material]
	atlasMat := mesh.Material{
		Name:     "atlas",
		Diffuse:  first.Diffuse,
		Specular: first.Specular,
		Texture:  tex,
	}
	atlasIndex := len(outMats)
	outMats = append(outMats, atlasMat)

	type placement struct {
		origin image.Point
		r      region
	}
	placed := make(map[int]placement, len(regions))
	for i, r := range regions {
		placed[r.material] = placement{origin: origins[i], r: r}
	}

	aw, ah := float64(atlasSize.X), float64(atlasSize.Y)
	outTris := make([]mesh.Triangle, len(tris))
	copy(outTris, tris)
	for i := range outTris {
		pl, ok := placed[outTris[i].Material]
		if !ok {
			continue
		}
		for j := 0; j < 3; j++ {
			uv := outTris[i].V[j].UV
			px := uv.X*float64(pl.r.size.X) - float64(pl.r.src.Min.X) + float64(pl.origin.X)
			py := uv.Y*float64(pl.r.size.Y) - float64(pl.r.src.Min.Y) + float64(pl.origin.Y)
			outTris[i].V[j].UV = pmath.Vec2{X: px / aw, Y: py / ah}
		}
		outTris[i].Material = atlasIndex
	}

	// Materials replaced by the atlas are dropped so the leaf only carries referenced ones.
	sub := mesh.BuildSubset(outTris, outMats)
	return &Packed{Triangles: outTris, Materials: sub.Materials}, nil
}

func (p *Packer) encodeAtlas(img image.Image) (*mesh.Texture, error) {
	if p.opts.Strategy.compresses() {
		return p.encodeJPEG("atlas.jpg", img)
	}
	var buf bytes.Buffer
	if p.opts.Encoding == FormatWebP {
		if err := nativewebp.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("encoding atlas as webp: %w", err)
		}
		return &mesh.Texture{Name: "atlas.webp", MIME: MIMEWebP, Data: buf.Bytes()}, nil
	}
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding atlas as png: %w", err)
	}
	return &mesh.Texture{Name: "atlas.png", MIME: MIMEPNG, Data: buf.Bytes()}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
