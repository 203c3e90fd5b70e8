package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshtiler/pkg/encoding"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// ErrInvalidFace is returned for faces with fewer than three vertices or bad indices.
var ErrInvalidFace = errors.New("invalid face")

// OBJLoader reads Wavefront OBJ files with their MTL libraries and diffuse textures.
type OBJLoader struct {
	charset encoding.Charset
	log     *zap.Logger
}

// NewOBJLoader creates an OBJ loader.
func NewOBJLoader(opts Options) (*OBJLoader, error) {
	cs, err := encoding.ParseCharset(opts.Charset)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &OBJLoader{charset: cs, log: log}, nil
}

// Load reads the OBJ file at path. Material libraries and textures are
// resolved relative to the file.
func (l *OBJLoader) Load(ctx context.Context, path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := l.Parse(ctx, f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// objState accumulates one OBJ parse.
type objState struct {
	l         *OBJLoader
	dir       string
	positions []pmath.Vec3
	uvs       []pmath.Vec2
	normals   []pmath.Vec3
	m         *mesh.Mesh
	byName    map[string]int
	textures  map[string]*mesh.Texture
	current   int
}

// Parse reads OBJ text from r. dir is used to resolve mtllib and texture paths.
func (l *OBJLoader) Parse(ctx context.Context, r io.Reader, dir string) (*mesh.Mesh, error) {
	st := &objState{
		l:        l,
		dir:      dir,
		m:        &mesh.Mesh{},
		byName:   make(map[string]int),
		textures: make(map[string]*mesh.Texture),
		current:  -1,
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSpace(encoding.ToUTF8(scanner.Bytes(), l.charset))
		if text == "" || text[0] == '#' {
			continue
		}
		keyword, rest, _ := strings.Cut(text, " ")
		rest = strings.TrimSpace(rest)
		if err := st.handle(keyword, rest); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading OBJ: %w", err)
	}
	return st.m, nil
}

func (st *objState) handle(keyword, rest string) error {
	fields := strings.Fields(rest)
	switch keyword {
	case "v":
		if len(fields) < 3 {
			return errors.New("vertex needs three coordinates")
		}
		v, err := parseVec3(fields[:3])
		if err != nil {
			return err
		}
		st.positions = append(st.positions, v)
	case "vt":
		if len(fields) < 2 {
			return errors.New("texture coordinate needs two values")
		}
		u, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		// OBJ puts v=0 at the bottom of the image, glTF at the top.
		st.uvs = append(st.uvs, pmath.Vec2{X: u, Y: 1 - v})
	case "vn":
		if len(fields) < 3 {
			return errors.New("normal needs three values")
		}
		n, err := parseVec3(fields[:3])
		if err != nil {
			return err
		}
		st.normals = append(st.normals, n.Normalize())
	case "f":
		return st.face(fields)
	case "usemtl":
		st.current = st.material(rest)
	case "mtllib":
		return st.loadLibrary(rest)
	case "o":
		if st.m.Name == "" {
			st.m.Name = rest
		}
	}
	return nil
}

// material returns the index of the named material, adding a plain one if
// no library defined it.
func (st *objState) material(name string) int {
	if idx, ok := st.byName[name]; ok {
		return idx
	}
	m := mesh.DefaultMaterial()
	if name != "" {
		m.Name = name
	}
	st.m.Materials = append(st.m.Materials, m)
	idx := len(st.m.Materials) - 1
	st.byName[name] = idx
	return idx
}

type objCorner struct {
	v      mesh.Vertex
	uv     bool
	normal bool
}

func (st *objState) face(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("%w: %d vertices", ErrInvalidFace, len(fields))
	}
	corners := make([]objCorner, len(fields))
	for i, f := range fields {
		c, err := st.corner(f)
		if err != nil {
			return err
		}
		corners[i] = c
	}
	if st.current < 0 {
		st.current = st.material("")
	}

	// Fan triangulation keeps the polygon's winding.
	for i := 1; i+1 < len(corners); i++ {
		a, b, c := corners[0], corners[i], corners[i+1]
		st.m.Triangles = append(st.m.Triangles, mesh.Triangle{
			V:         [3]mesh.Vertex{a.v, b.v, c.v},
			Material:  st.current,
			HasUV:     a.uv && b.uv && c.uv,
			HasNormal: a.normal && b.normal && c.normal,
		})
	}
	return nil
}

// corner resolves one "v", "v/vt", "v//vn" or "v/vt/vn" reference.
func (st *objState) corner(ref string) (objCorner, error) {
	parts := strings.Split(ref, "/")
	var c objCorner

	pi, err := resolveIndex(parts[0], len(st.positions))
	if err != nil {
		return c, err
	}
	c.v.Position = st.positions[pi]

	if len(parts) > 1 && parts[1] != "" {
		ti, err := resolveIndex(parts[1], len(st.uvs))
		if err != nil {
			return c, err
		}
		c.v.UV = st.uvs[ti]
		c.uv = true
	}
	if len(parts) > 2 && parts[2] != "" {
		ni, err := resolveIndex(parts[2], len(st.normals))
		if err != nil {
			return c, err
		}
		c.v.Normal = st.normals[ni]
		c.normal = true
	}
	return c, nil
}

// resolveIndex converts a 1-based or negative relative OBJ index.
func resolveIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: index %q", ErrInvalidFace, s)
	}
	if i < 0 {
		i = n + i
	} else {
		i--
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: index %s of %d", ErrInvalidFace, s, n)
	}
	return i, nil
}

func (st *objState) loadLibrary(name string) error {
	path := filepath.Join(st.dir, filepath.FromSlash(encoding.NormalizePath(name)))
	data, err := os.ReadFile(path)
	if err != nil {
		st.l.log.Warn("material library not found", zap.String("path", path), zap.Error(err))
		return nil
	}
	return st.parseMTL(data, filepath.Dir(path))
}

func (st *objState) parseMTL(data []byte, dir string) error {
	var cur *mesh.Material
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		text := strings.TrimSpace(encoding.ToUTF8(scanner.Bytes(), st.l.charset))
		if text == "" || text[0] == '#' {
			continue
		}
		keyword, rest, _ := strings.Cut(text, " ")
		rest = strings.TrimSpace(rest)
		fields := strings.Fields(rest)

		if keyword == "newmtl" {
			idx := st.material(rest)
			cur = &st.m.Materials[idx]
			continue
		}
		if cur == nil {
			continue
		}
		switch keyword {
		case "Kd", "Ks":
			if len(fields) < 3 {
				continue
			}
			c, err := parseVec3(fields[:3])
			if err != nil {
				return err
			}
			dst := &cur.Diffuse
			if keyword == "Ks" {
				dst = &cur.Specular
			}
			dst[0], dst[1], dst[2] = float32(c.X), float32(c.Y), float32(c.Z)
			if dst[3] == 0 {
				dst[3] = 1
			}
		case "d", "Tr":
			if len(fields) < 1 {
				continue
			}
			a, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return err
			}
			if keyword == "Tr" {
				a = 1 - a
			}
			cur.Diffuse[3] = float32(a)
		case "map_Kd":
			cur.Texture = st.texture(textureName(fields), dir)
		}
	}
	return scanner.Err()
}

// textureName drops map options such as "-s 1 1 1" and returns the file name.
func textureName(fields []string) string {
	for len(fields) > 1 && strings.HasPrefix(fields[0], "-") {
		opt := fields[0]
		fields = fields[1:]
		switch opt {
		case "-o", "-s", "-t":
			for n := 0; n < 3 && len(fields) > 1; n++ {
				if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
					break
				}
				fields = fields[1:]
			}
		case "-mm":
			fields = fields[min(2, len(fields)-1):]
		default:
			if len(fields) > 1 {
				fields = fields[1:]
			}
		}
	}
	return strings.Join(fields, " ")
}

// texture reads an image once per path. Missing files leave the material untextured.
func (st *objState) texture(name, dir string) *mesh.Texture {
	if name == "" {
		return nil
	}
	path := filepath.Join(dir, filepath.FromSlash(encoding.NormalizePath(name)))
	if tex, ok := st.textures[path]; ok {
		return tex
	}
	data, err := os.ReadFile(path)
	if err != nil {
		st.l.log.Warn("texture not found", zap.String("path", path), zap.Error(err))
		st.textures[path] = nil
		return nil
	}
	tex := &mesh.Texture{Name: filepath.Base(path), MIME: mimeByExt(path), Data: data}
	st.textures[path] = tex
	return tex
}

func mimeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tga":
		return "image/x-tga"
	}
	return ""
}
