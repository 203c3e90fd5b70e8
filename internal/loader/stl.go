package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Faultbox/meshtiler/pkg/encoding"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

const (
	stlHeaderSize = 80
	stlRecordSize = 50
)

// ErrTruncatedSTL is returned when a binary STL ends before its declared triangle count.
var ErrTruncatedSTL = errors.New("truncated binary STL")

// STLLoader reads ASCII and binary STL files.
type STLLoader struct{}

// Load reads the STL file at path.
func (STLLoader) Load(ctx context.Context, path string) (*mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := ParseSTL(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// ParseSTL detects the STL flavor and parses it. Binary files are
// recognized by their exact size, since their header may also start with "solid".
func ParseSTL(data []byte) (*mesh.Mesh, error) {
	if len(data) >= stlHeaderSize+4 {
		count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
		if int64(len(data)) == stlHeaderSize+4+int64(count)*stlRecordSize {
			return parseBinarySTL(data)
		}
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")) {
		return parseASCIISTL(data)
	}
	return parseBinarySTL(data)
}

func newSTLMesh(name string) *mesh.Mesh {
	return &mesh.Mesh{Name: name, Materials: []mesh.Material{mesh.DefaultMaterial()}}
}

// stlTriangle builds a triangle, using the facet normal when it is usable.
func stlTriangle(normal pmath.Vec3, v [3]pmath.Vec3) mesh.Triangle {
	t := mesh.Triangle{}
	for i := range v {
		t.V[i].Position = v[i]
	}
	if normal.Length() > 1e-12 {
		n := normal.Normalize()
		for i := range t.V {
			t.V[i].Normal = n
		}
		t.HasNormal = true
	}
	return t
}

func parseASCIISTL(data []byte) (*mesh.Mesh, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	m := newSTLMesh("")

	var normal pmath.Vec3
	var vertices []pmath.Vec3
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				m.Name = strings.Join(fields[1:], " ")
			}
		case "facet":
			if len(fields) >= 5 && fields[1] == "normal" {
				v, err := parseVec3(fields[2:5])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				normal = v
			}
		case "vertex":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs three coordinates", line)
			}
			v, err := parseVec3(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vertices = append(vertices, v)
		case "endfacet":
			if len(vertices) == 3 {
				m.Triangles = append(m.Triangles, stlTriangle(normal, [3]pmath.Vec3{vertices[0], vertices[1], vertices[2]}))
			}
			vertices = vertices[:0]
			normal = pmath.Vec3{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASCII STL: %w", err)
	}
	return m, nil
}

func parseBinarySTL(data []byte) (*mesh.Mesh, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedSTL, len(data))
	}
	m := newSTLMesh(encoding.TrimNullString(data[:stlHeaderSize]))
	count := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	body := data[stlHeaderSize+4:]
	if len(body) < count*stlRecordSize {
		return nil, fmt.Errorf("%w: %d triangles declared, room for %d", ErrTruncatedSTL, count, len(body)/stlRecordSize)
	}

	m.Triangles = make([]mesh.Triangle, 0, count)
	for i := 0; i < count; i++ {
		rec := body[i*stlRecordSize:]
		var v [4]pmath.Vec3
		for k := range v {
			v[k] = readVec3f(rec[k*12:])
		}
		m.Triangles = append(m.Triangles, stlTriangle(v[0], [3]pmath.Vec3{v[1], v[2], v[3]}))
	}
	return m, nil
}

func readVec3f(b []byte) pmath.Vec3 {
	f := func(off int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
	}
	return pmath.Vec3{X: f(0), Y: f(4), Z: f(8)}
}

func parseVec3(fields []string) (pmath.Vec3, error) {
	var c [3]float64
	for i := range c {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return pmath.Vec3{}, fmt.Errorf("parsing %q: %w", fields[i], err)
		}
		c[i] = v
	}
	return pmath.Vec3{X: c[0], Y: c[1], Z: c[2]}, nil
}
