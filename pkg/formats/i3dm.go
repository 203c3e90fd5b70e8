package formats

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

// I3DM errors.
var ErrInvalidI3DMMagic = errors.New("invalid I3DM magic: expected 'i3dm'")

// I3DMHeaderSize is the fixed size of the i3dm header.
const I3DMHeaderSize = 32

// gltfFormat value for a GLB embedded in the tile body.
const i3dmEmbeddedGLB = 1

type i3dmFeatureTable struct {
	InstancesLength int       `json:"INSTANCES_LENGTH"`
	Position        binaryRef `json:"POSITION"`
	RTCCenter       []float64 `json:"RTC_CENTER,omitempty"`
}

type binaryRef struct {
	ByteOffset int `json:"byteOffset"`
}

// I3DM is a parsed instanced 3D model tile.
type I3DM struct {
	Version         uint32
	GLTFFormat      uint32
	InstancesLength int
	RTCCenter       []float64
	Positions       []pmath.Vec3
	BatchTableJSON  []byte
	GLB             []byte
}

// EncodeI3DM wraps glb as an instanced tile placing one instance at each of
// positions. Positions are stored as float32 relative to rtcCenter.
func EncodeI3DM(glb []byte, positions []pmath.Vec3, rtcCenter pmath.Vec3) ([]byte, error) {
	ft, err := json.Marshal(i3dmFeatureTable{
		InstancesLength: len(positions),
		RTCCenter:       []float64{rtcCenter.X, rtcCenter.Y, rtcCenter.Z},
	})
	if err != nil {
		return nil, err
	}
	ft = padTo(ft, I3DMHeaderSize, 8, ' ')

	bin := make([]byte, 0, len(positions)*12)
	for _, p := range positions {
		bin = appendVec3f(bin, p.Sub(rtcCenter))
	}
	bin = padTo(bin, 0, 8, 0)

	total := I3DMHeaderSize + len(ft) + len(bin) + len(glb)
	out := make([]byte, I3DMHeaderSize, total)
	putHeader(out, "i3dm", 1, uint32(total), uint32(len(ft)), uint32(len(bin)), 0, 0, i3dmEmbeddedGLB)
	out = append(out, ft...)
	out = append(out, bin...)
	out = append(out, glb...)
	return out, nil
}

// ParseI3DM parses an i3dm tile.
func ParseI3DM(data []byte) (*I3DM, error) {
	h, err := readHeader(data, "i3dm", 7, ErrInvalidI3DMMagic)
	if err != nil {
		return nil, err
	}
	if h[0] != 1 {
		return nil, fmt.Errorf("%w: i3dm %d", ErrUnsupportedTile, h[0])
	}
	if int(h[1]) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrInvalidLength, h[1], len(data))
	}
	sections, err := splitSections(data[I3DMHeaderSize:], h[2:6])
	if err != nil {
		return nil, err
	}

	var ft i3dmFeatureTable
	if err := json.Unmarshal(sections[0], &ft); err != nil {
		return nil, fmt.Errorf("parsing i3dm feature table: %w", err)
	}
	t := &I3DM{
		Version:         h[0],
		GLTFFormat:      h[6],
		InstancesLength: ft.InstancesLength,
		RTCCenter:       ft.RTCCenter,
		BatchTableJSON:  sections[2],
		GLB:             sections[4],
	}
	positions, err := readVec3fs(sections[1], ft.Position.ByteOffset, ft.InstancesLength)
	if err != nil {
		return nil, err
	}
	t.Positions = positions
	return t, nil
}

func appendVec3f(dst []byte, v pmath.Vec3) []byte {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		dst = le.AppendUint32(dst, math.Float32bits(float32(c)))
	}
	return dst
}

func readVec3fs(bin []byte, offset, n int) ([]pmath.Vec3, error) {
	if offset < 0 || offset+n*12 > len(bin) {
		return nil, fmt.Errorf("%w: %d positions at offset %d", ErrTruncatedTile, n, offset)
	}
	out := make([]pmath.Vec3, n)
	for i := range out {
		b := bin[offset+i*12:]
		out[i] = pmath.Vec3{
			X: float64(math.Float32frombits(le.Uint32(b[0:]))),
			Y: float64(math.Float32frombits(le.Uint32(b[4:]))),
			Z: float64(math.Float32frombits(le.Uint32(b[8:]))),
		}
	}
	return out, nil
}
