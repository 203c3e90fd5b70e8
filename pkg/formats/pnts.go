package formats

import (
	"encoding/json"
	"errors"
	"fmt"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

// PNTS errors.
var ErrInvalidPNTSMagic = errors.New("invalid PNTS magic: expected 'pnts'")

// PNTSHeaderSize is the fixed size of the pnts header.
const PNTSHeaderSize = 28

type pntsFeatureTable struct {
	PointsLength int        `json:"POINTS_LENGTH"`
	RTCCenter    []float64  `json:"RTC_CENTER,omitempty"`
	Position     binaryRef  `json:"POSITION"`
	RGB          *binaryRef `json:"RGB,omitempty"`
}

// Point is one point of a point cloud tile.
type Point struct {
	Position pmath.Vec3
	Color    [3]uint8
}

// PNTS is a parsed point cloud tile.
type PNTS struct {
	Version      uint32
	PointsLength int
	RTCCenter    []float64
	Points       []Point
}

// EncodePNTS writes points as a point cloud tile with float32 positions
// relative to rtcCenter and RGB colors.
func EncodePNTS(points []Point, rtcCenter pmath.Vec3) ([]byte, error) {
	n := len(points)
	colorOffset := n * 12
	ft, err := json.Marshal(pntsFeatureTable{
		PointsLength: n,
		RTCCenter:    []float64{rtcCenter.X, rtcCenter.Y, rtcCenter.Z},
		RGB:          &binaryRef{ByteOffset: colorOffset},
	})
	if err != nil {
		return nil, err
	}
	ft = padTo(ft, PNTSHeaderSize, 8, ' ')

	bin := make([]byte, 0, n*15)
	for _, p := range points {
		bin = appendVec3f(bin, p.Position.Sub(rtcCenter))
	}
	for _, p := range points {
		bin = append(bin, p.Color[0], p.Color[1], p.Color[2])
	}
	bin = padTo(bin, 0, 8, 0)

	total := PNTSHeaderSize + len(ft) + len(bin)
	out := make([]byte, PNTSHeaderSize, total)
	putHeader(out, "pnts", 1, uint32(total), uint32(len(ft)), uint32(len(bin)), 0, 0)
	out = append(out, ft...)
	out = append(out, bin...)
	return out, nil
}

// ParsePNTS parses a point cloud tile.
func ParsePNTS(data []byte) (*PNTS, error) {
	h, err := readHeader(data, "pnts", 6, ErrInvalidPNTSMagic)
	if err != nil {
		return nil, err
	}
	if h[0] != 1 {
		return nil, fmt.Errorf("%w: pnts %d", ErrUnsupportedTile, h[0])
	}
	if int(h[1]) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrInvalidLength, h[1], len(data))
	}
	sections, err := splitSections(data[PNTSHeaderSize:], h[2:6])
	if err != nil {
		return nil, err
	}

	var ft pntsFeatureTable
	if err := json.Unmarshal(sections[0], &ft); err != nil {
		return nil, fmt.Errorf("parsing pnts feature table: %w", err)
	}
	positions, err := readVec3fs(sections[1], ft.Position.ByteOffset, ft.PointsLength)
	if err != nil {
		return nil, err
	}
	t := &PNTS{Version: h[0], PointsLength: ft.PointsLength, RTCCenter: ft.RTCCenter}
	t.Points = make([]Point, len(positions))
	for i, p := range positions {
		t.Points[i].Position = p
	}
	if ft.RGB != nil {
		bin := sections[1]
		off := ft.RGB.ByteOffset
		if off < 0 || off+ft.PointsLength*3 > len(bin) {
			return nil, fmt.Errorf("%w: colors at offset %d", ErrTruncatedTile, off)
		}
		for i := range t.Points {
			copy(t.Points[i].Color[:], bin[off+i*3:off+i*3+3])
		}
	}
	return t, nil
}
