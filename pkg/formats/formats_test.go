package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

// createTestGLB creates a small GLB with one float accessor and one index accessor.
func createTestGLB(t *testing.T) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	for _, f := range []float32{0, 0, 0, 1, 0, 0, 0, 1, 0} {
		binary.Write(buf, binary.LittleEndian, f)
	}
	buf.Write([]byte{0, 1, 2, 0}) // uint8 indices plus pad

	doc := &Document{
		Asset:  Asset{Version: "2.0", Generator: "test"},
		Scenes: []Scene{{Nodes: []int{0}}},
		Nodes:  []Node{{}},
		Accessors: []Accessor{
			{BufferView: 0, ComponentType: ComponentFloat, Count: 3, Type: "VEC3"},
			{BufferView: 1, ComponentType: ComponentUnsignedByte, Count: 3, Type: "SCALAR"},
		},
		BufferViews: []BufferView{
			{ByteOffset: 0, ByteLength: 36},
			{ByteOffset: 36, ByteLength: 3},
		},
		Buffers: []Buffer{{ByteLength: buf.Len()}},
	}
	glb, err := EncodeGLB(doc, buf.Bytes())
	if err != nil {
		t.Fatalf("EncodeGLB failed: %v", err)
	}
	return glb
}

func TestPadTo(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		offset int
		align  int
		want   int
	}{
		{"aligned", make([]byte, 8), 0, 8, 8},
		{"short", make([]byte, 5), 0, 8, 8},
		{"offset", make([]byte, 5), 28, 8, 12},
		{"empty", nil, 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := padTo(tt.data, tt.offset, tt.align, ' ')
			if len(got) != tt.want {
				t.Errorf("padTo length = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestIndexComponentType(t *testing.T) {
	tests := []struct {
		max  int
		want int
	}{
		{0, ComponentUnsignedByte},
		{254, ComponentUnsignedByte},
		{255, ComponentUnsignedShort},
		{256, ComponentUnsignedShort},
		{65534, ComponentUnsignedShort},
		{65535, ComponentUnsignedInt},
		{65536, ComponentUnsignedInt},
	}

	for _, tt := range tests {
		if got := IndexComponentType(tt.max); got != tt.want {
			t.Errorf("IndexComponentType(%d) = %d, want %d", tt.max, got, tt.want)
		}
	}
}

func TestGLB_RoundTrip(t *testing.T) {
	data := createTestGLB(t)

	if Magic(data) != "glTF" {
		t.Fatalf("expected glTF magic, got %q", Magic(data))
	}
	if len(data)%4 != 0 {
		t.Errorf("GLB length %d not 4-byte aligned", len(data))
	}

	glb, err := ParseGLB(data)
	if err != nil {
		t.Fatalf("ParseGLB failed: %v", err)
	}
	if glb.Document.Asset.Version != "2.0" {
		t.Errorf("expected asset version 2.0, got %s", glb.Document.Asset.Version)
	}
	if len(glb.Bin) != 40 {
		t.Errorf("expected 40-byte BIN chunk, got %d", len(glb.Bin))
	}

	idx, err := glb.Indices(1)
	if err != nil {
		t.Fatalf("Indices failed: %v", err)
	}
	if len(idx) != 3 || idx[0] != 0 || idx[1] != 1 || idx[2] != 2 {
		t.Errorf("unexpected indices %v", idx)
	}

	raw, err := glb.AccessorBytes(0)
	if err != nil {
		t.Fatalf("AccessorBytes failed: %v", err)
	}
	if len(raw) != 36 {
		t.Errorf("expected 36 position bytes, got %d", len(raw))
	}
}

func TestParseGLB_Errors(t *testing.T) {
	valid := createTestGLB(t)

	badMagic := append([]byte(nil), valid...)
	copy(badMagic, "XXXX")

	badLength := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badLength[8:], uint32(len(valid)+4))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", []byte("glT"), ErrTruncatedTile},
		{"bad magic", badMagic, ErrInvalidGLBMagic},
		{"length mismatch", badLength, ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGLB(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestB3DM_RoundTrip(t *testing.T) {
	glb := createTestGLB(t)

	tests := []struct {
		name     string
		features int
	}{
		{"no features", 0},
		{"one feature", 1},
		{"three features", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeB3DM(glb, NewBatchTable(tt.features))
			if err != nil {
				t.Fatalf("EncodeB3DM failed: %v", err)
			}

			ftLen := binary.LittleEndian.Uint32(data[12:])
			btLen := binary.LittleEndian.Uint32(data[20:])
			if (B3DMHeaderSize+int(ftLen))%8 != 0 {
				t.Errorf("header+feature table %d not 8-byte aligned", B3DMHeaderSize+int(ftLen))
			}
			if btLen%8 != 0 {
				t.Errorf("batch table length %d not 8-byte aligned", btLen)
			}

			tile, err := ParseB3DM(data)
			if err != nil {
				t.Fatalf("ParseB3DM failed: %v", err)
			}
			if int(tile.ByteLength) != len(data) {
				t.Errorf("byteLength %d, data %d", tile.ByteLength, len(data))
			}
			if tile.BatchLength != tt.features {
				t.Errorf("expected BATCH_LENGTH %d, got %d", tt.features, tile.BatchLength)
			}
			if !bytes.Equal(tile.GLB, glb) {
				t.Error("embedded GLB does not match")
			}

			bt, err := tile.BatchTable()
			if err != nil {
				t.Fatalf("BatchTable failed: %v", err)
			}
			if len(bt.Name) != tt.features {
				t.Errorf("expected %d names, got %d", tt.features, len(bt.Name))
			}
			if tt.features > 0 && bt.Name[tt.features-1] == "" {
				t.Error("expected feature names")
			}
		})
	}
}

func TestParseB3DM_Errors(t *testing.T) {
	data, err := EncodeB3DM(createTestGLB(t), NewBatchTable(1))
	if err != nil {
		t.Fatalf("EncodeB3DM failed: %v", err)
	}

	wrongMagic := append([]byte(nil), data...)
	copy(wrongMagic, "i3dm")

	badVersion := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(badVersion[4:], 2)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated header", data[:20], ErrTruncatedTile},
		{"wrong magic", wrongMagic, ErrInvalidB3DMMagic},
		{"bad version", badVersion, ErrUnsupportedTile},
		{"cut body", data[:len(data)-8], ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseB3DM(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestI3DM_RoundTrip(t *testing.T) {
	glb := createTestGLB(t)
	center := pmath.Vec3{X: 100, Y: 200, Z: 300}
	positions := []pmath.Vec3{{X: 101, Y: 200, Z: 300}, {X: 100, Y: 202, Z: 303}}

	data, err := EncodeI3DM(glb, positions, center)
	if err != nil {
		t.Fatalf("EncodeI3DM failed: %v", err)
	}

	tile, err := ParseI3DM(data)
	if err != nil {
		t.Fatalf("ParseI3DM failed: %v", err)
	}
	if tile.GLTFFormat != 1 {
		t.Errorf("expected embedded glTF format, got %d", tile.GLTFFormat)
	}
	if tile.InstancesLength != 2 {
		t.Fatalf("expected 2 instances, got %d", tile.InstancesLength)
	}
	if tile.Positions[1] != (pmath.Vec3{X: 0, Y: 2, Z: 3}) {
		t.Errorf("expected relative position (0,2,3), got %v", tile.Positions[1])
	}
	if len(tile.RTCCenter) != 3 || tile.RTCCenter[2] != 300 {
		t.Errorf("unexpected RTC_CENTER %v", tile.RTCCenter)
	}
	if !bytes.Equal(tile.GLB, glb) {
		t.Error("embedded GLB does not match")
	}

	if _, err := ParseI3DM(data[:len(data)-1]); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

func TestPNTS_RoundTrip(t *testing.T) {
	center := pmath.Vec3{X: 10, Y: 10, Z: 10}
	points := []Point{
		{Position: pmath.Vec3{X: 10, Y: 10, Z: 10}, Color: [3]uint8{255, 0, 0}},
		{Position: pmath.Vec3{X: 11, Y: 12, Z: 13}, Color: [3]uint8{0, 255, 0}},
		{Position: pmath.Vec3{X: 9, Y: 8, Z: 7}, Color: [3]uint8{0, 0, 255}},
	}

	data, err := EncodePNTS(points, center)
	if err != nil {
		t.Fatalf("EncodePNTS failed: %v", err)
	}
	if len(data)%8 != 0 {
		t.Errorf("pnts length %d not 8-byte aligned", len(data))
	}

	tile, err := ParsePNTS(data)
	if err != nil {
		t.Fatalf("ParsePNTS failed: %v", err)
	}
	if tile.PointsLength != 3 {
		t.Fatalf("expected 3 points, got %d", tile.PointsLength)
	}
	if tile.Points[1].Position != (pmath.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("unexpected relative position %v", tile.Points[1].Position)
	}
	if tile.Points[2].Color != [3]uint8{0, 0, 255} {
		t.Errorf("unexpected color %v", tile.Points[2].Color)
	}

	if _, err := ParsePNTS([]byte("b3dm0000000000000000000000000000")); !errors.Is(err, ErrInvalidPNTSMagic) {
		t.Errorf("expected ErrInvalidPNTSMagic, got %v", err)
	}
}

func TestCMPT_RoundTrip(t *testing.T) {
	glb := createTestGLB(t)
	a, err := EncodeB3DM(glb, NewBatchTable(1))
	if err != nil {
		t.Fatalf("EncodeB3DM failed: %v", err)
	}
	b, err := EncodePNTS([]Point{{}}, pmath.Vec3{})
	if err != nil {
		t.Fatalf("EncodePNTS failed: %v", err)
	}

	data, err := EncodeCMPT([][]byte{a, b})
	if err != nil {
		t.Fatalf("EncodeCMPT failed: %v", err)
	}

	tiles, err := ParseCMPT(data)
	if err != nil {
		t.Fatalf("ParseCMPT failed: %v", err)
	}
	if len(tiles) != 2 {
		t.Fatalf("expected 2 inner tiles, got %d", len(tiles))
	}
	if Magic(tiles[0]) != "b3dm" || Magic(tiles[1]) != "pnts" {
		t.Errorf("unexpected inner magics %q %q", Magic(tiles[0]), Magic(tiles[1]))
	}
	for i, tile := range tiles {
		if len(tile)%8 != 0 {
			t.Errorf("inner tile %d length %d not 8-byte aligned", i, len(tile))
		}
	}
	if _, err := ParseB3DM(tiles[0]); err != nil {
		t.Errorf("inner b3dm does not parse: %v", err)
	}
}

func TestParseCMPT_Truncated(t *testing.T) {
	data, err := EncodeCMPT(nil)
	if err != nil {
		t.Fatalf("EncodeCMPT failed: %v", err)
	}
	if len(data) != CMPTHeaderSize {
		t.Errorf("expected empty composite of %d bytes, got %d", CMPTHeaderSize, len(data))
	}

	binary.LittleEndian.PutUint32(data[12:], 1)
	if _, err := ParseCMPT(data); !errors.Is(err, ErrTruncatedTile) {
		t.Errorf("expected ErrTruncatedTile, got %v", err)
	}
}
