package formats

import (
	"encoding/json"
	"errors"
	"fmt"
)

// B3DM errors.
var ErrInvalidB3DMMagic = errors.New("invalid B3DM magic: expected 'b3dm'")

// B3DMHeaderSize is the fixed size of the b3dm header.
const B3DMHeaderSize = 28

// BatchTable holds the per-feature ids and names written into a b3dm.
type BatchTable struct {
	BatchID []int    `json:"batchId"`
	Name    []string `json:"name"`
}

// NewBatchTable returns a table for n features named mesh_0 ... mesh_{n-1}.
func NewBatchTable(n int) BatchTable {
	bt := BatchTable{BatchID: make([]int, n), Name: make([]string, n)}
	for i := 0; i < n; i++ {
		bt.BatchID[i] = i
		bt.Name[i] = fmt.Sprintf("mesh_%d", i)
	}
	return bt
}

// B3DM is a parsed batched 3D model tile.
type B3DM struct {
	Version            uint32
	ByteLength         uint32
	FeatureTableJSON   []byte
	FeatureTableBinary []byte
	BatchTableJSON     []byte
	BatchTableBinary   []byte
	GLB                []byte
	BatchLength        int
}

// EncodeB3DM wraps glb in a b3dm container. The feature table JSON is padded
// with spaces so the header plus feature table ends on an 8-byte boundary, and
// the batch table JSON is padded to a multiple of 8.
func EncodeB3DM(glb []byte, batch BatchTable) ([]byte, error) {
	n := len(batch.BatchID)
	ft, err := json.Marshal(struct {
		BatchLength int `json:"BATCH_LENGTH"`
	}{n})
	if err != nil {
		return nil, err
	}
	ft = padTo(ft, B3DMHeaderSize, 8, ' ')

	var bt []byte
	if n > 0 {
		if bt, err = json.Marshal(batch); err != nil {
			return nil, err
		}
		bt = padTo(bt, 0, 8, ' ')
	}

	total := B3DMHeaderSize + len(ft) + len(bt) + len(glb)
	out := make([]byte, B3DMHeaderSize, total)
	putHeader(out, "b3dm", 1, uint32(total), uint32(len(ft)), 0, uint32(len(bt)), 0)
	out = append(out, ft...)
	out = append(out, bt...)
	out = append(out, glb...)
	return out, nil
}

// ParseB3DM parses a b3dm tile and validates its section lengths.
func ParseB3DM(data []byte) (*B3DM, error) {
	h, err := readHeader(data, "b3dm", 6, ErrInvalidB3DMMagic)
	if err != nil {
		return nil, err
	}
	if h[0] != 1 {
		return nil, fmt.Errorf("%w: b3dm %d", ErrUnsupportedTile, h[0])
	}
	if int(h[1]) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrInvalidLength, h[1], len(data))
	}

	t := &B3DM{Version: h[0], ByteLength: h[1]}
	sections, err := splitSections(data[B3DMHeaderSize:], h[2:6])
	if err != nil {
		return nil, err
	}
	t.FeatureTableJSON, t.FeatureTableBinary = sections[0], sections[1]
	t.BatchTableJSON, t.BatchTableBinary = sections[2], sections[3]
	t.GLB = sections[4]

	var ft struct {
		BatchLength int `json:"BATCH_LENGTH"`
	}
	if err := json.Unmarshal(t.FeatureTableJSON, &ft); err != nil {
		return nil, fmt.Errorf("parsing b3dm feature table: %w", err)
	}
	t.BatchLength = ft.BatchLength
	return t, nil
}

// BatchTable decodes the batch table JSON, if present.
func (t *B3DM) BatchTable() (BatchTable, error) {
	var bt BatchTable
	if len(t.BatchTableJSON) == 0 {
		return bt, nil
	}
	err := json.Unmarshal(t.BatchTableJSON, &bt)
	return bt, err
}

// splitSections cuts body into consecutive sections of the given lengths
// followed by whatever remains.
func splitSections(body []byte, lengths []uint32) ([][]byte, error) {
	out := make([][]byte, 0, len(lengths)+1)
	off := 0
	for i, l := range lengths {
		end := off + int(l)
		if end > len(body) {
			return nil, fmt.Errorf("%w: section %d needs %d bytes", ErrTruncatedTile, i, l)
		}
		out = append(out, body[off:end])
		off = end
	}
	return append(out, body[off:]), nil
}
