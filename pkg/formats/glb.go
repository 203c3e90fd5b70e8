package formats

import (
	"encoding/json"
	"errors"
	"fmt"
)

// GLB errors.
var (
	ErrInvalidGLBMagic = errors.New("invalid GLB magic: expected 'glTF'")
	ErrInvalidGLBChunk = errors.New("invalid GLB chunk")
)

const (
	glbHeaderSize  = 12
	glbVersion     = 2
	chunkTypeJSON  = 0x4E4F534A
	chunkTypeBIN   = 0x004E4942
	chunkHeaderLen = 8
)

// GLB is a parsed binary glTF container.
type GLB struct {
	Version  uint32
	Document Document
	JSON     []byte
	Bin      []byte
}

// EncodeGLB packs doc and its binary buffer into a GLB container. The JSON
// chunk is padded with spaces and the BIN chunk with zeros to 4-byte boundaries.
func EncodeGLB(doc *Document, bin []byte) ([]byte, error) {
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshalling glTF json: %w", err)
	}
	js = padTo(js, 0, 4, ' ')
	binPadded := padTo(bin, 0, 4, 0)

	total := glbHeaderSize + chunkHeaderLen + len(js)
	if len(bin) > 0 {
		total += chunkHeaderLen + len(binPadded)
	}

	out := make([]byte, total)
	putHeader(out, "glTF", glbVersion, uint32(total))
	off := glbHeaderSize
	le.PutUint32(out[off:], uint32(len(js)))
	le.PutUint32(out[off+4:], chunkTypeJSON)
	copy(out[off+chunkHeaderLen:], js)
	off += chunkHeaderLen + len(js)
	if len(bin) > 0 {
		le.PutUint32(out[off:], uint32(len(binPadded)))
		le.PutUint32(out[off+4:], chunkTypeBIN)
		copy(out[off+chunkHeaderLen:], binPadded)
	}
	return out, nil
}

// ParseGLB parses a GLB container.
func ParseGLB(data []byte) (*GLB, error) {
	h, err := readHeader(data, "glTF", 2, ErrInvalidGLBMagic)
	if err != nil {
		return nil, err
	}
	if h[0] != glbVersion {
		return nil, fmt.Errorf("%w: glTF %d", ErrUnsupportedTile, h[0])
	}
	if int(h[1]) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrInvalidLength, h[1], len(data))
	}

	g := &GLB{Version: h[0]}
	off := glbHeaderSize
	for off < len(data) {
		if off+chunkHeaderLen > len(data) {
			return nil, ErrTruncatedTile
		}
		size := int(le.Uint32(data[off:]))
		kind := le.Uint32(data[off+4:])
		start := off + chunkHeaderLen
		if start+size > len(data) {
			return nil, fmt.Errorf("%w: chunk of %d bytes at %d", ErrTruncatedTile, size, off)
		}
		chunk := data[start : start+size]
		switch kind {
		case chunkTypeJSON:
			g.JSON = chunk
		case chunkTypeBIN:
			g.Bin = chunk
		}
		off = start + size
	}
	if g.JSON == nil {
		return nil, fmt.Errorf("%w: missing JSON chunk", ErrInvalidGLBChunk)
	}
	if err := json.Unmarshal(g.JSON, &g.Document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGLBChunk, err)
	}
	return g, nil
}

// AccessorBytes returns the raw bytes backing accessor i.
func (g *GLB) AccessorBytes(i int) ([]byte, error) {
	if i < 0 || i >= len(g.Document.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", i)
	}
	a := g.Document.Accessors[i]
	if a.BufferView < 0 || a.BufferView >= len(g.Document.BufferViews) {
		return nil, fmt.Errorf("accessor %d: buffer view %d out of range", i, a.BufferView)
	}
	bv := g.Document.BufferViews[a.BufferView]
	n := a.Count * ComponentSize(a.ComponentType) * typeComponents(a.Type)
	start := bv.ByteOffset + a.ByteOffset
	if start+n > len(g.Bin) {
		return nil, fmt.Errorf("%w: accessor %d", ErrTruncatedTile, i)
	}
	return g.Bin[start : start+n], nil
}

// Indices decodes an index accessor of any integer width.
func (g *GLB) Indices(i int) ([]uint32, error) {
	raw, err := g.AccessorBytes(i)
	if err != nil {
		return nil, err
	}
	a := g.Document.Accessors[i]
	out := make([]uint32, a.Count)
	for k := range out {
		switch a.ComponentType {
		case ComponentUnsignedByte:
			out[k] = uint32(raw[k])
		case ComponentUnsignedShort:
			out[k] = uint32(le.Uint16(raw[k*2:]))
		default:
			out[k] = le.Uint32(raw[k*4:])
		}
	}
	return out, nil
}

func typeComponents(t string) int {
	switch t {
	case "VEC2":
		return 2
	case "VEC3":
		return 3
	case "VEC4", "MAT2":
		return 4
	case "MAT3":
		return 9
	case "MAT4":
		return 16
	default:
		return 1
	}
}
