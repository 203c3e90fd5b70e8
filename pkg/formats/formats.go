// Package formats encodes and parses the binary containers written for each
// tile: GLB models and the 3D Tiles b3dm, i3dm, pnts and cmpt wrappers.
package formats

import (
	"encoding/binary"
	"errors"
)

// Shared container errors.
var (
	ErrTruncatedTile   = errors.New("truncated tile data")
	ErrInvalidLength   = errors.New("tile length does not match header")
	ErrUnsupportedTile = errors.New("unsupported tile version")
)

var le = binary.LittleEndian

// padTo returns data extended with pad bytes until (offset+len) is a multiple of align.
func padTo(data []byte, offset, align int, pad byte) []byte {
	n := (offset + len(data)) % align
	if n == 0 {
		return data
	}
	out := make([]byte, len(data), len(data)+align-n)
	copy(out, data)
	for i := n; i < align; i++ {
		out = append(out, pad)
	}
	return out
}

// align4 rounds n up to a multiple of 4.
func align4(n int) int {
	return (n + 3) &^ 3
}

func putHeader(dst []byte, magic string, fields ...uint32) {
	copy(dst[0:4], magic)
	for i, f := range fields {
		le.PutUint32(dst[4+i*4:], f)
	}
}

// readHeader checks magic and returns the uint32 fields following it.
func readHeader(data []byte, magic string, n int, errMagic error) ([]uint32, error) {
	size := 4 + n*4
	if len(data) < size {
		return nil, ErrTruncatedTile
	}
	if string(data[0:4]) != magic {
		return nil, errMagic
	}
	fields := make([]uint32, n)
	for i := range fields {
		fields[i] = le.Uint32(data[4+i*4:])
	}
	return fields, nil
}

// Magic returns the four-byte magic of a tile, or "" if data is too short.
func Magic(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	return string(data[0:4])
}
