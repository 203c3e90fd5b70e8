package formats

import (
	"errors"
	"fmt"
)

// CMPT errors.
var ErrInvalidCMPTMagic = errors.New("invalid CMPT magic: expected 'cmpt'")

// CMPTHeaderSize is the fixed size of the cmpt header.
const CMPTHeaderSize = 16

// EncodeCMPT concatenates inner tiles into a composite tile. Each inner tile
// is zero-padded to an 8-byte boundary and its own byteLength field is
// updated to include the padding.
func EncodeCMPT(tiles [][]byte) ([]byte, error) {
	out := make([]byte, CMPTHeaderSize)
	for i, t := range tiles {
		if len(t) < 12 {
			return nil, fmt.Errorf("%w: inner tile %d", ErrTruncatedTile, i)
		}
		padded := padTo(t, 0, 8, 0)
		if len(padded) != len(t) {
			le.PutUint32(padded[8:], uint32(len(padded)))
		}
		out = append(out, padded...)
	}
	putHeader(out, "cmpt", 1, uint32(len(out)), uint32(len(tiles)))
	return out, nil
}

// ParseCMPT splits a composite tile into its inner tiles.
func ParseCMPT(data []byte) ([][]byte, error) {
	h, err := readHeader(data, "cmpt", 3, ErrInvalidCMPTMagic)
	if err != nil {
		return nil, err
	}
	if h[0] != 1 {
		return nil, fmt.Errorf("%w: cmpt %d", ErrUnsupportedTile, h[0])
	}
	if int(h[1]) != len(data) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrInvalidLength, h[1], len(data))
	}

	tiles := make([][]byte, 0, h[2])
	off := CMPTHeaderSize
	for i := 0; i < int(h[2]); i++ {
		if off+12 > len(data) {
			return nil, fmt.Errorf("%w: inner tile %d header", ErrTruncatedTile, i)
		}
		n := int(le.Uint32(data[off+8:]))
		if n < 12 || off+n > len(data) {
			return nil, fmt.Errorf("%w: inner tile %d of %d bytes", ErrTruncatedTile, i, n)
		}
		tiles = append(tiles, data[off:off+n])
		off += n
	}
	return tiles, nil
}
