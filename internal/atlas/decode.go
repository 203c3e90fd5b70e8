package atlas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// ErrUnsupportedTexture is returned for texture data no decoder recognizes.
var ErrUnsupportedTexture = errors.New("unsupported texture format")

// Image formats recognized by Sniff.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatWebP = "webp"
	FormatTGA  = "tga"
)

// MIME types written into tiles.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
)

// Sniff identifies an image format from its leading bytes, falling back to
// the declared MIME type and file extension for formats without a signature.
func Sniff(tex *mesh.Texture) string {
	d := tex.Data
	switch {
	case bytes.HasPrefix(d, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(d, []byte{0xff, 0xd8, 0xff}):
		return FormatJPEG
	case bytes.HasPrefix(d, []byte("GIF8")):
		return FormatGIF
	case len(d) >= 12 && string(d[0:4]) == "RIFF" && string(d[8:12]) == "WEBP":
		return FormatWebP
	case bytes.HasPrefix(d, []byte("BM")):
		return FormatBMP
	}
	mime := strings.ToLower(tex.MIME)
	ext := strings.ToLower(filepath.Ext(tex.Name))
	if mime == "image/x-tga" || mime == "image/tga" || ext == ".tga" {
		return FormatTGA
	}
	return ""
}

// MIMEOf returns the MIME type for a sniffed format, or "" if tiles cannot embed it.
func MIMEOf(format string) string {
	switch format {
	case FormatPNG:
		return MIMEPNG
	case FormatJPEG:
		return MIMEJPEG
	case FormatWebP:
		return MIMEWebP
	}
	return ""
}

// Decode decodes a texture with the decoder matching its format.
func Decode(tex *mesh.Texture) (image.Image, error) {
	r := bytes.NewReader(tex.Data)
	var (
		img image.Image
		err error
	)
	switch format := Sniff(tex); format {
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatJPEG:
		img, err = jpeg.Decode(r)
	case FormatGIF:
		img, err = gif.Decode(r)
	case FormatBMP:
		img, err = bmp.Decode(r)
	case FormatWebP:
		img, err = webp.Decode(r)
	case FormatTGA:
		img, err = tga.Decode(r)
	default:
		return nil, fmt.Errorf("%w: texture %q", ErrUnsupportedTexture, tex.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding texture %q: %w", tex.Name, err)
	}
	return img, nil
}
