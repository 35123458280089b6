package images

import (
	"bytes"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// Format is the encoding of a still image.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ErrEmpty is returned when there is no image data to decode.
var ErrEmpty = errors.New("empty image data")

// Sniff identifies the format of an encoded image from its magic bytes.
func Sniff(data []byte) (Format, bool) {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP, true
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG, true
	case len(data) >= 8 && bytes.Equal(data[0:8], []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, true
	}
	return "", false
}

// Decode decodes a JPEG, PNG or WebP image.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - image.Image: The decoded image.
//   - Format: The detected format.
//   - error: ErrEmpty, an unknown format or a decode failure.
func Decode(data []byte) (image.Image, Format, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	format, ok := Sniff(data)
	if !ok {
		return nil, "", errors.New("unknown image format")
	}

	var (
		img image.Image
		err error
	)
	if format == FormatWebP {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, format, errors.Wrapf(err, "failed to decode %s", format)
	}
	return img, format, nil
}
