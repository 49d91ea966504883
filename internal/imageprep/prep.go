// Package imageprep normalizes uploaded room photos before they are sent
// to the generation provider: decode, downscale to the provider's payload
// limit, re-encode as JPEG.
package imageprep

import (
	"context"
	"errors"
)

const (
	// DefaultMaxDimension keeps provider payloads small without losing the
	// room's structure.
	DefaultMaxDimension = 1536
	DefaultJPEGQuality  = 85
)

var ErrInvalidImage = errors.New("invalid source image")

type Preprocessor interface {
	// PrepareJPEG decodes input (JPEG, PNG or WebP), scales it down so the
	// longest side is at most maxDim, and re-encodes as JPEG. Images
	// already within bounds are re-encoded without scaling.
	PrepareJPEG(ctx context.Context, input []byte, maxDim, quality int) ([]byte, int, int, error)
}

func New() (Preprocessor, error) {
	return newPreprocessor()
}
