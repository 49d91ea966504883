//go:build govips && cgo

package imageprep

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsPreprocessor struct{}

func (govipsPreprocessor) PrepareJPEG(ctx context.Context, input []byte, maxDim, quality int) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer img.Close()

	width, height := img.Width(), img.Height()
	if width < 1 || height < 1 {
		return nil, 0, 0, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}

	if width > maxDim || height > maxDim {
		longest := width
		if height > width {
			longest = height
		}
		scale := float64(maxDim) / float64(longest)
		if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
			return nil, 0, 0, fmt.Errorf("resize image: %w", err)
		}
	}

	params := vips.NewJpegExportParams()
	params.Quality = quality
	data, _, err := img.ExportJpeg(params)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("export jpeg: %w", err)
	}

	return data, img.Width(), img.Height(), nil
}
