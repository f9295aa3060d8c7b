// Package imageproc implements the scale and rotate operations.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/disintegration/imaging"
)

// Transformer applies op with parameter to an encoded image and returns the
// result in the same format. ext selects the codec, e.g. ".png".
type Transformer func(src []byte, ext string, op domain.TaskType, parameter int) ([]byte, error)

// Transform is the default Transformer.
func Transform(src []byte, ext string, op domain.TaskType, parameter int) ([]byte, error) {
	format, err := imaging.FormatFromFilename("image" + ext)
	if err != nil {
		return nil, fmt.Errorf("unsupported image format %q: %w", ext, err)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var out image.Image
	switch op {
	case domain.TaskTypeScale:
		out, err = scale(img, parameter)
		if err != nil {
			return nil, err
		}
	case domain.TaskTypeRotate:
		// counter-clockwise, canvas grows to fit
		out = imaging.Rotate(img, float64(parameter), color.Transparent)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func scale(img image.Image, percent int) (image.Image, error) {
	if percent <= 0 {
		return nil, fmt.Errorf("scale percent must be positive, got %d", percent)
	}

	bounds := img.Bounds()
	width := bounds.Dx() * percent / 100
	height := bounds.Dy() * percent / 100
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("scaling %dx%d by %d%% leaves an empty image", bounds.Dx(), bounds.Dy(), percent)
	}

	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}
