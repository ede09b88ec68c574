// Package camera produces frames for the scanner. Every frame is scaled to
// the requested size and re-encoded as JPEG, so bin geometry can assume a
// fixed frame size.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"

	"github.com/buildingco2/tracker/pkg/core"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrClosed is returned by Frame after Close.
var ErrClosed = errors.New("camera closed")

// ErrFrameSkipped wraps a transient capture failure. The source is still
// usable and the caller should try again on its next cycle.
var ErrFrameSkipped = errors.New("frame skipped")

// Source yields frames. An error from Frame ends the session using it,
// unless it wraps ErrFrameSkipped.
type Source interface {
	Frame(ctx context.Context) (core.Frame, error)
	Close() error
}

// Size is the frame resolution sources normalize to.
type Size struct {
	Width  int
	Height int
}

func (s Size) orDefault() Size {
	if s.Width <= 0 || s.Height <= 0 {
		return Size{Width: DefaultWidth, Height: DefaultHeight}
	}
	return s
}

// normalize decodes data, resizes to size when needed and encodes as JPEG.
func normalize(data []byte, size Size) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	b := img.Bounds()
	if b.Dx() != size.Width || b.Dy() != size.Height {
		dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
