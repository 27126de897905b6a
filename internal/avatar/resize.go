package avatar

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// Size is the edge length of stored avatars.
const Size = 250

// Resizer rewrites an image file in place.
type Resizer interface {
	Resize(path string) error
}

// ImagingResizer scales images to a fixed square.
type ImagingResizer struct {
	Width  int
	Height int
}

// NewImagingResizer returns a resizer producing Size×Size images.
func NewImagingResizer() ImagingResizer {
	return ImagingResizer{Width: Size, Height: Size}
}

// Resize decodes the file at path, scales it and encodes it back using the
// format implied by the file extension.
func (r ImagingResizer) Resize(path string) error {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	dst := imaging.Resize(img, r.Width, r.Height, imaging.Lanczos)
	if err := imaging.Save(dst, path); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}
