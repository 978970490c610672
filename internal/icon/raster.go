package icon

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Raster decodes an image file into a premultiplied ARGB buffer. The
// default implementation handles PNG; SVG decoding is supplied by the
// host through its own Raster.
type Raster interface {
	LoadImage(path string) (*Image, error)
}

// PNGRaster decodes PNG files through the imaging package.
type PNGRaster struct{}

// LoadImage decodes path into an Image. Non-PNG files return
// ErrUnsupported.
func (PNGRaster) LoadImage(path string) (*Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return nil, ErrUnsupported
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return FromNRGBA(imaging.Clone(img)), nil
}
