// Package icon resolves, caches and composites application icons as
// 32-bit premultiplied ARGB rasters.
package icon

import (
	"errors"
	"image"
	"sync/atomic"
)

// ErrUnsupported is returned by a Raster for formats it cannot decode.
var ErrUnsupported = errors.New("icon: unsupported image format")

// Image is a premultiplied ARGB pixel buffer shared between the catalog
// worker and the compositor thread by reference counting. The producer
// hands it over with one reference; consumers Ref before use and Unref
// after.
type Image struct {
	Width  int
	Height int
	Stride int
	// Pix holds 4 bytes per pixel in B, G, R, A order (little-endian
	// 32-bit ARGB), alpha premultiplied.
	Pix []byte

	refs atomic.Int32
}

// NewImage allocates a zeroed image with one reference.
func NewImage(w, h int) *Image {
	img := &Image{
		Width:  w,
		Height: h,
		Stride: w * 4,
		Pix:    make([]byte, w*h*4),
	}
	img.refs.Store(1)
	return img
}

// Ref takes an additional reference.
func (im *Image) Ref() *Image {
	im.refs.Add(1)
	return im
}

// Unref drops a reference. The buffer is garbage collected once
// unreachable; the count exists so callers can assert handoff
// discipline.
func (im *Image) Unref() {
	if im.refs.Add(-1) < 0 {
		panic("icon: unref of released image")
	}
}

// Refs returns the current reference count.
func (im *Image) Refs() int {
	return int(im.refs.Load())
}

// FromNRGBA converts a non-premultiplied NRGBA buffer into a
// premultiplied ARGB Image.
func FromNRGBA(src *image.NRGBA) *Image {
	b := src.Bounds()
	out := NewImage(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		srow := src.Pix[y*src.Stride:]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r := uint32(srow[x*4+0])
			g := uint32(srow[x*4+1])
			bl := uint32(srow[x*4+2])
			a := uint32(srow[x*4+3])
			drow[x*4+0] = uint8(bl * a / 255)
			drow[x*4+1] = uint8(g * a / 255)
			drow[x*4+2] = uint8(r * a / 255)
			drow[x*4+3] = uint8(a)
		}
	}
	return out
}

// ToNRGBA converts the image back to a non-premultiplied NRGBA buffer.
func (im *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		srow := im.Pix[y*im.Stride:]
		drow := out.Pix[y*out.Stride:]
		for x := 0; x < im.Width; x++ {
			bl := uint32(srow[x*4+0])
			g := uint32(srow[x*4+1])
			r := uint32(srow[x*4+2])
			a := uint32(srow[x*4+3])
			if a > 0 {
				drow[x*4+0] = uint8(r * 255 / a)
				drow[x*4+1] = uint8(g * 255 / a)
				drow[x*4+2] = uint8(bl * 255 / a)
			}
			drow[x*4+3] = uint8(a)
		}
	}
	return out
}

// FromBGRA wraps raw 32bpp pixel data (B, G, R, A, premultiplied) as an
// Image, copying the buffer. Used for icon bits supplied by X clients.
func FromBGRA(w, h, stride int, pix []byte) *Image {
	out := NewImage(w, h)
	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], pix[y*stride:y*stride+w*4])
	}
	return out
}
