package icon

import (
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// overlayScale shrinks the overlay relative to the app icon. The overlay
// is rendered at appSize/overlayScale per axis.
const overlayScale = 1.75

// BlendOverlay composites the overlay icon OVER the app icon, scaled
// with bilinear filtering and centered on the app icon's center. The
// inputs are not modified; a new image is returned.
func BlendOverlay(app, overlay *Image) *Image {
	if app == nil {
		return nil
	}
	if overlay == nil {
		return app
	}

	dstW := int(float64(app.Width)/overlayScale + 0.5)
	dstH := int(float64(app.Height)/overlayScale + 0.5)
	if dstW < 1 || dstH < 1 {
		return app
	}

	scaled := imaging.Resize(overlay.ToNRGBA(), dstW, dstH, imaging.Linear)

	out := app.ToNRGBA()
	offset := image.Pt((app.Width-dstW)/2, (app.Height-dstH)/2)
	rect := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(dstW, dstH))}
	xdraw.Draw(out, rect, scaled, image.Point{}, xdraw.Over)

	return FromNRGBA(out)
}
