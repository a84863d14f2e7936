package visualization

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"mrichange/internal/models"
	"mrichange/pkg/imageops"
)

// panelGap is the spacing in pixels between panel tiles.
const panelGap = 4

// Panel lays out fixed, registered and overlay side by side on a black
// background. All three must share the fixed image's dimensions.
func Panel(fixed, registered *models.Image, overlay image.Image) (*image.RGBA, error) {
	if fixed.Empty() || registered.Empty() || !fixed.SameSize(registered) {
		return nil, fmt.Errorf("panel images must be non-empty and equally sized")
	}
	if overlay.Bounds().Dx() != fixed.Width || overlay.Bounds().Dy() != fixed.Height {
		return nil, fmt.Errorf("overlay is %v, expected %dx%d", overlay.Bounds().Size(), fixed.Width, fixed.Height)
	}

	w, h := fixed.Width, fixed.Height
	out := image.NewRGBA(image.Rect(0, 0, 3*w+2*panelGap, h))
	draw.Draw(out, out.Bounds(), image.Black, image.Point{}, draw.Src)

	tiles := []image.Image{
		imageops.ToRGBA(imageops.Grayscale(fixed)),
		imageops.ToRGBA(imageops.Grayscale(registered)),
		overlay,
	}
	for i, tile := range tiles {
		x := i * (w + panelGap)
		draw.Draw(out, image.Rect(x, 0, x+w, h), tile, tile.Bounds().Min, draw.Src)
	}
	return out, nil
}

// SavePanel renders the panel and writes it to path.
func SavePanel(path string, fixed, registered *models.Image, overlay image.Image) error {
	panel, err := Panel(fixed, registered, overlay)
	if err != nil {
		return err
	}
	return imageops.SaveImage(path, panel)
}
