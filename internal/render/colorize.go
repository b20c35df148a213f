// Package render turns tracker frames into displayable images: colorized
// user segmentation over grayscale depth, plus skeleton and box overlays.
package render

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/poseview/internal/sensor"
)

// DefaultMaxDepth is the depth in millimetres mapped to black.
const DefaultMaxDepth = 10000

// ErrInvalidDepth is returned when a frame carries no usable depth buffer.
var ErrInvalidDepth = errors.New("invalid depth frame")

// DefaultPalette holds the flat colors used for user labels, indexed by
// label modulo its length.
var DefaultPalette = []color.RGBA{
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 0, B: 128, A: 255},
	{R: 0, G: 128, B: 0, A: 255},
	{R: 128, G: 0, B: 0, A: 255},
	{R: 0, G: 128, B: 128, A: 255},
}

// Colorizer maps user labels to flat colors and background depth to gray.
// It reuses its output buffer across frames of the same size.
type Colorizer struct {
	Palette  []color.RGBA
	MaxDepth uint16

	img *image.RGBA
}

// NewColorizer creates a Colorizer with the default palette.
// A maxDepth of zero selects DefaultMaxDepth.
func NewColorizer(maxDepth uint16) *Colorizer {
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Colorizer{
		Palette:  DefaultPalette,
		MaxDepth: maxDepth,
	}
}

// Gray returns the gray level for a depth value: near is bright, far is dark,
// and no reading (zero) is white.
func (c *Colorizer) Gray(depth uint16) uint8 {
	max := uint32(c.MaxDepth)
	if max == 0 {
		max = DefaultMaxDepth
	}
	v := uint32(depth) * 255 / max
	if v > 255 {
		v = 255
	}
	return 255 - uint8(v)
}

// Colorize renders the frame. The returned image is owned by the Colorizer
// and is overwritten by the next call.
func (c *Colorizer) Colorize(f *sensor.UserFrame) (*image.RGBA, error) {
	if f == nil || !f.Depth.Valid() {
		return nil, ErrInvalidDepth
	}

	w, h := f.Depth.Width, f.Depth.Height
	if c.img == nil || c.img.Rect.Dx() != w || c.img.Rect.Dy() != h {
		c.img = image.NewRGBA(image.Rect(0, 0, w, h))
	}

	var labels []sensor.UserID
	if f.Users.Matches(f.Depth) {
		labels = f.Users.Labels
	}

	pix := c.img.Pix
	for i, d := range f.Depth.Pixels {
		o := i * 4
		if labels != nil && labels[i] != 0 && len(c.Palette) > 0 {
			col := c.Palette[int(labels[i])%len(c.Palette)]
			pix[o] = col.R
			pix[o+1] = col.G
			pix[o+2] = col.B
			pix[o+3] = 255
			continue
		}
		g := c.Gray(d)
		pix[o] = g
		pix[o+1] = g
		pix[o+2] = g
		pix[o+3] = 255
	}

	return c.img, nil
}

// ToMat converts an image to a BGR Mat for drawing and display.
// The caller must close the returned Mat.
func ToMat(img image.Image) (gocv.Mat, error) {
	return gocv.ImageToMatRGB(img)
}
