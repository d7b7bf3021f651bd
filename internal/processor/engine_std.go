package processor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// StdProcessor is the pure Go engine: x/image/draw for resampling and
// imaging for crop, rotate and flip. It needs no cgo.
type StdProcessor struct {
	opts   Options
	img    image.Image
	format Format
}

var (
	_ Resizer = (*StdProcessor)(nil)
	_ Cropper = (*StdProcessor)(nil)
	_ Rotator = (*StdProcessor)(nil)
	_ Flipper = (*StdProcessor)(nil)
)

func NewStd(opts Options) *StdProcessor {
	return &StdProcessor{opts: opts}
}

func (p *StdProcessor) Capabilities() Capability {
	return CapAll
}

func (p *StdProcessor) Load(data []byte, format Format) error {
	img, err := decodeImage(data)
	if err != nil {
		return err
	}
	p.img = img
	p.format = format
	return nil
}

func (p *StdProcessor) Encode() ([]byte, error) {
	return encodeImage(p.img, p.format, p.opts)
}

func (p *StdProcessor) Width() int {
	if p.img == nil {
		return 0
	}
	return p.img.Bounds().Dx()
}

func (p *StdProcessor) Height() int {
	if p.img == nil {
		return 0
	}
	return p.img.Bounds().Dy()
}

func (p *StdProcessor) MimeType() string {
	return p.format.MimeType()
}

func (p *StdProcessor) Extension() string {
	return p.format.Extension()
}

func (p *StdProcessor) Resize(width, height int) error {
	if p.img == nil {
		return ErrNotLoaded
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: resize to %dx%d", ErrInvalidSize, width, height)
	}

	dst, op := p.canvas(width, height)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), p.img, p.img.Bounds(), op, nil)
	p.img = dst
	return nil
}

func (p *StdProcessor) Crop(x, y, width, height int) error {
	if p.img == nil {
		return ErrNotLoaded
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: crop to %dx%d", ErrInvalidSize, width, height)
	}

	bounds := p.img.Bounds()
	rect := image.Rect(x, y, x+width, y+height).Add(bounds.Min)
	if !rect.In(bounds) {
		return fmt.Errorf("%w: crop %v exceeds image bounds %v", ErrInvalidSize, rect, bounds)
	}

	p.img = imaging.Crop(p.img, rect)
	return nil
}

// Rotate turns the bitmap clockwise. imaging rotates counter-clockwise, hence
// the negated angle. Uncovered corners are transparent when alpha is kept and
// filled with the mask colour otherwise.
func (p *StdProcessor) Rotate(degrees float64) error {
	if p.img == nil {
		return ErrNotLoaded
	}

	var background color.Color = color.Transparent
	if !p.keepsAlpha() {
		background = p.opts.AlphaMaskColor
	}
	p.img = imaging.Rotate(p.img, -degrees, background)
	return nil
}

func (p *StdProcessor) Flip(direction Direction) {
	if p.img == nil {
		return
	}

	switch direction {
	case DirectionHorizontal:
		p.img = imaging.FlipH(p.img)
	case DirectionVertical:
		p.img = imaging.FlipV(p.img)
	}
}

func (p *StdProcessor) keepsAlpha() bool {
	return p.opts.PreserveAlpha && (p.format == FormatPNG || p.format == FormatGIF)
}

// canvas allocates the resize target. Alpha-keeping formats start fully
// transparent and are copied with draw.Src; everything else is composited
// over the mask colour.
func (p *StdProcessor) canvas(width, height int) (*image.NRGBA, draw.Op) {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if p.keepsAlpha() {
		return dst, draw.Src
	}

	mask := p.opts.AlphaMaskColor
	mask.A = 255
	draw.Draw(dst, dst.Bounds(), image.NewUniform(mask), image.Point{}, draw.Src)
	return dst, draw.Over
}
