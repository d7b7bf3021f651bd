//go:build govips && cgo

package processor

import (
	"fmt"
	"math"

	"github.com/davidbyttow/govips/v2/vips"
)

// VipsProcessor runs geometry through libvips. Rotation is limited to
// multiples of 90 degrees.
type VipsProcessor struct {
	opts   Options
	img    *vips.ImageRef
	format Format
}

var (
	_ Resizer = (*VipsProcessor)(nil)
	_ Cropper = (*VipsProcessor)(nil)
	_ Rotator = (*VipsProcessor)(nil)
	_ Flipper = (*VipsProcessor)(nil)
)

func NewVips(opts Options) *VipsProcessor {
	return &VipsProcessor{opts: opts}
}

func (p *VipsProcessor) Capabilities() Capability {
	return CapAll
}

func (p *VipsProcessor) Load(data []byte, format Format) error {
	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return fmt.Errorf("decode source image: %w", err)
	}
	if p.img != nil {
		p.img.Close()
	}
	p.img = img
	p.format = format
	return nil
}

func (p *VipsProcessor) Close() error {
	if p.img != nil {
		p.img.Close()
		p.img = nil
	}
	return nil
}

func (p *VipsProcessor) Width() int {
	if p.img == nil {
		return 0
	}
	return p.img.Width()
}

func (p *VipsProcessor) Height() int {
	if p.img == nil {
		return 0
	}
	return p.img.Height()
}

func (p *VipsProcessor) MimeType() string {
	return p.format.MimeType()
}

func (p *VipsProcessor) Extension() string {
	return p.format.Extension()
}

func (p *VipsProcessor) Resize(width, height int) error {
	if p.img == nil {
		return ErrNotLoaded
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: resize to %dx%d", ErrInvalidSize, width, height)
	}

	// SizeForce ignores the aspect ratio.
	if err := p.img.ThumbnailWithSize(width, height, vips.InterestingNone, vips.SizeForce); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	if p.img.Width() != width || p.img.Height() != height {
		return fmt.Errorf("%w: resized to %dx%d, want %dx%d", ErrInvalidSize, p.img.Width(), p.img.Height(), width, height)
	}
	return nil
}

func (p *VipsProcessor) Crop(x, y, width, height int) error {
	if p.img == nil {
		return ErrNotLoaded
	}
	if err := p.img.ExtractArea(x, y, width, height); err != nil {
		return fmt.Errorf("crop image: %w", err)
	}
	return nil
}

func (p *VipsProcessor) Rotate(degrees float64) error {
	if p.img == nil {
		return ErrNotLoaded
	}
	if math.Mod(degrees, 90) != 0 {
		return fmt.Errorf("%w: libvips cannot rotate %v degrees, only multiples of 90", ErrUnsupportedOperation, degrees)
	}

	var angle vips.Angle
	switch int(math.Mod(math.Mod(degrees, 360)+360, 360)) {
	case 90:
		angle = vips.Angle90
	case 180:
		angle = vips.Angle180
	case 270:
		angle = vips.Angle270
	default:
		return nil
	}

	if err := p.img.Rotate(angle); err != nil {
		return fmt.Errorf("rotate image: %w", err)
	}
	return nil
}

func (p *VipsProcessor) Flip(direction Direction) {
	if p.img == nil {
		return
	}

	switch direction {
	case DirectionHorizontal:
		_ = p.img.Flip(vips.DirectionHorizontal)
	case DirectionVertical:
		_ = p.img.Flip(vips.DirectionVertical)
	}
}

func (p *VipsProcessor) Encode() ([]byte, error) {
	if p.img == nil {
		return nil, ErrNotLoaded
	}

	switch p.format {
	case FormatPNG:
		data, _, err := p.img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case FormatGIF:
		data, _, err := p.img.ExportGIF(vips.NewGifExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
		return data, nil
	default:
		params := vips.NewJpegExportParams()
		params.Quality = p.opts.quality()
		data, _, err := p.img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	}
}
