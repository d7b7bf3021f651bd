package processor

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// LiteProcessor only resamples. Crop, rotate and flip steps skip it.
type LiteProcessor struct {
	opts   Options
	img    image.Image
	format Format
}

var _ Resizer = (*LiteProcessor)(nil)

func NewLite(opts Options) *LiteProcessor {
	return &LiteProcessor{opts: opts}
}

func (p *LiteProcessor) Capabilities() Capability {
	return CapResize
}

func (p *LiteProcessor) Load(data []byte, format Format) error {
	img, err := decodeImage(data)
	if err != nil {
		return err
	}
	p.img = img
	p.format = format
	return nil
}

func (p *LiteProcessor) Encode() ([]byte, error) {
	return encodeImage(p.img, p.format, p.opts)
}

func (p *LiteProcessor) Width() int {
	if p.img == nil {
		return 0
	}
	return p.img.Bounds().Dx()
}

func (p *LiteProcessor) Height() int {
	if p.img == nil {
		return 0
	}
	return p.img.Bounds().Dy()
}

func (p *LiteProcessor) MimeType() string {
	return p.format.MimeType()
}

func (p *LiteProcessor) Extension() string {
	return p.format.Extension()
}

func (p *LiteProcessor) Resize(width, height int) error {
	if p.img == nil {
		return ErrNotLoaded
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: resize to %dx%d", ErrInvalidSize, width, height)
	}

	p.img = resize.Resize(uint(width), uint(height), p.img, resize.Lanczos3)
	return nil
}
