package processor

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
)

var (
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrUnknownEngine        = errors.New("unknown processor engine")
	ErrNotLoaded            = errors.New("processor has no image loaded")
	ErrInvalidSize          = errors.New("invalid target size")
)

const (
	EngineStd  = "std"
	EngineVips = "vips"
	EngineLite = "lite"
)

// Capability is the set of geometry operations a Processor declares. Steps
// consult it before touching the processor.
type Capability uint8

const (
	CapResize Capability = 1 << iota
	CapCrop
	CapRotate
	CapFlip

	CapNone Capability = 0
	CapAll             = CapResize | CapCrop | CapRotate | CapFlip
)

// Has reports whether every capability in want is present in c.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}

	names := make([]string, 0, 4)
	for _, entry := range []struct {
		bit  Capability
		name string
	}{
		{CapResize, "resize"},
		{CapCrop, "crop"},
		{CapRotate, "rotate"},
		{CapFlip, "flip"},
	} {
		if c.Has(entry.bit) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// Processor is a mutable bitmap handle. Width and Height report the current
// bitmap and change after every successful geometry operation.
type Processor interface {
	Capabilities() Capability
	Load(data []byte, format Format) error
	Encode() ([]byte, error)
	Width() int
	Height() int
	MimeType() string
	Extension() string
}

type Resizer interface {
	Resize(width, height int) error
}

type Cropper interface {
	Crop(x, y, width, height int) error
}

// Rotator rotates clockwise by degrees. Engines that cannot perform a given
// rotation return ErrUnsupportedOperation.
type Rotator interface {
	Rotate(degrees float64) error
}

// Flipper mirrors the bitmap. Flip is best effort: on failure the bitmap is
// left as it was.
type Flipper interface {
	Flip(direction Direction)
}

type Direction string

const (
	DirectionHorizontal Direction = "horizontal"
	DirectionVertical   Direction = "vertical"
)

func AsResizer(p Processor) (Resizer, bool) {
	if p == nil || !p.Capabilities().Has(CapResize) {
		return nil, false
	}
	r, ok := p.(Resizer)
	return r, ok
}

func AsCropper(p Processor) (Cropper, bool) {
	if p == nil || !p.Capabilities().Has(CapCrop) {
		return nil, false
	}
	c, ok := p.(Cropper)
	return c, ok
}

func AsRotator(p Processor) (Rotator, bool) {
	if p == nil || !p.Capabilities().Has(CapRotate) {
		return nil, false
	}
	r, ok := p.(Rotator)
	return r, ok
}

func AsFlipper(p Processor) (Flipper, bool) {
	if p == nil || !p.Capabilities().Has(CapFlip) {
		return nil, false
	}
	f, ok := p.(Flipper)
	return f, ok
}

// Format is the source format detected by the input. FormatRaw covers bytes
// handed over without a detected type; they are decoded by content and
// encoded as JPEG.
type Format int

const (
	FormatRaw Format = iota
	FormatJPEG
	FormatPNG
	FormatGIF
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	default:
		return "raw"
	}
}

func (f Format) MimeType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatGIF:
		return ".gif"
	default:
		return ".jpg"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpg", "jpeg", "image/jpeg":
		return FormatJPEG, nil
	case "png", "image/png":
		return FormatPNG, nil
	case "gif", "image/gif":
		return FormatGIF, nil
	case "", "raw":
		return FormatRaw, nil
	default:
		return FormatRaw, fmt.Errorf("unsupported format: %s", s)
	}
}

type Options struct {
	JPEGQuality    int
	PreserveAlpha  bool
	AlphaMaskColor color.NRGBA
}

func DefaultOptions() Options {
	return Options{
		JPEGQuality:    80,
		PreserveAlpha:  true,
		AlphaMaskColor: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

func (o Options) quality() int {
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		return 80
	}
	return o.JPEGQuality
}

// New builds a fresh processor for the named engine. Every job needs its own
// instance; processors are not safe for concurrent use.
func New(engine string, opts Options) (Processor, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineStd:
		return NewStd(opts), nil
	case EngineLite:
		return NewLite(opts), nil
	case EngineVips:
		return newVips(opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, engine)
	}
}
