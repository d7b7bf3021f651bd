package transform

import (
	"strings"

	"github.com/dunamismax/thumbnailer/internal/geometry"
	"github.com/dunamismax/thumbnailer/internal/processor"
)

// Quadrant biases the crop of an adaptive resize along the overflowing axis.
type Quadrant string

const (
	QuadrantLeft   Quadrant = "L"
	QuadrantRight  Quadrant = "R"
	QuadrantCenter Quadrant = "C"
	QuadrantTop    Quadrant = "T"
	QuadrantBottom Quadrant = "B"
)

// ParseQuadrant accepts the single letter or the full name in any case.
// Anything else is Center.
func ParseQuadrant(raw string) Quadrant {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "l", "left":
		return QuadrantLeft
	case "r", "right":
		return QuadrantRight
	case "t", "top":
		return QuadrantTop
	case "b", "bottom":
		return QuadrantBottom
	default:
		return QuadrantCenter
	}
}

type adaptiveOptions struct {
	Width    float64 `option:"width" default:"0" validate:"finite,gte=0"`
	Height   float64 `option:"height" default:"0" validate:"finite,gte=0"`
	ResizeUp bool    `option:"resizeUp" default:"true"`
}

// anchorFunc picks the crop origin once the image covers target. Only one
// of the two offsets is ever non-zero.
type anchorFunc func(current, target geometry.Dimensions) (x, y int)

// adaptiveApply resizes p so it covers the requested box, then crops the
// overflow at the origin chosen by anchor.
func adaptiveApply(step string, p processor.Processor, opts adaptiveOptions, anchor anchorFunc) error {
	resizer, ok := processor.AsResizer(p)
	if !ok {
		return nil
	}
	cropper, ok := processor.AsCropper(p)
	if !ok {
		return nil
	}

	src, err := sourceSize(step, p)
	if err != nil {
		return err
	}

	width, height := opts.Width, opts.Height
	switch {
	case width == 0 && height == 0:
		return invalidParameter(step, `"width" or "height" must be greater than zero`)
	case width == 0:
		width = height * float64(src.Width) / float64(src.Height)
	case height == 0:
		height = width * float64(src.Height) / float64(src.Width)
	}

	target := geometry.Dimensions{Width: max(int(width), 1), Height: max(int(height), 1)}
	if !opts.ResizeUp {
		target.Width = min(target.Width, src.Width)
		target.Height = min(target.Height, src.Height)
	}

	size := geometry.FitStrict(src.Width, src.Height, target.Width, target.Height)
	if err := resizer.Resize(size.Width, size.Height); err != nil {
		return err
	}

	current := geometry.Dimensions{Width: p.Width(), Height: p.Height()}
	x, y := anchor(current, target)
	rect := geometry.ClampRect(geometry.Rectangle{
		X:      x,
		Y:      y,
		Width:  target.Width,
		Height: target.Height,
	}, current)
	return cropper.Crop(rect.X, rect.Y, rect.Width, rect.Height)
}

func centerAnchor(current, target geometry.Dimensions) (int, int) {
	if current.Width > target.Width {
		return (current.Width - target.Width) / 2, 0
	}
	if current.Height > target.Height {
		return 0, (current.Height - target.Height) / 2
	}
	return 0, 0
}

func quadrantAnchor(q Quadrant) anchorFunc {
	return func(current, target geometry.Dimensions) (int, int) {
		if current.Width > target.Width {
			switch q {
			case QuadrantLeft:
				return 0, 0
			case QuadrantRight:
				return current.Width - target.Width, 0
			}
		} else if current.Height > target.Height {
			switch q {
			case QuadrantTop:
				return 0, 0
			case QuadrantBottom:
				return 0, current.Height - target.Height
			}
		}
		return centerAnchor(current, target)
	}
}

func percentAnchor(percent float64) anchorFunc {
	return func(current, target geometry.Dimensions) (int, int) {
		if current.Width > target.Width {
			return geometry.OverflowOffset(current.Width-target.Width, percent), 0
		}
		if current.Height > target.Height {
			return 0, geometry.OverflowOffset(current.Height-target.Height, percent)
		}
		return 0, 0
	}
}

// AdaptiveResize fills width x height exactly, cropping the overflow around
// the center.
type AdaptiveResize struct {
	options Options
}

func NewAdaptiveResize(opts Options) *AdaptiveResize {
	return &AdaptiveResize{options: opts}
}

func (s *AdaptiveResize) Name() string { return ActionAdaptiveResize }

func (s *AdaptiveResize) Requires() processor.Capability {
	return processor.CapResize | processor.CapCrop
}

func (s *AdaptiveResize) Apply(p processor.Processor) error {
	if !Supported(s, p) {
		return nil
	}
	var opts adaptiveOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	return adaptiveApply(s.Name(), p, opts, centerAnchor)
}

type adaptiveQuadrantOptions struct {
	Width    float64 `option:"width" default:"0" validate:"finite,gte=0"`
	Height   float64 `option:"height" default:"0" validate:"finite,gte=0"`
	Position string  `option:"position" default:"C"`
	ResizeUp bool    `option:"resizeUp" default:"true"`
}

// AdaptiveResizeQuadrant is AdaptiveResize with the crop pinned to a side.
// A quadrant that does not match the overflowing axis falls back to center.
type AdaptiveResizeQuadrant struct {
	options Options
}

func NewAdaptiveResizeQuadrant(opts Options) *AdaptiveResizeQuadrant {
	return &AdaptiveResizeQuadrant{options: opts}
}

func (s *AdaptiveResizeQuadrant) Name() string { return ActionAdaptiveResizeQuadrant }

func (s *AdaptiveResizeQuadrant) Requires() processor.Capability {
	return processor.CapResize | processor.CapCrop
}

func (s *AdaptiveResizeQuadrant) Apply(p processor.Processor) error {
	if !Supported(s, p) {
		return nil
	}
	var opts adaptiveQuadrantOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	box := adaptiveOptions{Width: opts.Width, Height: opts.Height, ResizeUp: opts.ResizeUp}
	return adaptiveApply(s.Name(), p, box, quadrantAnchor(ParseQuadrant(opts.Position)))
}

type adaptivePercentOptions struct {
	Width    float64 `option:"width" default:"0" validate:"finite,gte=0"`
	Height   float64 `option:"height" default:"0" validate:"finite,gte=0"`
	Percent  float64 `option:"percent" default:"100" validate:"finite"`
	ResizeUp bool    `option:"resizeUp" default:"true"`
}

// AdaptiveResizePercent is AdaptiveResize with the crop offset placed at
// percent of the overflow, clamped to [1, 100].
type AdaptiveResizePercent struct {
	options Options
}

func NewAdaptiveResizePercent(opts Options) *AdaptiveResizePercent {
	return &AdaptiveResizePercent{options: opts}
}

func (s *AdaptiveResizePercent) Name() string { return ActionAdaptiveResizePercent }

func (s *AdaptiveResizePercent) Requires() processor.Capability {
	return processor.CapResize | processor.CapCrop
}

func (s *AdaptiveResizePercent) Apply(p processor.Processor) error {
	if !Supported(s, p) {
		return nil
	}
	var opts adaptivePercentOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	box := adaptiveOptions{Width: opts.Width, Height: opts.Height, ResizeUp: opts.ResizeUp}
	return adaptiveApply(s.Name(), p, box, percentAnchor(opts.Percent))
}
