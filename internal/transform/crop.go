package transform

import (
	"github.com/dunamismax/thumbnailer/internal/geometry"
	"github.com/dunamismax/thumbnailer/internal/processor"
)

type cropOptions struct {
	X      float64 `option:"x" default:"0" validate:"finite"`
	Y      float64 `option:"y" default:"0" validate:"finite"`
	Width  float64 `option:"width" default:"1" validate:"finite,gte=1"`
	Height float64 `option:"height" default:"1" validate:"finite,gte=1"`
}

// Crop cuts an explicit rectangle. An oversized rectangle is shrunk to the
// image and an overflowing origin is pulled back inside.
type Crop struct {
	options Options
}

func NewCrop(opts Options) *Crop {
	return &Crop{options: opts}
}

func (s *Crop) Name() string { return ActionCrop }

func (s *Crop) Requires() processor.Capability { return processor.CapCrop }

func (s *Crop) Apply(p processor.Processor) error {
	cropper, ok := processor.AsCropper(p)
	if !ok {
		return nil
	}

	var opts cropOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	src, err := sourceSize(s.Name(), p)
	if err != nil {
		return err
	}

	rect := geometry.ClampRect(geometry.Rectangle{
		X:      int(opts.X),
		Y:      int(opts.Y),
		Width:  int(opts.Width),
		Height: int(opts.Height),
	}, src)
	return cropper.Crop(rect.X, rect.Y, rect.Width, rect.Height)
}

type cropCenterOptions struct {
	Width  *float64 `option:"width" validate:"omitnil,finite,gte=1"`
	Height *float64 `option:"height" validate:"omitnil,finite,gte=1"`
}

// CropCenter cuts a centered rectangle. With only one side given the crop is
// square.
type CropCenter struct {
	options Options
}

func NewCropCenter(opts Options) *CropCenter {
	return &CropCenter{options: opts}
}

func (s *CropCenter) Name() string { return ActionCropCenter }

func (s *CropCenter) Requires() processor.Capability { return processor.CapCrop }

func (s *CropCenter) Apply(p processor.Processor) error {
	cropper, ok := processor.AsCropper(p)
	if !ok {
		return nil
	}

	var opts cropCenterOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}

	var width, height int
	switch {
	case opts.Width == nil && opts.Height == nil:
		return invalidParameter(s.Name(), `either "width" or "height" must be set`)
	case opts.Height == nil:
		width, height = int(*opts.Width), int(*opts.Width)
	case opts.Width == nil:
		width, height = int(*opts.Height), int(*opts.Height)
	default:
		width, height = int(*opts.Width), int(*opts.Height)
	}

	src, err := sourceSize(s.Name(), p)
	if err != nil {
		return err
	}

	rect := geometry.CenterRect(width, height, src)
	return cropper.Crop(rect.X, rect.Y, rect.Width, rect.Height)
}
