package transform

import (
	"github.com/dunamismax/thumbnailer/internal/geometry"
	"github.com/dunamismax/thumbnailer/internal/processor"
)

type resizeOptions struct {
	Width    float64 `option:"width" default:"0" validate:"finite,gte=0"`
	Height   float64 `option:"height" default:"0" validate:"finite,gte=0"`
	ResizeUp bool    `option:"resizeUp" default:"true"`
}

// Resize shrinks (or, with resizeUp, grows) the image to fit within width x
// height. A zero bound leaves that axis free.
type Resize struct {
	options Options
}

func NewResize(opts Options) *Resize {
	return &Resize{options: opts}
}

func (s *Resize) Name() string { return ActionResize }

func (s *Resize) Requires() processor.Capability { return processor.CapResize }

func (s *Resize) Apply(p processor.Processor) error {
	resizer, ok := processor.AsResizer(p)
	if !ok {
		return nil
	}

	var opts resizeOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	src, err := sourceSize(s.Name(), p)
	if err != nil {
		return err
	}

	maxWidth, maxHeight := int(opts.Width), int(opts.Height)
	if !opts.ResizeUp {
		maxWidth = min(maxWidth, src.Width)
		maxHeight = min(maxHeight, src.Height)
	}

	size := geometry.FitWithinBox(src.Width, src.Height, maxWidth, maxHeight)
	return resizer.Resize(size.Width, size.Height)
}

type resizePercentOptions struct {
	Percent float64 `option:"percent" default:"100" validate:"finite"`
}

// ResizePercent scales both axes by percent.
type ResizePercent struct {
	options Options
}

func NewResizePercent(opts Options) *ResizePercent {
	return &ResizePercent{options: opts}
}

func (s *ResizePercent) Name() string { return ActionResizePercent }

func (s *ResizePercent) Requires() processor.Capability { return processor.CapResize }

func (s *ResizePercent) Apply(p processor.Processor) error {
	resizer, ok := processor.AsResizer(p)
	if !ok {
		return nil
	}

	var opts resizePercentOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	src, err := sourceSize(s.Name(), p)
	if err != nil {
		return err
	}

	size := geometry.ScaleByPercent(opts.Percent, src.Width, src.Height)
	return resizer.Resize(size.Width, size.Height)
}
