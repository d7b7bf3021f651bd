package transform

import (
	"github.com/dunamismax/thumbnailer/internal/processor"
)

type rotateOptions struct {
	Degrees float64 `option:"degrees" default:"0" validate:"finite"`
}

// Rotate turns the image clockwise.
type Rotate struct {
	options Options
}

func NewRotate(opts Options) *Rotate {
	return &Rotate{options: opts}
}

func (s *Rotate) Name() string { return ActionRotate }

func (s *Rotate) Requires() processor.Capability { return processor.CapRotate }

func (s *Rotate) Apply(p processor.Processor) error {
	rotator, ok := processor.AsRotator(p)
	if !ok {
		return nil
	}

	var opts rotateOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	if _, err := sourceSize(s.Name(), p); err != nil {
		return err
	}
	return rotator.Rotate(opts.Degrees)
}

type flipOptions struct {
	Direction string `option:"direction" default:"horizontal" validate:"oneof=horizontal vertical"`
}

type Flip struct {
	options Options
}

func NewFlip(opts Options) *Flip {
	return &Flip{options: opts}
}

func (s *Flip) Name() string { return ActionFlip }

func (s *Flip) Requires() processor.Capability { return processor.CapFlip }

func (s *Flip) Apply(p processor.Processor) error {
	flipper, ok := processor.AsFlipper(p)
	if !ok {
		return nil
	}

	var opts flipOptions
	if err := decodeOptions(s.Name(), s.options, &opts); err != nil {
		return err
	}
	if _, err := sourceSize(s.Name(), p); err != nil {
		return err
	}
	flipper.Flip(processor.Direction(opts.Direction))
	return nil
}
