package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dunamismax/thumbnailer/internal/geometry"
	"github.com/dunamismax/thumbnailer/internal/processor"
)

const (
	ActionResize                 = "resize"
	ActionResizePercent          = "resize_percent"
	ActionCrop                   = "crop"
	ActionCropCenter             = "crop_center"
	ActionAdaptiveResize         = "adaptive_resize"
	ActionAdaptiveResizeQuadrant = "adaptive_resize_quadrant"
	ActionAdaptiveResizePercent  = "adaptive_resize_percent"
	ActionRotate                 = "rotate"
	ActionFlip                   = "flip"
)

// Step is one transform in a pipeline.
//
// Apply is a no-op returning nil when the processor lacks a capability from
// Requires. Parameter problems are reported as ErrInvalidParameter before the
// processor is touched.
type Step interface {
	Name() string
	Requires() processor.Capability
	Apply(p processor.Processor) error
}

var registry = map[string]func(Options) Step{
	ActionResize:                 func(o Options) Step { return NewResize(o) },
	ActionResizePercent:          func(o Options) Step { return NewResizePercent(o) },
	ActionCrop:                   func(o Options) Step { return NewCrop(o) },
	ActionCropCenter:             func(o Options) Step { return NewCropCenter(o) },
	ActionAdaptiveResize:         func(o Options) Step { return NewAdaptiveResize(o) },
	ActionAdaptiveResizeQuadrant: func(o Options) Step { return NewAdaptiveResizeQuadrant(o) },
	ActionAdaptiveResizePercent:  func(o Options) Step { return NewAdaptiveResizePercent(o) },
	ActionRotate:                 func(o Options) Step { return NewRotate(o) },
	ActionFlip:                   func(o Options) Step { return NewFlip(o) },
}

// New builds the step registered for action.
func New(action string, opts Options) (Step, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return build(opts), nil
}

func Actions() []string {
	actions := make([]string, 0, len(registry))
	for action := range registry {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Supported reports whether p declares everything s needs.
func Supported(s Step, p processor.Processor) bool {
	return p != nil && p.Capabilities().Has(s.Requires())
}

func sourceSize(step string, p processor.Processor) (geometry.Dimensions, error) {
	size := geometry.Dimensions{Width: p.Width(), Height: p.Height()}
	if size.Width <= 0 || size.Height <= 0 {
		return size, fmt.Errorf("%s: %w", step, processor.ErrNotLoaded)
	}
	return size, nil
}
