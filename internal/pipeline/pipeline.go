package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/thumbnailer/internal/processor"
)

var (
	ErrMissingInput    = errors.New("pipeline has no input")
	ErrMissingOutput   = errors.New("pipeline has no output")
	ErrAlreadyExecuted = errors.New("pipeline already executed")
)

// Step is the part of a transform the pipeline needs. transform.Step
// satisfies it.
type Step interface {
	Name() string
	Requires() processor.Capability
	Apply(p processor.Processor) error
}

type State int

const (
	StateBuilding State = iota
	StateExecuted
)

func (s State) String() string {
	if s == StateExecuted {
		return "executed"
	}
	return "building"
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Observer is told about every step the pipeline reaches.
type Observer interface {
	ObserveStep(step string, outcome Outcome, elapsed time.Duration)
}

type ObserverFunc func(step string, outcome Outcome, elapsed time.Duration)

func (f ObserverFunc) ObserveStep(step string, outcome Outcome, elapsed time.Duration) {
	f(step, outcome, elapsed)
}

type Option func(*Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// Pipeline applies an ordered list of steps to one processor. It runs once.
// A Pipeline is not safe for concurrent use; run independent pipelines in
// parallel instead.
type Pipeline struct {
	processor processor.Processor
	steps     []Step
	input     Input
	state     State

	logger   *zap.Logger
	observer Observer
}

func New(p processor.Processor, opts ...Option) *Pipeline {
	pl := &Pipeline{
		processor: p,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

// Add appends steps in execution order.
func (p *Pipeline) Add(steps ...Step) *Pipeline {
	for _, step := range steps {
		if step != nil {
			p.steps = append(p.steps, step)
		}
	}
	return p
}

func (p *Pipeline) SetInput(in Input) *Pipeline {
	p.input = in
	return p
}

func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

func (p *Pipeline) Processor() processor.Processor {
	return p.processor
}

// Run loads the input into the processor, applies every step in the order
// they were added and hands the encoded result to out. The pipeline is
// executed after the first call whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, out Output) (Result, error) {
	if p.state == StateExecuted {
		return Result{}, ErrAlreadyExecuted
	}
	p.state = StateExecuted

	if p.input == nil {
		return Result{}, ErrMissingInput
	}
	if out == nil {
		return Result{}, ErrMissingOutput
	}
	if p.processor == nil {
		return Result{}, fmt.Errorf("load stage: %w", processor.ErrNotLoaded)
	}

	data, err := p.input.Bytes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("input stage: %w", err)
	}
	format, err := p.input.Format(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("input stage: %w", err)
	}
	if err := p.processor.Load(data, format); err != nil {
		return Result{}, fmt.Errorf("load stage format=%s: %w", format, err)
	}
	p.logger.Debug("source loaded",
		zap.Stringer("format", format),
		zap.Int("width", p.processor.Width()),
		zap.Int("height", p.processor.Height()),
		zap.Int("bytes", len(data)),
	)

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := p.apply(i, step); err != nil {
			return Result{}, err
		}
	}

	encoded, err := p.processor.Encode()
	if err != nil {
		return Result{}, fmt.Errorf("encode stage: %w", err)
	}

	res, err := out.Persist(ctx, Rendered{
		Data:      encoded,
		MimeType:  p.processor.MimeType(),
		Extension: p.processor.Extension(),
		Width:     p.processor.Width(),
		Height:    p.processor.Height(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("output stage: %w", err)
	}
	return res, nil
}

func (p *Pipeline) apply(index int, step Step) error {
	started := time.Now()

	if !p.processor.Capabilities().Has(step.Requires()) {
		p.logger.Debug("step skipped",
			zap.Int("index", index),
			zap.String("step", step.Name()),
			zap.Stringer("requires", step.Requires()),
			zap.Stringer("capabilities", p.processor.Capabilities()),
		)
		p.observe(step.Name(), OutcomeSkipped, time.Since(started))
		return nil
	}

	if err := step.Apply(p.processor); err != nil {
		p.observe(step.Name(), OutcomeFailed, time.Since(started))
		return fmt.Errorf("transform stage step=%d action=%s: %w", index, step.Name(), err)
	}

	elapsed := time.Since(started)
	p.logger.Debug("step applied",
		zap.Int("index", index),
		zap.String("step", step.Name()),
		zap.Int("width", p.processor.Width()),
		zap.Int("height", p.processor.Height()),
		zap.Duration("elapsed", elapsed),
	)
	p.observe(step.Name(), OutcomeApplied, elapsed)
	return nil
}

func (p *Pipeline) observe(step string, outcome Outcome, elapsed time.Duration) {
	if p.observer != nil {
		p.observer.ObserveStep(step, outcome, elapsed)
	}
}
