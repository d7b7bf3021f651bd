// Package job turns manifests into pipelines and runs them.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dunamismax/thumbnailer/internal/domain"
	"github.com/dunamismax/thumbnailer/internal/pipeline"
	"github.com/dunamismax/thumbnailer/internal/processor"
	"github.com/dunamismax/thumbnailer/internal/telemetry"
	"github.com/dunamismax/thumbnailer/internal/transform"
)

var ErrStorageUnavailable = errors.New("object storage is not configured")

// ObjectStore is what object sources and outputs need from storage.Client.
type ObjectStore interface {
	pipeline.ObjectReader
	pipeline.ObjectWriter
}

type Runner struct {
	logger        *zap.Logger
	tracer        trace.Tracer
	metrics       *Metrics
	storage       ObjectStore
	httpClient    *http.Client
	maxInputBytes int64
	engine        string
	engineOptions processor.Options
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

func WithStorage(store ObjectStore) Option {
	return func(r *Runner) { r.storage = store }
}

func WithHTTPClient(client *http.Client) Option {
	return func(r *Runner) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithMaxInputBytes bounds remote downloads. Zero means unbounded.
func WithMaxInputBytes(n int64) Option {
	return func(r *Runner) { r.maxInputBytes = n }
}

// WithEngine sets the engine used by jobs that do not name one.
func WithEngine(name string, opts processor.Options) Option {
	return func(r *Runner) {
		r.engine = name
		r.engineOptions = opts
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:        zap.NewNop(),
		tracer:        telemetry.Tracer(),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		engine:        processor.EngineStd,
		engineOptions: processor.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build resolves every part of job without touching the image. A job that
// fails here never loads its source.
func (r *Runner) Build(job domain.Job) (*pipeline.Pipeline, pipeline.Output, error) {
	steps := make([]pipeline.Step, 0, len(job.Steps))
	for i, def := range job.Steps {
		step, err := transform.New(def.Action, transform.Options(def.Options))
		if err != nil {
			return nil, nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		steps = append(steps, step)
	}

	in, err := r.input(job.Source)
	if err != nil {
		return nil, nil, err
	}
	out, err := r.output(job)
	if err != nil {
		return nil, nil, err
	}

	p, err := processor.New(r.engineFor(job), r.engineOptions)
	if err != nil {
		return nil, nil, err
	}

	jobLogger := r.logger.With(zap.String("job_id", job.ID))
	metrics := r.metrics
	pl := pipeline.New(p,
		pipeline.WithLogger(jobLogger),
		pipeline.WithObserver(pipeline.ObserverFunc(func(step string, outcome pipeline.Outcome, elapsed time.Duration) {
			metrics.observeStep(step, outcome, elapsed)
		})),
	).Add(steps...).SetInput(in)
	return pl, out, nil
}

// Run executes one job on a fresh processor.
func (r *Runner) Run(ctx context.Context, job domain.Job) (pipeline.Result, error) {
	started := time.Now()
	engine := r.engineFor(job)
	status := domain.JobStatusFailed
	var res pipeline.Result

	ctx, span := r.tracer.Start(ctx, "job.run", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.engine", engine),
		attribute.String("job.source_type", job.Source.Type),
		attribute.String("job.output_type", job.Output.Type),
		attribute.Int("job.steps", len(job.Steps)),
	))
	defer span.End()
	defer func() {
		r.metrics.observeJob(engine, status, time.Since(started), res)
	}()

	pl, out, err := r.Build(job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return pipeline.Result{}, fmt.Errorf("job %s: %w", job.ID, err)
	}
	if closer, ok := pl.Processor().(io.Closer); ok {
		defer closer.Close()
	}

	res, err = pl.Run(ctx, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		r.logger.Warn("job failed",
			zap.String("job_id", job.ID),
			zap.String("engine", engine),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return pipeline.Result{}, fmt.Errorf("job %s: %w", job.ID, err)
	}

	status = domain.JobStatusSucceeded
	span.SetAttributes(
		attribute.String("job.location", res.Location),
		attribute.Int("job.width", res.Width),
		attribute.Int("job.height", res.Height),
	)
	span.SetStatus(codes.Ok, "rendered")
	r.logger.Info("job rendered",
		zap.String("job_id", job.ID),
		zap.String("engine", engine),
		zap.String("location", res.Location),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
		zap.Int("bytes", res.Bytes),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

type Report struct {
	JobID   string
	Result  pipeline.Result
	Err     error
	Elapsed time.Duration
}

// RunAll runs jobs with at most limit in flight, each on its own processor.
// Every job runs to completion; the returned error joins the failures.
func (r *Runner) RunAll(ctx context.Context, jobs []domain.Job, limit int) ([]Report, error) {
	reports := make([]Report, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(1, limit))
	for i, job := range jobs {
		g.Go(func() error {
			started := time.Now()
			res, err := r.Run(ctx, job)
			reports[i] = Report{JobID: job.ID, Result: res, Err: err, Elapsed: time.Since(started)}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, report := range reports {
		if report.Err != nil {
			errs = append(errs, report.Err)
		}
	}
	return reports, errors.Join(errs...)
}

func (r *Runner) engineFor(job domain.Job) string {
	if job.Engine != "" {
		return job.Engine
	}
	return r.engine
}

func (r *Runner) input(src domain.Source) (pipeline.Input, error) {
	switch src.Type {
	case domain.SourceTypeLocalFile:
		return pipeline.NewFileInput(src.Path), nil
	case domain.SourceTypeHTTP:
		return pipeline.NewRemoteInput(src.URL, r.httpClient, r.maxInputBytes), nil
	case domain.SourceTypeS3Object:
		if r.storage == nil {
			return nil, ErrStorageUnavailable
		}
		return pipeline.NewObjectStoreInput(r.storage, src.ObjectKey), nil
	default:
		return nil, fmt.Errorf("%w: unsupported source type %q", domain.ErrInvalidJob, src.Type)
	}
}

func (r *Runner) output(job domain.Job) (pipeline.Output, error) {
	switch job.Output.Type {
	case domain.OutputTypeLocalFile:
		return pipeline.FileOutput{Path: job.Output.Path, AddExtension: job.Output.AddExtension}, nil
	case domain.OutputTypeS3Object:
		if r.storage == nil {
			return nil, ErrStorageUnavailable
		}
		return pipeline.ObjectStoreOutput{Storage: r.storage, Prefix: job.Output.Prefix, Name: job.ID}, nil
	case domain.OutputTypeMemory:
		return &pipeline.MemoryOutput{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output type %q", domain.ErrInvalidJob, job.Output.Type)
	}
}
