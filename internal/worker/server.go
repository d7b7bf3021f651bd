package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/thumbnailer/internal/config"
	"github.com/dunamismax/thumbnailer/internal/domain"
	"github.com/dunamismax/thumbnailer/internal/job"
	"github.com/dunamismax/thumbnailer/internal/pipeline"
	"github.com/dunamismax/thumbnailer/internal/queue"
	"github.com/dunamismax/thumbnailer/internal/telemetry"
	"github.com/dunamismax/thumbnailer/internal/transform"
	"github.com/dunamismax/thumbnailer/internal/webhook"
)

type Server struct {
	logger   *zap.Logger
	server   *asynq.Server
	sem      chan struct{}
	runner   jobRunner
	webhooks webhookSender
	metrics  *metrics
	tracer   trace.Tracer
}

type jobRunner interface {
	Run(ctx context.Context, job domain.Job) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint string, n webhook.Notification) error
}

// NewServer builds a worker that renders thumbnail tasks with a job.Runner
// configured from runnerOpts. Job and step metrics share the worker's
// registry.
func NewServer(
	logger *zap.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	webhookClient *webhook.Client,
	runnerOpts ...job.Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := newMetrics()

	opts := append([]job.Option{
		job.WithLogger(logger),
		job.WithMetrics(job.NewMetrics(m.registry)),
	}, runnerOpts...)

	s := &Server{
		logger:  logger,
		sem:     make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		runner:  job.NewRunner(opts...),
		metrics: m,
		tracer:  telemetry.Tracer(),
	}
	if webhookClient != nil {
		s.webhooks = webhookClient
	}

	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			Logger:   logger.Named("asynq").Sugar(),
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("task failed",
					zap.String("type", task.Type()),
					zap.Int("retry", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)
	return s
}

func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRenderThumbnail, s.handleRender)
	return mux
}

func (s *Server) handleRender(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	status := domain.JobStatusFailed
	sourceType := "unknown"
	defer func() {
		s.metrics.taskDuration.WithLabelValues(sourceType, status).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(sourceType, status).Inc()
	}()

	payload, err := queue.ParseRenderPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	j := payload.Job
	j.Normalize()
	sourceType = j.Source.Type

	ctx, span := s.tracer.Start(ctx, "worker.render_thumbnail", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", j.ID),
		attribute.String("job.source_type", j.Source.Type),
		attribute.Int("job.steps", len(j.Steps)),
	)
	defer span.End()

	if err := j.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid job")
		s.notify(ctx, payload, j, webhook.EventJobFailed, nil, err)
		return fmt.Errorf("validate job: %w: %w", err, asynq.SkipRetry)
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Info("rendering",
		zap.String("job_id", j.ID),
		zap.String("source_type", j.Source.Type),
		zap.String("output_type", j.Output.Type),
		zap.Int("steps", len(j.Steps)),
	)

	res, err := s.runner.Run(ctx, j)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		if permanent(err) {
			s.notify(ctx, payload, j, webhook.EventJobFailed, nil, err)
			return fmt.Errorf("render: %w: %w", err, asynq.SkipRetry)
		}
		if last(ctx) {
			s.notify(ctx, payload, j, webhook.EventJobFailed, nil, err)
		}
		return fmt.Errorf("render: %w", err)
	}

	status = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "rendered")
	s.notify(ctx, payload, j, webhook.EventJobCompleted, &res, nil)
	return nil
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidJob) ||
		errors.Is(err, transform.ErrInvalidParameter) ||
		errors.Is(err, transform.ErrUnknownAction) ||
		errors.Is(err, pipeline.ErrNotFound) ||
		errors.Is(err, pipeline.ErrUnsupportedFormat) ||
		errors.Is(err, job.ErrStorageUnavailable)
}

func last(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried >= maxRetry
}

// notify delivers the job outcome when the job asked for it. Delivery
// failures are counted and logged but never fail the task.
func (s *Server) notify(ctx context.Context, payload queue.RenderPayload, j domain.Job, event string, res *pipeline.Result, jobErr error) {
	if j.WebhookURL == "" || s.webhooks == nil {
		return
	}

	n := webhook.Notification{
		Event:       event,
		JobID:       j.ID,
		Status:      domain.JobStatusFailed,
		SourceType:  j.Source.Type,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
	}
	if res != nil {
		n.Status = domain.JobStatusSucceeded
		n.Output = webhook.ThumbnailFrom(*res)
	}
	if jobErr != nil {
		n.Error = jobErr.Error()
	}

	if err := s.webhooks.Send(ctx, j.WebhookURL, n); err != nil {
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		s.logger.Warn("webhook delivery failed",
			zap.String("job_id", j.ID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
