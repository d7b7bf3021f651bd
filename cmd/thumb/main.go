// Command thumb renders thumbnails from a manifest or a one-shot set of flags,
// either in process or by enqueueing the jobs for the worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/thumbnailer/internal/config"
	"github.com/dunamismax/thumbnailer/internal/domain"
	"github.com/dunamismax/thumbnailer/internal/job"
	"github.com/dunamismax/thumbnailer/internal/logging"
	"github.com/dunamismax/thumbnailer/internal/processor"
	"github.com/dunamismax/thumbnailer/internal/queue"
	"github.com/dunamismax/thumbnailer/internal/storage"
	"github.com/dunamismax/thumbnailer/internal/telemetry"
	"github.com/dunamismax/thumbnailer/internal/transform"
)

type options struct {
	configFile  string
	manifest    string
	enqueue     bool
	concurrency int
	engine      string
	in          string
	out         string
	steps       []string
	listActions bool
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("thumb", pflag.ExitOnError)
	flags.StringVarP(&opts.configFile, "config", "c", "", "Optional configuration file (yaml, json or toml).")
	flags.StringVarP(&opts.manifest, "manifest", "m", "", "YAML manifest with one job or a jobs list.")
	flags.BoolVar(&opts.enqueue, "enqueue", false, "Send the jobs to the worker queue instead of rendering here.")
	flags.IntVarP(&opts.concurrency, "concurrency", "j", 0, "Jobs rendered at once (default worker.concurrency).")
	flags.StringVarP(&opts.engine, "engine", "e", "", "Image engine: std, vips or lite (default engine.name).")
	flags.StringVarP(&opts.in, "in", "i", "", "Source image path or http(s) URL for a one-shot job.")
	flags.StringVarP(&opts.out, "out", "o", "", "Output path for a one-shot job.")
	flags.StringArrayVarP(&opts.steps, "step", "s", nil, `Transform step as "action:key=value,..."; repeat in order.`)
	flags.BoolVar(&opts.listActions, "list-actions", false, "Print the supported step actions and exit.")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: thumb [flags] (--manifest FILE | --in SRC --out DST --step STEP...)\n\n")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	if opts.listActions {
		fmt.Println(strings.Join(transform.Actions(), "\n"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "thumb:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.engine != "" {
		cfg.Engine.Name = strings.ToLower(strings.TrimSpace(opts.engine))
	}

	logger, syncLogs, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer syncLogs()

	jobs, err := loadJobs(opts)
	if err != nil {
		return err
	}

	if opts.enqueue {
		return enqueue(ctx, cfg.Queue, jobs, logger)
	}
	return render(ctx, cfg, opts, jobs, logger)
}

func loadJobs(opts options) ([]domain.Job, error) {
	switch {
	case opts.manifest != "" && opts.in != "":
		return nil, errors.New("--manifest and --in are mutually exclusive")
	case opts.manifest != "":
		return domain.LoadManifest(opts.manifest)
	case opts.in != "":
		j, err := oneShotJob(opts)
		if err != nil {
			return nil, err
		}
		return []domain.Job{j}, nil
	default:
		return nil, errors.New("nothing to do: pass --manifest or --in")
	}
}

func oneShotJob(opts options) (domain.Job, error) {
	j := domain.Job{
		ID:     uuid.NewString(),
		Engine: opts.engine,
		Output: domain.Output{Type: domain.OutputTypeLocalFile, Path: opts.out},
	}
	if strings.HasPrefix(opts.in, "http://") || strings.HasPrefix(opts.in, "https://") {
		j.Source = domain.Source{Type: domain.SourceTypeHTTP, URL: opts.in}
	} else {
		j.Source = domain.Source{Type: domain.SourceTypeLocalFile, Path: opts.in}
	}

	for _, raw := range opts.steps {
		step, err := domain.ParseStep(raw)
		if err != nil {
			return domain.Job{}, err
		}
		j.Steps = append(j.Steps, step)
	}

	j.Normalize()
	if err := j.Validate(); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

func enqueue(ctx context.Context, queueCfg config.QueueConfig, jobs []domain.Job, logger *zap.Logger) error {
	client := queue.NewClient(queueCfg.RedisClientOpt(), queue.ClientOptions{
		Queue:    queueCfg.Name,
		MaxRetry: queueCfg.MaxRetry,
		Timeout:  queueCfg.Timeout,
	})
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("queue client close failed", zap.Error(err))
		}
	}()

	var errs []error
	for _, j := range jobs {
		info, err := client.EnqueueJob(ctx, j)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", j.ID, err))
			continue
		}
		logger.Info("job enqueued",
			zap.String("job_id", j.ID),
			zap.String("task_id", info.ID),
			zap.String("queue", info.Queue),
		)
	}
	return errors.Join(errs...)
}

func render(ctx context.Context, cfg config.Config, opts options, jobs []domain.Job, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "thumbnailer-cli",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := processor.Startup(); err != nil {
		return fmt.Errorf("start image engine: %w", err)
	}
	defer processor.Shutdown()

	runnerOpts := []job.Option{
		job.WithLogger(logger),
		job.WithHTTPClient(&http.Client{Timeout: cfg.Input.HTTPTimeout}),
		job.WithMaxInputBytes(cfg.Input.MaxBytes),
		job.WithEngine(cfg.Engine.Name, processor.Options{
			JPEGQuality:    cfg.Engine.JPEGQuality,
			PreserveAlpha:  cfg.Engine.PreserveAlpha,
			AlphaMaskColor: processor.DefaultOptions().AlphaMaskColor,
		}),
	}
	if needsStorage(jobs) {
		storageClient, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		runnerOpts = append(runnerOpts, job.WithStorage(storageClient))
	}

	limit := opts.concurrency
	if limit <= 0 {
		limit = cfg.Worker.Concurrency
	}

	reports, err := job.NewRunner(runnerOpts...).RunAll(ctx, jobs, limit)
	for _, report := range reports {
		if report.Err != nil {
			fmt.Printf("FAIL %s %v\n", report.JobID, report.Err)
			continue
		}
		fmt.Printf("ok   %s %s %dx%d %d bytes (%s)\n",
			report.JobID,
			report.Result.Location,
			report.Result.Width,
			report.Result.Height,
			report.Result.Bytes,
			report.Elapsed.Round(time.Millisecond),
		)
	}
	return err
}

func needsStorage(jobs []domain.Job) bool {
	for _, j := range jobs {
		if j.Source.Type == domain.SourceTypeS3Object || j.Output.Type == domain.OutputTypeS3Object {
			return true
		}
	}
	return false
}
