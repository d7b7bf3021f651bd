package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

const EnvPrefix = "THUMB"

type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Input   InputConfig   `mapstructure:"input"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

type EngineConfig struct {
	Name          string `mapstructure:"name"`
	JPEGQuality   int    `mapstructure:"jpeg_quality"`
	PreserveAlpha bool   `mapstructure:"preserve_alpha"`
}

type InputConfig struct {
	// MaxSize is a human readable size such as "32M"; MaxBytes is derived
	// from it by Load.
	MaxSize     string        `mapstructure:"max_bytes"`
	MaxBytes    int64         `mapstructure:"-"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

type QueueConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Name          string        `mapstructure:"name"`
	MaxRetry      int           `mapstructure:"max_retry"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	MaxActiveJobs  int    `mapstructure:"max_active_jobs"`
	LocalOutputDir string `mapstructure:"local_output_dir"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type TracingConfig struct {
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type WebhookConfig struct {
	SigningSecret  string        `mapstructure:"signing_secret"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// legacyEnv maps config keys to the bare variable names the deployment
// scripts already export.
var legacyEnv = map[string]string{
	"queue.redis_addr":        "REDIS_ADDR",
	"queue.redis_password":    "REDIS_PASSWORD",
	"queue.redis_db":          "REDIS_DB",
	"queue.name":              "ASYNC_QUEUE",
	"worker.concurrency":      "WORKER_CONCURRENCY",
	"worker.max_active_jobs":  "WORKER_MAX_ACTIVE_JOBS",
	"worker.local_output_dir": "WORKER_LOCAL_OUTPUT_DIR",
	"worker.metrics_addr":     "WORKER_METRICS_ADDR",
	"storage.endpoint":        "MINIO_ENDPOINT",
	"storage.access_key":      "MINIO_ACCESS_KEY",
	"storage.secret_key":      "MINIO_SECRET_KEY",
	"storage.bucket":          "MINIO_BUCKET",
	"storage.region":          "MINIO_REGION",
	"storage.use_ssl":         "MINIO_USE_SSL",
	"tracing.exporter":        "OTEL_TRACES_EXPORTER",
	"tracing.otlp_endpoint":   "OTEL_EXPORTER_OTLP_ENDPOINT",
	"webhook.signing_secret":  "WEBHOOK_SIGNING_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.name", "std")
	v.SetDefault("engine.jpeg_quality", 80)
	v.SetDefault("engine.preserve_alpha", true)

	v.SetDefault("input.max_bytes", "32M")
	v.SetDefault("input.http_timeout", 30*time.Second)

	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("queue.timeout", 3*time.Minute)

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.max_active_jobs", max(1, runtime.NumCPU()/2))
	v.SetDefault("worker.local_output_dir", "./.thumbnailer-output")
	v.SetDefault("worker.metrics_addr", ":9091")

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "thumbnailer")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.otlp_insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.initial_backoff", time.Second)
	v.SetDefault("webhook.max_backoff", 10*time.Second)
}

// Load reads defaults, then the optional file at path, then the environment.
// THUMB_QUEUE_REDIS_ADDR style variables win over the bare legacy names.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+envKey(key), env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	c.Engine.Name = strings.ToLower(strings.TrimSpace(c.Engine.Name))

	size := strings.TrimSpace(c.Input.MaxSize)
	switch size {
	case "", "0":
		c.Input.MaxBytes = 0
	default:
		n, err := bytefmt.ToBytes(size)
		if err != nil {
			return fmt.Errorf("input.max_bytes %q: %w", size, err)
		}
		c.Input.MaxBytes = int64(n)
	}

	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}
	if c.Worker.MaxActiveJobs < 1 {
		c.Worker.MaxActiveJobs = 1
	}
	return nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
