package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/thumbnailer/internal/pipeline"
)

const (
	HeaderSignature = "X-Thumbnailer-Signature"
	HeaderTimestamp = "X-Thumbnailer-Timestamp"
	HeaderEvent     = "X-Thumbnailer-Event"

	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// Notification is the JSON body posted for a finished job.
type Notification struct {
	Event       string     `json:"event"`
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	SourceType  string     `json:"source_type"`
	RequestedAt time.Time  `json:"requested_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Output      *Thumbnail `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Thumbnail struct {
	Location string `json:"location"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int    `json:"bytes"`
}

func ThumbnailFrom(res pipeline.Result) *Thumbnail {
	return &Thumbnail{
		Location: res.Location,
		MimeType: res.MimeType,
		Width:    res.Width,
		Height:   res.Height,
		Bytes:    res.Bytes,
	}
}

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	logger         *zap.Logger
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 1 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:         logger,
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: initialBackoff,
		maxBackoff:     max(cfg.MaxBackoff, initialBackoff),
	}
}

// Send posts n to endpoint, retrying with doubling backoff until a 2xx
// arrives or the attempts run out. An empty endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint string, n Notification) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	signature := Sign(c.signingSecret, timestamp, body)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, signature)
		req.Header.Set(HeaderEvent, n.Event)

		resp, err := c.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			// 4xx other than 429 will not get better on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return fmt.Errorf("webhook rejected: status=%d", resp.StatusCode)
			}
			lastErr = fmt.Errorf("webhook returned status=%d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt == c.maxAttempts {
			break
		}
		c.logger.Debug("webhook attempt failed",
			zap.String("job_id", n.JobID),
			zap.String("event", n.Event),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// Sign returns the signature header value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time.
func Verify(secret, timestamp string, body []byte, signature string) error {
	want := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
