// Package storage reads source images from and writes thumbnails to an
// S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidConfig  = errors.New("invalid storage config")
)

const defaultContentType = "application/octet-stream"

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	Region   string
	UseSSL   bool
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}
	return nil
}

// backend is the slice of the S3 API the client uses.
type backend interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
	Stat(ctx context.Context, bucket, key string) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

type Client struct {
	api    backend
	bucket string
	region string
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newClient(minioBackend{mc}, cfg), nil
}

func newClient(api backend, cfg Config) *Client {
	return &Client{
		api:    api,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}
}

func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket when it is missing. Losing a creation race
// to another worker is not an error.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}

	if err := c.api.MakeBucket(ctx, c.bucket, c.region); err != nil {
		if exists, checkErr := c.api.BucketExists(ctx, c.bucket); checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	key := cleanKey(objectKey)
	err := c.api.Stat(ctx, c.bucket, key)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
}

// ReadObject returns the whole object. A missing key is ErrObjectNotFound.
func (c *Client) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	key := cleanKey(objectKey)
	obj, err := c.api.Open(ctx, c.bucket, key)
	if err != nil {
		return nil, wrapObjectErr("get object", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only shows up on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapObjectErr("read object", key, err)
	}
	return data, nil
}

func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	key := cleanKey(objectKey)
	if key == "" {
		return fmt.Errorf("put object: %w: empty key", ErrInvalidConfig)
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	if err := c.api.Put(ctx, c.bucket, key, data, contentType); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func wrapObjectErr(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, key, ErrObjectNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

func cleanKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), "/")
}

// isNotFound matches S3 not-found responses anywhere in the error chain.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchObject", "NoSuchBucket":
		return true
	}
	return resp.Code == "" && resp.StatusCode == http.StatusNotFound
}

type minioBackend struct {
	mc *minio.Client
}

func (b minioBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return b.mc.BucketExists(ctx, bucket)
}

func (b minioBackend) MakeBucket(ctx context.Context, bucket, region string) error {
	return b.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (b minioBackend) Stat(ctx context.Context, bucket, key string) error {
	_, err := b.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	return err
}

func (b minioBackend) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return b.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

func (b minioBackend) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := b.mc.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	return err
}
