package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true},
		{"no such object", minio.ErrorResponse{Code: "NoSuchObject"}, true},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket"}, true},
		{"bare 404", minio.ErrorResponse{StatusCode: http.StatusNotFound}, true},
		{"wrapped", fmt.Errorf("stat: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"sentinel", fmt.Errorf("read: %w", ErrObjectNotFound), true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false},
		{"coded 404", minio.ErrorResponse{Code: "InvalidRequest", StatusCode: http.StatusNotFound}, false},
		{"plain", errors.New("connection refused"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isNotFound(tc.err); got != tc.want {
				t.Fatalf("isNotFound(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing bucket, got %v", err)
	}
	if _, err := NewClient(Config{Bucket: "thumbs"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing endpoint, got %v", err)
	}

	c, err := NewClient(Config{Endpoint: "localhost:9000", Bucket: "thumbs"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if c.Bucket() != "thumbs" {
		t.Fatalf("expected bucket thumbs, got %q", c.Bucket())
	}
}

func TestReadObjectMapsLazyNotFound(t *testing.T) {
	fb := newFakeBackend()
	fb.readErr = minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	c := newClient(fb, Config{Bucket: "thumbs"})

	_, err := c.ReadObject(context.Background(), "uploads/missing.png")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestReadObjectKeepsOtherErrors(t *testing.T) {
	fb := newFakeBackend()
	fb.readErr = minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	c := newClient(fb, Config{Bucket: "thumbs"})

	_, err := c.ReadObject(context.Background(), "uploads/a.png")
	if err == nil || errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected a non-not-found error, got %v", err)
	}
}

func TestWriteThenReadObject(t *testing.T) {
	fb := newFakeBackend()
	c := newClient(fb, Config{Bucket: "thumbs"})
	ctx := context.Background()

	if err := c.WriteObject(ctx, "/thumbs/a.png", []byte("png"), ""); err != nil {
		t.Fatalf("WriteObject returned error: %v", err)
	}
	if got := fb.contentTypes["thumbs/a.png"]; got != defaultContentType {
		t.Fatalf("expected default content type, got %q", got)
	}

	data, err := c.ReadObject(ctx, "thumbs/a.png")
	if err != nil {
		t.Fatalf("ReadObject returned error: %v", err)
	}
	if string(data) != "png" {
		t.Fatalf("unexpected data %q", data)
	}

	exists, err := c.ObjectExists(ctx, "thumbs/a.png")
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got %v %v", exists, err)
	}
	exists, err = c.ObjectExists(ctx, "thumbs/b.png")
	if err != nil || exists {
		t.Fatalf("expected missing object, got %v %v", exists, err)
	}

	if err := c.WriteObject(ctx, "  ", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestEnsureBucketToleratesCreationRace(t *testing.T) {
	fb := newFakeBackend()
	fb.makeErr = minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}
	fb.existsAfterMake = true
	c := newClient(fb, Config{Bucket: "thumbs"})

	if err := c.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("expected race to be tolerated, got %v", err)
	}

	fb = newFakeBackend()
	fb.makeErr = errors.New("disk full")
	c = newClient(fb, Config{Bucket: "thumbs"})
	if err := c.EnsureBucket(context.Background()); err == nil {
		t.Fatal("expected create failure to surface")
	}
}

type fakeBackend struct {
	objects         map[string][]byte
	contentTypes    map[string]string
	bucket          bool
	existsAfterMake bool
	makeErr         error
	readErr         error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (f *fakeBackend) BucketExists(context.Context, string) (bool, error) {
	return f.bucket, nil
}

func (f *fakeBackend) MakeBucket(context.Context, string, string) error {
	if f.existsAfterMake {
		f.bucket = true
	}
	if f.makeErr != nil {
		return f.makeErr
	}
	f.bucket = true
	return nil
}

func (f *fakeBackend) Stat(_ context.Context, _ string, key string) error {
	if _, ok := f.objects[key]; !ok {
		return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	}
	return nil
}

func (f *fakeBackend) Open(_ context.Context, _ string, key string) (io.ReadCloser, error) {
	if f.readErr != nil {
		return io.NopCloser(errReader{f.readErr}), nil
	}
	data, ok := f.objects[key]
	if !ok {
		return io.NopCloser(errReader{minio.ErrorResponse{Code: "NoSuchKey"}}), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBackend) Put(_ context.Context, _ string, key string, data []byte, contentType string) error {
	f.objects[key] = append([]byte(nil), data...)
	f.contentTypes[key] = contentType
	return nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
