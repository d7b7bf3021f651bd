package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dunamismax/thumbnailer/internal/processor"
	"github.com/dunamismax/thumbnailer/internal/storage"
)

var (
	ErrNotFound          = errors.New("input not found")
	ErrNotReadable       = errors.New("input not readable")
	ErrUnsupportedFormat = errors.New("unsupported input format")
)

// Input supplies the source image of a pipeline.
type Input interface {
	Bytes(ctx context.Context) ([]byte, error)
	Format(ctx context.Context) (processor.Format, error)
}

// DetectFormat sniffs data. WebP is reported as FormatRaw: the engines decode
// it by content and it is written back as JPEG.
func DetectFormat(data []byte) (processor.Format, error) {
	if len(data) == 0 {
		return processor.FormatRaw, fmt.Errorf("%w: empty input", ErrNotReadable)
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("image/jpeg"):
		return processor.FormatJPEG, nil
	case mtype.Is("image/png"):
		return processor.FormatPNG, nil
	case mtype.Is("image/gif"):
		return processor.FormatGIF, nil
	case mtype.Is("image/webp"):
		return processor.FormatRaw, nil
	default:
		return processor.FormatRaw, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}
}

// fetchOnce caches the first read of a source and its detected format.
type fetchOnce struct {
	once   sync.Once
	data   []byte
	format processor.Format
	err    error
}

func (f *fetchOnce) load(ctx context.Context, read func(context.Context) ([]byte, error)) ([]byte, processor.Format, error) {
	f.once.Do(func() {
		f.data, f.err = read(ctx)
		if f.err != nil {
			return
		}
		f.format, f.err = DetectFormat(f.data)
	})
	return f.data, f.format, f.err
}

type FileInput struct {
	Path string

	fetch fetchOnce
}

func NewFileInput(path string) *FileInput {
	return &FileInput{Path: path}
}

func (in *FileInput) Bytes(ctx context.Context) ([]byte, error) {
	data, _, err := in.fetch.load(ctx, in.read)
	return data, err
}

func (in *FileInput) Format(ctx context.Context) (processor.Format, error) {
	_, format, err := in.fetch.load(ctx, in.read)
	return format, err
}

func (in *FileInput) read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNotFound)
	}

	info, err := os.Stat(in.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, in.Path)
	case err != nil:
		return nil, fmt.Errorf("%w: stat %s: %w", ErrNotReadable, in.Path, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotReadable, in.Path)
	}

	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrNotReadable, in.Path, err)
	}
	return data, nil
}

// RemoteInput downloads the source over HTTP. Bodies larger than MaxBytes
// are rejected when MaxBytes is positive.
type RemoteInput struct {
	URL      string
	Client   *http.Client
	MaxBytes int64

	fetch fetchOnce
}

func NewRemoteInput(url string, client *http.Client, maxBytes int64) *RemoteInput {
	return &RemoteInput{URL: url, Client: client, MaxBytes: maxBytes}
}

func (in *RemoteInput) Bytes(ctx context.Context) ([]byte, error) {
	data, _, err := in.fetch.load(ctx, in.read)
	return data, err
}

func (in *RemoteInput) Format(ctx context.Context) (processor.Format, error) {
	_, format, err := in.fetch.load(ctx, in.read)
	return format, err
}

func (in *RemoteInput) read(ctx context.Context) ([]byte, error) {
	client := in.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNotReadable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrNotReadable, in.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s returned %d", ErrNotFound, in.URL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", ErrNotReadable, in.URL, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if in.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, in.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNotReadable, err)
	}
	if in.MaxBytes > 0 && int64(len(data)) > in.MaxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrNotReadable, in.URL, in.MaxBytes)
	}
	return data, nil
}

// BytesInput hands raw bytes to the engine without a detected format.
type BytesInput struct {
	Data []byte
}

func (in BytesInput) Bytes(context.Context) ([]byte, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrNotReadable)
	}
	return in.Data, nil
}

func (in BytesInput) Format(context.Context) (processor.Format, error) {
	return processor.FormatRaw, nil
}

type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

type ObjectStoreInput struct {
	Storage   ObjectReader
	ObjectKey string

	fetch fetchOnce
}

func NewObjectStoreInput(store ObjectReader, objectKey string) *ObjectStoreInput {
	return &ObjectStoreInput{Storage: store, ObjectKey: objectKey}
}

func (in *ObjectStoreInput) Bytes(ctx context.Context) ([]byte, error) {
	data, _, err := in.fetch.load(ctx, in.read)
	return data, err
}

func (in *ObjectStoreInput) Format(ctx context.Context) (processor.Format, error) {
	_, format, err := in.fetch.load(ctx, in.read)
	return format, err
}

func (in *ObjectStoreInput) read(ctx context.Context) ([]byte, error) {
	if in.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	data, err := in.Storage.ReadObject(ctx, in.ObjectKey)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, in.ObjectKey)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrNotReadable, err)
	}
	return data, nil
}
