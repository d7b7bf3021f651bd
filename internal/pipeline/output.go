package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Rendered is the encoded image handed to an Output.
type Rendered struct {
	Data      []byte
	MimeType  string
	Extension string
	Width     int
	Height    int
}

type Result struct {
	Location string
	MimeType string
	Width    int
	Height   int
	Bytes    int
}

func (r Rendered) result(location string) Result {
	return Result{
		Location: location,
		MimeType: r.MimeType,
		Width:    r.Width,
		Height:   r.Height,
		Bytes:    len(r.Data),
	}
}

// Output persists the rendered image and reports where it went.
type Output interface {
	Persist(ctx context.Context, r Rendered) (Result, error)
}

// FileOutput writes to Path. An existing directory, or a path ending in a
// separator, gets a generated unique file name. AddExtension appends the
// rendered extension to an explicit file name that lacks it.
type FileOutput struct {
	Path         string
	AddExtension bool
}

func (o FileOutput) Persist(ctx context.Context, r Rendered) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(o.Path) == "" {
		return Result{}, errors.New("output path is required")
	}

	target, err := o.target(r.Extension)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(target, r.Data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write output file: %w", err)
	}
	return r.result(target), nil
}

func (o FileOutput) target(ext string) (string, error) {
	if strings.HasSuffix(o.Path, string(os.PathSeparator)) || strings.HasSuffix(o.Path, "/") {
		return filepath.Join(o.Path, uniqueName(ext)), nil
	}

	info, err := os.Stat(o.Path)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(o.Path, uniqueName(ext)), nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("stat output path: %w", err)
	}

	if o.AddExtension && ext != "" && !strings.EqualFold(filepath.Ext(o.Path), ext) {
		return o.Path + ext, nil
	}
	return o.Path, nil
}

func uniqueName(ext string) string {
	return uuid.NewString() + ext
}

type ObjectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// ObjectStoreOutput uploads to Prefix/Name plus the rendered extension. An
// empty Name gets a generated one.
type ObjectStoreOutput struct {
	Storage ObjectWriter
	Prefix  string
	Name    string
}

func (o ObjectStoreOutput) Persist(ctx context.Context, r Rendered) (Result, error) {
	if o.Storage == nil {
		return Result{}, errors.New("storage client is required")
	}

	name := uuid.NewString()
	if strings.TrimSpace(o.Name) != "" {
		name = sanitizePathToken(o.Name)
	}
	objectKey := path.Join(defaultOutputPrefix(o.Prefix), name+r.Extension)

	if err := o.Storage.WriteObject(ctx, objectKey, r.Data, r.MimeType); err != nil {
		return Result{}, err
	}
	return r.result(objectKey), nil
}

// MemoryOutput keeps the last rendered image.
type MemoryOutput struct {
	mu       sync.Mutex
	rendered Rendered
}

func (o *MemoryOutput) Persist(_ context.Context, r Rendered) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r.Data = append([]byte(nil), r.Data...)
	o.rendered = r
	return r.result("memory"), nil
}

func (o *MemoryOutput) Rendered() Rendered {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rendered
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
