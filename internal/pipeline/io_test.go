package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dunamismax/thumbnailer/internal/processor"
	"github.com/dunamismax/thumbnailer/internal/storage"
)

func TestFileInput(t *testing.T) {
	tmp := t.TempDir()
	ctx := context.Background()

	pngPath := filepath.Join(tmp, "a.png")
	if err := os.WriteFile(pngPath, buildTestPNG(t, 4, 4), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	in := NewFileInput(pngPath)
	format, err := in.Format(ctx)
	if err != nil || format != processor.FormatPNG {
		t.Fatalf("expected png, got %s (%v)", format, err)
	}

	_, err = NewFileInput(filepath.Join(tmp, "missing.png")).Bytes(ctx)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = NewFileInput(tmp).Bytes(ctx)
	if !errors.Is(err, ErrNotReadable) {
		t.Fatalf("expected ErrNotReadable for a directory, got %v", err)
	}

	textPath := filepath.Join(tmp, "notes.txt")
	if err := os.WriteFile(textPath, []byte("just some notes"), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}
	_, err = NewFileInput(textPath).Format(ctx)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	format, err := DetectFormat(buf.Bytes())
	if err != nil || format != processor.FormatJPEG {
		t.Fatalf("expected jpeg, got %s (%v)", format, err)
	}

	if _, err := DetectFormat(nil); !errors.Is(err, ErrNotReadable) {
		t.Fatalf("expected ErrNotReadable for empty data, got %v", err)
	}
}

func TestRemoteInput(t *testing.T) {
	source := buildTestPNG(t, 6, 6)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			_, _ = w.Write(source)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	in := NewRemoteInput(srv.URL+"/ok.png", srv.Client(), 0)
	data, err := in.Bytes(ctx)
	if err != nil || !bytes.Equal(data, source) {
		t.Fatalf("expected source bytes, got %d bytes (%v)", len(data), err)
	}
	if format, err := in.Format(ctx); err != nil || format != processor.FormatPNG {
		t.Fatalf("expected png, got %s (%v)", format, err)
	}

	_, err = NewRemoteInput(srv.URL+"/gone.png", srv.Client(), 0).Bytes(ctx)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = NewRemoteInput(srv.URL+"/broken", srv.Client(), 0).Bytes(ctx)
	if !errors.Is(err, ErrNotReadable) {
		t.Fatalf("expected ErrNotReadable, got %v", err)
	}

	_, err = NewRemoteInput(srv.URL+"/ok.png", srv.Client(), 16).Bytes(ctx)
	if !errors.Is(err, ErrNotReadable) || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestBytesInputIsRaw(t *testing.T) {
	in := BytesInput{Data: buildTestPNG(t, 2, 2)}
	format, err := in.Format(context.Background())
	if err != nil || format != processor.FormatRaw {
		t.Fatalf("expected raw, got %s (%v)", format, err)
	}
	if _, err := (BytesInput{}).Bytes(context.Background()); !errors.Is(err, ErrNotReadable) {
		t.Fatalf("expected ErrNotReadable, got %v", err)
	}
}

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStore) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("read object %s: %w", key, storage.ErrObjectNotFound)
	}
	return data, nil
}

func (s *memoryStore) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func TestObjectStoreRoundTrip(t *testing.T) {
	store := newMemoryStore()
	store.objects["uploads/src.png"] = buildTestPNG(t, 12, 8)
	ctx := context.Background()

	_, err := NewObjectStoreInput(store, "uploads/none.png").Bytes(ctx)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p := New(processor.NewStd(processor.DefaultOptions())).
		SetInput(NewObjectStoreInput(store, "uploads/src.png"))
	res, err := p.Run(ctx, ObjectStoreOutput{Storage: store, Prefix: "thumbs", Name: "job 1"})
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if res.Location != "thumbs/job_1.png" {
		t.Fatalf("unexpected object key %s", res.Location)
	}
	if store.types[res.Location] != "image/png" {
		t.Fatalf("unexpected content type %s", store.types[res.Location])
	}
	if res.Bytes != len(store.objects[res.Location]) {
		t.Fatalf("expected %d bytes stored, got %d", res.Bytes, len(store.objects[res.Location]))
	}
}

func TestFileOutputNaming(t *testing.T) {
	tmp := t.TempDir()
	ctx := context.Background()
	r := Rendered{Data: []byte("x"), MimeType: "image/png", Extension: ".png", Width: 1, Height: 1}

	first, err := FileOutput{Path: tmp}.Persist(ctx, r)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	second, err := FileOutput{Path: tmp}.Persist(ctx, r)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if first.Location == second.Location {
		t.Fatalf("expected unique names, got %s twice", first.Location)
	}
	if filepath.Dir(first.Location) != tmp {
		t.Fatalf("expected file inside %s, got %s", tmp, first.Location)
	}

	named, err := FileOutput{Path: filepath.Join(tmp, "nested", "thumb"), AddExtension: true}.Persist(ctx, r)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if named.Location != filepath.Join(tmp, "nested", "thumb.png") {
		t.Fatalf("unexpected location %s", named.Location)
	}

	kept, err := FileOutput{Path: filepath.Join(tmp, "thumb.png"), AddExtension: true}.Persist(ctx, r)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if kept.Location != filepath.Join(tmp, "thumb.png") {
		t.Fatalf("unexpected location %s", kept.Location)
	}
	if kept.Bytes != 1 {
		t.Fatalf("expected 1 byte, got %d", kept.Bytes)
	}
}

func TestMemoryOutputCopiesData(t *testing.T) {
	out := &MemoryOutput{}
	data := []byte{1, 2, 3}
	res, err := out.Persist(context.Background(), Rendered{Data: data, MimeType: "image/gif"})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	data[0] = 9
	if out.Rendered().Data[0] != 1 {
		t.Fatal("expected memory output to keep its own copy")
	}
	if res.Location != "memory" || res.Bytes != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}
