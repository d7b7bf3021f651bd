package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/thumbnailer/internal/processor"
	"github.com/dunamismax/thumbnailer/internal/transform"
)

func TestPipeline_FileInTransformFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out") + string(os.PathSeparator)

	if err := os.WriteFile(inputPath, buildTestPNG(t, 240, 120), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	p := New(processor.NewStd(processor.DefaultOptions())).
		Add(
			transform.NewAdaptiveResize(transform.Options{"width": 100, "height": 100}),
			transform.NewRotate(transform.Options{"degrees": 90}),
			transform.NewResize(transform.Options{"width": 50}),
		).
		SetInput(NewFileInput(inputPath))

	res, err := p.Run(context.Background(), FileOutput{Path: outputDir})
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}

	if res.Width != 50 || res.Height != 50 {
		t.Fatalf("expected 50x50 result, got %dx%d", res.Width, res.Height)
	}
	if res.MimeType != "image/png" {
		t.Fatalf("expected image/png, got %s", res.MimeType)
	}
	if filepath.Ext(res.Location) != ".png" {
		t.Fatalf("expected generated .png name, got %s", res.Location)
	}
	verifyImageSize(t, res.Location, 50, 50)
	if p.State() != StateExecuted {
		t.Fatalf("expected executed state, got %s", p.State())
	}
}

func TestPipeline_RunsOnce(t *testing.T) {
	p := New(processor.NewStd(processor.DefaultOptions())).
		SetInput(BytesInput{Data: buildTestPNG(t, 8, 8)})

	if _, err := p.Run(context.Background(), &MemoryOutput{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := p.Run(context.Background(), &MemoryOutput{}); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected ErrAlreadyExecuted, got %v", err)
	}
}

func TestPipeline_MissingInputRunsNothing(t *testing.T) {
	var calls []string
	p := New(processor.NewStd(processor.DefaultOptions())).
		Add(&recordingStep{name: "first", calls: &calls})

	_, err := p.Run(context.Background(), &MemoryOutput{})
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no step to run, got %v", calls)
	}
}

func TestPipeline_StepsRunInOrderAndStopOnError(t *testing.T) {
	var calls []string
	var outcomes []Outcome
	observer := ObserverFunc(func(_ string, outcome Outcome, _ time.Duration) {
		outcomes = append(outcomes, outcome)
	})

	p := New(processor.NewStd(processor.DefaultOptions()), WithObserver(observer)).
		Add(
			&recordingStep{name: "a", calls: &calls},
			&recordingStep{name: "b", calls: &calls},
			transform.NewResize(transform.Options{"width": "wide"}),
			&recordingStep{name: "c", calls: &calls},
		).
		SetInput(BytesInput{Data: buildTestPNG(t, 16, 16)})

	out := &MemoryOutput{}
	_, err := p.Run(context.Background(), out)
	if !errors.Is(err, transform.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if got := len(calls); got != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("expected [a b], got %v", calls)
	}
	want := []Outcome{OutcomeApplied, OutcomeApplied, OutcomeFailed}
	if len(outcomes) != len(want) {
		t.Fatalf("expected outcomes %v, got %v", want, outcomes)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("expected outcomes %v, got %v", want, outcomes)
		}
	}
	if out.Rendered().Data != nil {
		t.Fatal("expected nothing persisted after a failed step")
	}
}

func TestPipeline_SkipsUnsupportedSteps(t *testing.T) {
	var skipped []string
	observer := ObserverFunc(func(step string, outcome Outcome, _ time.Duration) {
		if outcome == OutcomeSkipped {
			skipped = append(skipped, step)
		}
	})

	p := New(processor.NewLite(processor.DefaultOptions()), WithObserver(observer)).
		Add(
			transform.NewCrop(transform.Options{"width": 4, "height": 4}),
			transform.NewResizePercent(transform.Options{"percent": 50}),
			transform.NewRotate(transform.Options{"degrees": 90}),
		).
		SetInput(BytesInput{Data: buildTestPNG(t, 40, 20)})

	res, err := p.Run(context.Background(), &MemoryOutput{})
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if res.Width != 20 || res.Height != 10 {
		t.Fatalf("expected 20x10, got %dx%d", res.Width, res.Height)
	}
	if len(skipped) != 2 || skipped[0] != transform.ActionCrop || skipped[1] != transform.ActionRotate {
		t.Fatalf("expected crop and rotate skipped, got %v", skipped)
	}
	if res.MimeType != "image/jpeg" {
		t.Fatalf("raw input should render as jpeg, got %s", res.MimeType)
	}
}

func TestPipeline_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(processor.NewStd(processor.DefaultOptions())).
		Add(transform.NewResize(transform.Options{"width": 4})).
		SetInput(BytesInput{Data: buildTestPNG(t, 8, 8)})

	if _, err := p.Run(ctx, &MemoryOutput{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type recordingStep struct {
	name  string
	calls *[]string
}

func (s *recordingStep) Name() string                   { return s.name }
func (s *recordingStep) Requires() processor.Capability { return processor.CapNone }

func (s *recordingStep) Apply(processor.Processor) error {
	*s.calls = append(*s.calls, s.name)
	return nil
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImageSize(t *testing.T, path string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}
	if cfg.Width != wantW || cfg.Height != wantH {
		t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, cfg.Width, cfg.Height)
	}
}
