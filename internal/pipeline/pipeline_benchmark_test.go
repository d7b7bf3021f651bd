package pipeline

import (
	"context"
	"testing"

	"github.com/dunamismax/thumbnailer/internal/processor"
	"github.com/dunamismax/thumbnailer/internal/transform"
)

func BenchmarkPipelineResize(b *testing.B) {
	benchmarkPipeline(b, processor.EngineStd, transform.NewResize(transform.Options{"width": 640}))
}

func BenchmarkPipelineAdaptiveResize(b *testing.B) {
	benchmarkPipeline(b, processor.EngineStd, transform.NewAdaptiveResize(transform.Options{"width": 320, "height": 320}))
}

func BenchmarkPipelineLiteResize(b *testing.B) {
	benchmarkPipeline(b, processor.EngineLite, transform.NewResize(transform.Options{"width": 640}))
}

func benchmarkPipeline(b *testing.B, engine string, steps ...Step) {
	source := buildTestPNG(b, 1920, 1080)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, err := processor.New(engine, processor.DefaultOptions())
		if err != nil {
			b.Fatalf("new processor: %v", err)
		}
		pl := New(p).Add(steps...).SetInput(BytesInput{Data: source})
		if _, err := pl.Run(context.Background(), discardOutput{}); err != nil {
			b.Fatalf("run: %v", err)
		}
	}
}

type discardOutput struct{}

func (discardOutput) Persist(_ context.Context, r Rendered) (Result, error) {
	return r.result(""), nil
}
