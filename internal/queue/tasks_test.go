package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/thumbnailer/internal/domain"
)

func TestRenderTaskRoundTrip(t *testing.T) {
	payload := RenderPayload{
		Job: domain.Job{
			ID:     "job-123",
			Source: domain.Source{Type: domain.SourceTypeS3Object, ObjectKey: "uploads/job-123/source"},
			Output: domain.Output{Type: domain.OutputTypeS3Object, Prefix: "thumbs"},
			Steps: []domain.Step{
				{Action: "adaptive_resize", Options: map[string]any{"width": 200, "height": 200}},
			},
		},
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewRenderTask(payload)
	if err != nil {
		t.Fatalf("NewRenderTask returned error: %v", err)
	}
	if task.Type() != TypeRenderThumbnail {
		t.Fatalf("expected task type %q, got %q", TypeRenderThumbnail, task.Type())
	}

	parsed, err := ParseRenderPayload(task)
	if err != nil {
		t.Fatalf("ParseRenderPayload returned error: %v", err)
	}

	if parsed.Job.ID != payload.Job.ID {
		t.Fatalf("expected job id %q, got %q", payload.Job.ID, parsed.Job.ID)
	}
	if len(parsed.Job.Steps) != 1 {
		t.Fatalf("expected one step, got %d", len(parsed.Job.Steps))
	}
	// JSON numbers come back as float64; steps decode them weakly
	if parsed.Job.Steps[0].Options["width"] != float64(200) {
		t.Fatalf("expected width 200, got %v", parsed.Job.Steps[0].Options["width"])
	}
	if err := parsed.Job.Validate(); err != nil {
		t.Fatalf("expected parsed job to validate: %v", err)
	}
}
