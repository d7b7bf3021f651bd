package domain

import (
	"errors"
	"strings"
	"testing"
)

func validJob() Job {
	return Job{
		ID:     "thumb_small",
		Source: Source{Type: SourceTypeS3Object, ObjectKey: "uploads/a.png"},
		Output: Output{Type: OutputTypeMemory},
		Steps:  []Step{{Action: "resize", Options: map[string]any{"width": 120}}},
	}
}

func TestJobValidate(t *testing.T) {
	if err := validJob().Validate(); err != nil {
		t.Fatalf("expected valid job, got error: %v", err)
	}

	if err := (Job{}).Validate(); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for empty job, got %v", err)
	}

	missingPath := validJob()
	missingPath.Source = Source{Type: SourceTypeLocalFile}
	err := missingPath.Validate()
	if err == nil || !strings.Contains(err.Error(), "source.path is required") {
		t.Fatalf("expected source.path error, got %v", err)
	}

	badURL := validJob()
	badURL.Source = Source{Type: SourceTypeHTTP, URL: "not a url"}
	if err := badURL.Validate(); err == nil {
		t.Fatal("expected validation error for http source url")
	}

	unsupported := validJob()
	unsupported.Source.Type = "ftp"
	err = unsupported.Validate()
	if err == nil || !strings.Contains(err.Error(), "source.type must be one of") {
		t.Fatalf("expected source.type error, got %v", err)
	}

	noSteps := validJob()
	noSteps.Steps = nil
	if err := noSteps.Validate(); err == nil {
		t.Fatal("expected validation error for empty steps")
	}

	blankAction := validJob()
	blankAction.Steps = []Step{{Action: ""}}
	err = blankAction.Validate()
	if err == nil || !strings.Contains(err.Error(), "steps[0].action is required") {
		t.Fatalf("expected steps[0].action error, got %v", err)
	}

	badEngine := validJob()
	badEngine.Engine = "gd"
	if err := badEngine.Validate(); err == nil {
		t.Fatal("expected validation error for engine")
	}
}

func TestParseManifest(t *testing.T) {
	jobs, err := ParseManifest([]byte(`
jobs:
  - id: square
    engine: LITE
    source: {type: local_file, path: in.png}
    output: {type: local_file, path: out/, add_extension: true}
    steps:
      - action: Adaptive_Resize
        options: {width: 200, height: 200}
  - source: {type: http, url: "https://example.com/a.jpg"}
    output: {type: memory}
    steps:
      - action: rotate
        options: {degrees: 90}
`))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Engine != "lite" || jobs[0].Steps[0].Action != "adaptive_resize" {
		t.Fatalf("expected normalized job, got %+v", jobs[0])
	}
	if jobs[0].Steps[0].Options["width"] != 200 {
		t.Fatalf("expected width option 200, got %v", jobs[0].Steps[0].Options["width"])
	}
	if jobs[1].ID != "job-2" {
		t.Fatalf("expected generated id job-2, got %q", jobs[1].ID)
	}

	single, err := ParseManifest([]byte(`{"id": "one", "source": {"type": "s3_object", "object_key": "k"}, "output": {"type": "memory"}, "steps": [{"action": "flip"}]}`))
	if err != nil {
		t.Fatalf("parse single job: %v", err)
	}
	if len(single) != 1 || single[0].ID != "one" {
		t.Fatalf("unexpected single job %+v", single)
	}

	if _, err := ParseManifest([]byte("jobs:\n  - id: broken\n")); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}

func TestParseStep(t *testing.T) {
	step, err := ParseStep("crop_center:width=120, height = 80")
	if err != nil {
		t.Fatalf("parse step: %v", err)
	}
	if step.Action != "crop_center" || step.Options["width"] != "120" || step.Options["height"] != "80" {
		t.Fatalf("unexpected step %+v", step)
	}

	bare, err := ParseStep("flip")
	if err != nil || bare.Action != "flip" || bare.Options != nil {
		t.Fatalf("unexpected bare step %+v (%v)", bare, err)
	}

	if _, err := ParseStep(":width=1"); err == nil {
		t.Fatal("expected error for missing action")
	}
	if _, err := ParseStep("resize:width"); err == nil {
		t.Fatal("expected error for option without value")
	}
}
