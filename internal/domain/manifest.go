package domain

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is a batch of jobs. A file holding a single job without the
// jobs key is accepted too. JSON manifests parse as YAML.
type Manifest struct {
	Jobs []Job `yaml:"jobs"`
}

func LoadManifest(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) ([]Job, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty manifest", ErrInvalidJob)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	jobs := manifest.Jobs
	if len(jobs) == 0 {
		var single Job
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
		jobs = []Job{single}
	}

	for i := range jobs {
		jobs[i].Normalize()
		if jobs[i].ID == "" {
			jobs[i].ID = fmt.Sprintf("job-%d", i+1)
		}
		if err := jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("jobs[%d]: %w", i, err)
		}
	}
	return jobs, nil
}

// ParseStep reads the "action:key=value,key=value" shorthand used on the
// command line. Values stay strings; steps decode them weakly.
func ParseStep(raw string) (Step, error) {
	action, rest, _ := strings.Cut(strings.TrimSpace(raw), ":")
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return Step{}, fmt.Errorf("%w: step %q has no action", ErrInvalidJob, raw)
	}

	step := Step{Action: action}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return step, nil
	}

	step.Options = make(map[string]any)
	for _, pair := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Step{}, fmt.Errorf("%w: step %q: option %q is not key=value", ErrInvalidJob, raw, pair)
		}
		step.Options[key] = strings.TrimSpace(value)
	}
	return step, nil
}
