package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile = "local_file"
	SourceTypeHTTP      = "http"
	SourceTypeS3Object  = "s3_object"

	OutputTypeLocalFile = "local_file"
	OutputTypeS3Object  = "s3_object"
	OutputTypeMemory    = "memory"
)

var ErrInvalidJob = errors.New("invalid job")

// Job is one thumbnail manifest: where the image comes from, the steps to
// apply and where the result goes.
type Job struct {
	ID         string `json:"id" yaml:"id" validate:"max=128"`
	Engine     string `json:"engine,omitempty" yaml:"engine,omitempty" validate:"omitempty,oneof=std vips lite"`
	Source     Source `json:"source" yaml:"source"`
	Output     Output `json:"output" yaml:"output"`
	Steps      []Step `json:"steps" yaml:"steps" validate:"min=1,dive"`
	WebhookURL string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty" validate:"omitempty,http_url"`
}

type Source struct {
	Type      string `json:"type" yaml:"type" validate:"required,oneof=local_file http s3_object"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Type local_file"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty" validate:"required_if=Type http,omitempty,http_url"`
	ObjectKey string `json:"object_key,omitempty" yaml:"object_key,omitempty" validate:"required_if=Type s3_object"`
}

type Output struct {
	Type         string `json:"type" yaml:"type" validate:"required,oneof=local_file s3_object memory"`
	Path         string `json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Type local_file"`
	Prefix       string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	AddExtension bool   `json:"add_extension,omitempty" yaml:"add_extension,omitempty"`
}

type Step struct {
	Action  string         `json:"action" yaml:"action" validate:"required"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Normalize lowercases the enum fields and trims whitespace in place.
func (j *Job) Normalize() {
	j.ID = strings.TrimSpace(j.ID)
	j.Engine = strings.ToLower(strings.TrimSpace(j.Engine))
	j.Source.Type = strings.ToLower(strings.TrimSpace(j.Source.Type))
	j.Output.Type = strings.ToLower(strings.TrimSpace(j.Output.Type))
	j.WebhookURL = strings.TrimSpace(j.WebhookURL)
	for i := range j.Steps {
		j.Steps[i].Action = strings.ToLower(strings.TrimSpace(j.Steps[i].Action))
	}
}

func (j Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidJob, describe(fieldErrs[0]))
		}
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must contain at least %s item", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
