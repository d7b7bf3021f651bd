package transform

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnknownAction    = errors.New("unknown transform action")
)

// Options is the untyped configuration bag of a step, as it comes from a
// manifest or a flag. Absent and unknown keys fall back to the step defaults.
type Options map[string]any

const optionTag = "option"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get(optionTag), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// decodeOptions fills out with its defaults, overlays opts and validates the
// result. Numeric strings such as "120" are accepted; anything that does not
// parse as a number is ErrInvalidParameter.
func decodeOptions(step string, opts Options, out any) error {
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("%s: apply defaults: %w", step, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    optionTag,
		DecodeHook: scalarStringHook,
	})
	if err != nil {
		return fmt.Errorf("%s: build option decoder: %w", step, err)
	}
	if err := decoder.Decode(map[string]any(opts)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParameter, step, err)
	}

	if err := validate.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s: parameter %q failed %q (value %v)", ErrInvalidParameter, step, fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %s: %w", ErrInvalidParameter, step, err)
	}
	return nil
}

// scalarStringHook parses string values destined for numeric and boolean
// fields. Every other conversion is left to the strict decoder, so booleans,
// slices and maps never become numbers.
func scalarStringHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	raw, ok := data.(string)
	if !ok {
		return data, nil
	}

	switch to.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	}
	return data, nil
}

func invalidParameter(step, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, step, fmt.Sprintf(format, args...))
}
