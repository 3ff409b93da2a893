package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate reports fields by their koanf key so errors name the setting an
// operator has to change.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// FieldError is one invalid setting.
type FieldError struct {
	Key    string
	Reason string
}

func (e FieldError) Error() string {
	return e.Key + " " + e.Reason
}

// ValidationError lists every invalid setting found by Validate.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		lines[i] = f.Error()
	}
	return "config validation failed:\n  " + strings.Join(lines, "\n  ")
}

// Validate checks c and reports every invalid setting at once, as a
// *ValidationError. The service refuses to start on error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validating config: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, len(ve))}
	for i, fe := range ve {
		out.Fields[i] = FieldError{Key: settingKey(fe.Namespace()), Reason: reason(fe)}
	}
	return out
}

func reason(fe validator.FieldError) string {
	p := fe.Param()

	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + p
	case "min", "gte":
		return "must be at least " + p
	case "max", "lte":
		return "must be at most " + p
	case "gtefield":
		return "must not be below " + p
	case "oneof":
		return "must be one of: " + p
	case "url":
		return "must be a valid URL"
	default:
		return "failed validation: " + fe.Tag()
	}
}

// settingKey turns a validator namespace such as
// "Config.processing.rollback_policy" into the setting key
// "processing.rollback_policy".
func settingKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		namespace = rest
	}
	return strings.ToLower(namespace)
}
