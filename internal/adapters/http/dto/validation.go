package dto

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrValidation wraps every struct or business rule violation.
	ErrValidation = errors.New("validation failed")

	// ErrBinding wraps malformed JSON bodies and query strings.
	ErrBinding = errors.New("binding failed")
)

// messageNamePattern matches dotted message names such as "order.placed".
var messageNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\-]*(\.[A-Za-z0-9_\-]+)*$`)

// rules are the tags registered on top of the validator built-ins.
var rules = map[string]validator.Func{
	// uuid accepts any form uuid.Parse does, braces and urn prefix included.
	"uuid": func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	},
	"notempty": func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	},
	"messagename": func(fl validator.FieldLevel) bool {
		return messageNamePattern.MatchString(fl.Field().String())
	},
}

// messages are the field messages reported per failing tag. {param} is
// replaced with the tag parameter; min and max are handled separately.
var messages = map[string]string{
	"required":    "this field is required",
	"uuid":        "must be a valid UUID",
	"notempty":    "must not be empty",
	"messagename": "must be a dotted name such as order.placed",
	"gte":         "must be greater than or equal to {param}",
	"lte":         "must be less than or equal to {param}",
	"oneof":       "must be one of: {param}",
}

var validatorOnce = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("registering %q validation: %v", tag, err))
		}
	}

	return v
})

// Validator returns the shared validator with the message rules registered.
func Validator() *validator.Validate {
	return validatorOnce()
}

// Validatable is implemented by requests with rules beyond struct tags.
type Validatable interface {
	Validate() error
}

// Validate checks the struct tags of v.
func Validate(v any) error {
	if err := Validator().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// ValidateAll checks the struct tags of v, then its own rules when v is
// Validatable.
func ValidateAll(v any) error {
	if err := Validate(v); err != nil {
		return err
	}

	if vv, ok := v.(Validatable); ok {
		if err := vv.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	return nil
}

// BindAndValidate decodes the JSON body into v and runs ValidateAll.
func BindAndValidate(c *gin.Context, v any) error {
	return bind(c.ShouldBindJSON, v)
}

// BindQueryAndValidate decodes the query string into v and runs ValidateAll.
func BindQueryAndValidate(c *gin.Context, v any) error {
	return bind(c.ShouldBindQuery, v)
}

func bind(decode func(any) error, v any) error {
	if err := decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}
	return ValidateAll(v)
}

// IsValidationError reports whether err carries struct tag violations.
func IsValidationError(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}

// ValidationErrors returns a message per failing field, keyed by JSON path
// such as "messages[1].name".
func ValidationErrors(err error) map[string]string {
	out := map[string]string{}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return out
	}

	for _, fe := range ve {
		path := fe.Field()
		if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
			path = rest
		}
		out[path] = fieldMessage(fe)
	}

	return out
}

func fieldMessage(fe validator.FieldError) string {
	tag, param := fe.Tag(), fe.Param()

	switch tag {
	case "min", "max":
		unit := ""
		if fe.Kind() == reflect.String {
			unit = " characters"
		}
		if tag == "min" {
			return "must be at least " + param + unit
		}
		return "must be at most " + param + unit
	}

	if msg, ok := messages[tag]; ok {
		return strings.ReplaceAll(msg, "{param}", param)
	}
	return "failed validation: " + tag
}
