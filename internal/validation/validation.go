// Package validation checks request input against declarative struct tags.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mpslytherin/accounts/internal/models"
	pkgauth "github.com/mpslytherin/accounts/pkg/auth"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// FieldError is one failed rule, named by the field's JSON key
type FieldError struct {
	Field   string
	Message string
}

func (fe FieldError) String() string {
	return fe.Field + ": " + fe.Message
}

// Error carries every failed rule in declaration order
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return models.ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s", models.ErrValidation, e.Fields[0])
}

// Is lets errors.Is(err, models.ErrValidation) match.
func (e *Error) Is(target error) bool {
	return target == models.ErrValidation
}

// First returns the message shown to the caller.
func (e *Error) First() string {
	if len(e.Fields) == 0 {
		return models.ErrValidation.Error()
	}
	return e.Fields[0].String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return pkgauth.HasRequiredClasses(fl.Field().String())
	})

	return v
}

// Struct validates s and returns *Error when any rule fails.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := &Error{Fields: make([]FieldError, 0, len(ve))}
	for _, fe := range ve {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return out
}

// NormalizeEmail trims and lower-cases an address before validation
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "username":
		return "may only contain letters, numbers and underscores"
	case "password":
		return "must contain at least one uppercase letter, one lowercase letter and one number"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
