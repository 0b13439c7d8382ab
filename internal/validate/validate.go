// Package validate checks decoded request payloads with struct tags and
// turns failures into client-facing 400 errors.
package validate

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/natours-dev/natours/internal/apperr"
	"github.com/natours-dev/natours/internal/xerrors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON field names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates s. Constraint violations become an operational 400.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return apperr.Wrap(err, Message(ve), http.StatusBadRequest)
	}
	return xerrors.Wrap(err, "validate payload")
}

// Message renders every violation as "Invalid input data. a. b".
func Message(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, describe(fe))
	}
	return "Invalid input data. " + strings.Join(parts, ". ")
}

func describe(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: field is required", field)
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s: must have at least %s characters", field, param)
		}
		return fmt.Sprintf("%s: must be at least %s", field, param)
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s: must have at most %s characters", field, param)
		}
		return fmt.Sprintf("%s: must not exceed %s", field, param)
	case "gt":
		return fmt.Sprintf("%s: must be greater than %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s: must be one of %s", field, strings.ReplaceAll(param, " ", ", "))
	case "email":
		return fmt.Sprintf("%s: please provide a valid email", field)
	case "ltfield":
		return fmt.Sprintf("%s: (%v) should be below %s", field, fe.Value(), param)
	case "uuid4", "uuid":
		return fmt.Sprintf("%s: must be a valid id", field)
	default:
		return fmt.Sprintf("%s: validation failed (%s)", field, fe.Tag())
	}
}
