// Package validation checks input structs against their `validate` tags and
// reports the first failure as an apperr VALIDATION error naming the field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	validator "github.com/go-playground/validator/v10"

	"lpar_inventory/internal/apperr"
)

// Rules for values checked outside a tagged struct.
const (
	NameRule = "required,min=2,max=100"
	CodeRule = "required,min=2,max=20,code"
	PtfRule  = "omitempty,max=50"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterValidation("code", func(fl validator.FieldLevel) bool {
			return codePattern.MatchString(fl.Field().String())
		})
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		instance = v
	})
	return instance
}

// Struct validates s. Nested fields are named by their JSON path, for
// example "versions[1].version".
func Struct(s interface{}) error {
	return convert(Validator().Struct(s), "")
}

// Var validates a single value under the given field name.
func Var(field string, value interface{}, tag string) error {
	return convert(Validator().Var(value, tag), field)
}

func convert(err error, field string) error {
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperr.Validation(field, err.Error())
	}
	fe := errs[0]
	if field == "" {
		field = fieldPath(fe)
	}
	return apperr.Validation(field, message(field, fe))
}

// fieldPath keeps the JSON segments of the error namespace. Go type names
// (the root struct and embedded structs) start upper case and are dropped.
func fieldPath(fe validator.FieldError) string {
	var parts []string
	for _, seg := range strings.Split(fe.Namespace(), ".") {
		if seg != "" && !unicode.IsUpper([]rune(seg)[0]) {
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		return fe.Field()
	}
	return strings.Join(parts, ".")
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "code":
		return field + " must be uppercase alphanumeric with dashes/underscores"
	case "email":
		return field + " must be a valid email address"
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not precede %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
