package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// NewValidator returns a validator that reports json field names
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// FieldError describes the first failed validation rule
type FieldError struct {
	Field string
	Tag   string
	Param string
}

// FirstFieldError extracts the first field failure from a validator error
func FirstFieldError(err error) (FieldError, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return FieldError{}, false
	}
	fe := verrs[0]
	return FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}, true
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// SanitizeStringPtr applies SanitizeString to a non-nil pointer in place
func SanitizeStringPtr(s *string) {
	if s != nil {
		*s = SanitizeString(*s)
	}
}
