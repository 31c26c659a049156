// Package validation checks form input with validator/v10 and reports failures
// as VALIDATION errors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the domain enum tags registered:
// post_type, report_status, priority and announcement_type.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "":
			return fld.Name
		case "-":
			return ""
		}
		return name
	})

	registerEnum(v, "post_type", func(s string) bool { return domain.PostType(s).Valid() })
	registerEnum(v, "report_status", func(s string) bool { return domain.ReportStatus(s).Valid() })
	registerEnum(v, "priority", func(s string) bool { return domain.Priority(s).Valid() })
	registerEnum(v, "announcement_type", func(s string) bool { return domain.AnnouncementType(s).Valid() })

	return &Validator{v: v}
}

func registerEnum(v *validator.Validate, tag string, valid func(string) bool) {
	//nolint:errcheck // only fails for empty tags
	_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || valid(s)
	})
}

// Validate validates a struct and returns a VALIDATION error with per-field details.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domainerrors.Internal("validation setup error").WithCause(err)
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = friendlyMessage(fe)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

var simpleMessages = map[string]string{
	"required":          "is required",
	"email":             "must be a valid email address",
	"url":               "must be a valid URL",
	"uuid":              "must be a valid UUID",
	"latitude":          "must be a valid latitude",
	"longitude":         "must be a valid longitude",
	"post_type":         "must be one of: text image poll event",
	"report_status":     "must be one of: submitted in_progress resolved rejected",
	"priority":          "must be one of: low medium high",
	"announcement_type": "must be one of: general emergency maintenance event policy",
}

func friendlyMessage(fe validator.FieldError) string {
	if msg, ok := simpleMessages[fe.Tag()]; ok {
		return msg
	}

	unit := " characters"
	if fe.Kind() != reflect.String {
		unit = ""
	}

	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must not exceed %s%s", fe.Param(), unit)
	case "len":
		return fmt.Sprintf("must be exactly %s%s", fe.Param(), unit)
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	}
	return "is invalid"
}
