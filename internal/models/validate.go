package models

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	ferrors "finledger/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the finledger rules registered:
// isodate (YYYY-MM-DD), txnsource (known source or "other:..."), and decimal
// fields compared as numbers.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			return ValidDate(fl.Field().String())
		})
		_ = v.RegisterValidation("txnsource", func(fl validator.FieldLevel) bool {
			return ValidSource(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Check validates v and converts failures into issues rooted at prefix.
// Returns nil when v is valid.
func Check(prefix string, v any) []ferrors.ValidationIssue {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ferrors.ValidationIssue{{Path: prefix, Message: err.Error()}}
	}
	issues := make([]ferrors.ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, ferrors.ValidationIssue{
			Path:    joinPath(prefix, trimRoot(fe.Namespace())),
			Message: issueMessage(fe),
		})
	}
	return issues
}

// trimRoot drops the struct type name validator puts first in a namespace.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ""
}

func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	default:
		return prefix + "." + path
	}
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "isodate":
		return "must be a YYYY-MM-DD date"
	case "txnsource":
		return "must be manual, bank_statement, credit_card, upi, import or other:<text>"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Validate checks v and returns a VALIDATION_FAILED error listing every issue.
func Validate(what string, v any) error {
	if issues := Check("", v); len(issues) > 0 {
		return ferrors.Validation("invalid "+what, issues)
	}
	return nil
}
