package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"pawtrail/internal/types"
)

// Validator wraps go-playground/validator with JSON field names and the
// domain tags used by request DTOs.
type Validator struct {
	v      *validator.Validate
	logger *slog.Logger
}

// NewValidator builds a validator that reports JSON field names and
// registers the custom hours tag used by time frames.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
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
	// hours: a positive, finite horizon of at most one year.
	_ = v.RegisterValidation("hours", func(fl validator.FieldLevel) bool {
		h := fl.Field().Float()
		return h > 0 && h <= 8760
	})
	return &Validator{v: v, logger: logger}
}

// Struct validates s and returns a validation_invalid_field AppError listing
// each failing field and rule.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		val.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		fields[path] = fe.Tag()
		msgs = append(msgs, path+" failed "+fe.Tag())
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
		"invalid request: "+strings.Join(msgs, "; "), err, map[string]any{"fields": fields})
}
