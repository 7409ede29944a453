package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min", "gte":
		return fmt.Sprintf("%s is below its minimum", e.Field)
	case "max", "lte":
		return fmt.Sprintf("%s is above its maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s must be one of the allowed values", e.Field)
	default:
		return fmt.Sprintf("%s failed validation", e.Field)
	}
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Validate checks a configuration against its struct tags plus the
// cross-field constraints the tags cannot express.
func Validate(cfg *EngineConfig) error {
	if cfg == nil {
		return ValidationErrors{{Field: "config", Message: "config must not be nil"}}
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); !ok {
			return fmt.Errorf("config validation failed: %w", err)
		}

		out := make(ValidationErrors, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, ValidationError{
				Field: fe.Namespace(),
				Tag:   fe.Tag(),
				Value: fe.Value(),
			})
		}
		return out
	}

	// Lifecycle thresholds must keep their priority ordering meaningful.
	if cfg.StableThreshold > cfg.ProtectedThreshold {
		return ValidationErrors{{
			Field:   "StableThreshold",
			Message: "stable_threshold must not exceed protected_threshold",
		}}
	}
	if cfg.UnstableThreshold > cfg.StableThreshold {
		return ValidationErrors{{
			Field:   "UnstableThreshold",
			Message: "unstable_threshold must not exceed stable_threshold",
		}}
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}
