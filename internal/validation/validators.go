package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance. Field names in errors are the json names.
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()
	Validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	if err := Validate.RegisterValidation("timeslot", validateTimeSlot); err != nil {
		panic(fmt.Sprintf("failed to register timeslot validator: %v", err))
	}
	if err := Validate.RegisterValidation("isodate", validateISODate); err != nil {
		panic(fmt.Sprintf("failed to register isodate validator: %v", err))
	}
}

// validateTimeSlot validates an "HH:MM" 24h time of day
func validateTimeSlot(fl validator.FieldLevel) bool {
	_, err := time.Parse(models.TimeSlotLayout, fl.Field().String())
	return err == nil
}

// validateISODate validates a "YYYY-MM-DD" calendar date
func validateISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse(models.DateLayout, fl.Field().String())
	return err == nil
}

// MissingFields returns the json names of fields that failed a "required" rule.
// It returns nil when err is not a validation error.
func MissingFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	var out []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			out = append(out, fe.Field())
		}
	}
	return out
}

// Describe turns a validation error into a short human readable sentence
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "timeslot":
			parts = append(parts, fmt.Sprintf("%s must be a time like 08:00", fe.Field()))
		case "isodate":
			parts = append(parts, fmt.Sprintf("%s must be a date like 2026-01-31", fe.Field()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ParseDate parses a "YYYY-MM-DD" calendar date
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}
