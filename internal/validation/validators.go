package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/taskfence/taskfence/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for domain enums. Registration only fails on
	// programmer error (empty tag), so panic is appropriate here.
	if err := Validate.RegisterValidation("recurrence_type", validateRecurrenceType); err != nil {
		panic(fmt.Sprintf("failed to register recurrence_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("iso_weekday", validateISOWeekday); err != nil {
		panic(fmt.Sprintf("failed to register iso_weekday validator: %v", err))
	}
	if err := Validate.RegisterValidation("event_type", validateEventType); err != nil {
		panic(fmt.Sprintf("failed to register event_type validator: %v", err))
	}
}

// validateRecurrenceType validates that a string is a valid RecurrenceType enum value
func validateRecurrenceType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch models.RecurrenceType(value) {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceWeekdaysOnly:
		return true
	default:
		return false
	}
}

// validateISOWeekday validates an ISO weekday number (Monday=1 .. Sunday=7)
func validateISOWeekday(fl validator.FieldLevel) bool {
	v := fl.Field().Int()
	return v >= 1 && v <= 7
}

// validateEventType validates a notification event type
func validateEventType(fl validator.FieldLevel) bool {
	switch models.NotificationEventType(fl.Field().String()) {
	case models.NotificationEventEnter, models.NotificationEventExit:
		return true
	default:
		return false
	}
}

// ValidateRecurrenceType checks a raw query/body value against the enum.
func ValidateRecurrenceType(value string) error {
	switch models.RecurrenceType(value) {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceWeekdaysOnly:
		return nil
	default:
		return fmt.Errorf("invalid recurrence type: %s", value)
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing
// control characters other than newline and tab.
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
