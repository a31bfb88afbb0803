package workflow

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
)

// ValidationError represents a validation error on a single field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every failed field of an entity.
// The HTTP layer renders it in the "errors" member of the response envelope.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + ": " + e.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns nil when no errors were collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) add(field, format string, args ...any) {
	*v = append(*v, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationErrors) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(field, "%s is required", field)
		return false
	}
	return true
}

func (v *ValidationErrors) length(field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if minLen > 0 && n < minLen {
		v.add(field, "%s must be at least %d characters", field, minLen)
	}
	if maxLen > 0 && n > maxLen {
		v.add(field, "%s must be at most %d characters", field, maxLen)
	}
}

func (v *ValidationErrors) nonNegative(field string, value float64) {
	if value < 0 {
		v.add(field, "%s cannot be negative", field)
	}
}

// ValidEmail reports whether s looks like an e-mail address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeEmail lower-cases and trims an e-mail address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
