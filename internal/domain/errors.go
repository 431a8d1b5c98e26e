package domain

import (
	"fmt"
	"strings"
)

// FieldViolation names one offending request field and the constraint
// it violated.
type FieldViolation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
}

// ValidationError reports bad, missing, or out-of-range request
// fields. Recoverable: the caller must correct and resubmit.
type ValidationError struct {
	Violations []FieldViolation `json:"violations"`
}

// Add records one field violation.
func (e *ValidationError) Add(field, constraint string) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Constraint: constraint})
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Constraint
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConfigurationError reports a malformed rule catalog or band table.
// Fatal at startup: the process must not serve decisions with a broken
// policy configuration.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

// InvariantError reports a logic defect detected at runtime, such as a
// band table that fails to cover a score. Surfaced loudly, never
// swallowed.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}
