package report

import "fmt"

// MalformedOutputError is returned when raw run output lacks required fields,
// which usually means an incompatible newman version.
type MalformedOutputError struct {
	Field  string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing"
	}

	return fmt.Sprintf("malformed newman output: %s %s", e.Field, reason)
}

func missing(field string) error {
	return &MalformedOutputError{Field: field, Reason: "missing"}
}
