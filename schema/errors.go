package schema

import "fmt"

// Structural error codes (S100-S199). A StructuralError means the
// definition itself is malformed; it is the only error class in this
// package that represents a programmer mistake rather than bad data.
const (
	ErrEmptyName           = "S101" // definition name is empty
	ErrNoVersions          = "S102" // at least one version required
	ErrNilValidator        = "S103" // nil validator passed to Version
	ErrVersionAfterMigrate = "S104" // Version called after Migrate
	ErrMigrateTwice        = "S105" // Migrate called twice
	ErrNilMigrate          = "S106" // nil migration function
	ErrMissingIDField      = "S107" // version cannot guarantee id: string
)

// StructuralError reports a malformed table or KV definition, detected
// when the definition is built.
type StructuralError struct {
	Code       string
	Definition string
	Message    string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if e.Definition != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Definition, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func structuralErr(code, definition, message string) *StructuralError {
	return &StructuralError{Code: code, Definition: definition, Message: message}
}
