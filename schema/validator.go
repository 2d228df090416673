package schema

import (
	"fmt"

	"github.com/skiffdb/skiff/value"
)

// Issue describes one reason a value failed validation.
type Issue struct {
	// Version is the 1-based schema version that produced the issue.
	// Zero when the issue comes from a bare validator outside a union.
	Version int `json:"version,omitempty"`

	// Path locates the offending field ("" for the whole value).
	Path string `json:"path,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// String renders the issue for diagnostics.
func (i Issue) String() string {
	switch {
	case i.Version > 0 && i.Path != "":
		return fmt.Sprintf("v%d: %s: %s", i.Version, i.Path, i.Message)
	case i.Version > 0:
		return fmt.Sprintf("v%d: %s", i.Version, i.Message)
	case i.Path != "":
		return fmt.Sprintf("%s: %s", i.Path, i.Message)
	default:
		return i.Message
	}
}

// Validator is the minimal contract a schema version must satisfy.
//
// Validate returns (value, nil) on success and (nil, issues) on failure,
// with at least one issue. The returned value may differ from the input
// (a validator is free to canonicalize), but most return it unchanged.
//
// The contract is deliberately narrow so validators from different
// libraries can be mixed within one workspace.
type Validator interface {
	Validate(v value.Value) (value.Value, []Issue)
}

// IDGuard is optionally implemented by validators that can report whether
// every value they accept carries a string "id" field. Table builders use
// it as a build-time guard; validators that cannot introspect simply omit
// the interface and the guard is skipped.
type IDGuard interface {
	EnsuresStringID() bool
}
