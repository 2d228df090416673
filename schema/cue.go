package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/skiffdb/skiff/value"
)

// CUEValidator adapts a CUE schema to the Validator contract.
// It validates by unifying the schema with the candidate value and checking
// that the result is concrete and error-free.
type CUEValidator struct {
	schema cue.Value
}

// FromCUE wraps an already-compiled CUE value as a validator.
// Returns an error if the schema itself does not evaluate.
func FromCUE(schema cue.Value) (*CUEValidator, error) {
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("cue schema: %w", err)
	}
	return &CUEValidator{schema: schema}, nil
}

// CompileCUE compiles CUE source into a validator, e.g.:
//
//	v, err := schema.CompileCUE(`{id: string, title: string, views: int}`)
func CompileCUE(src string) (*CUEValidator, error) {
	ctx := cuecontext.New()
	return FromCUE(ctx.CompileString(src))
}

// Validate implements Validator by unifying the candidate with the schema.
// JSON is a subset of CUE, so the candidate's canonical encoding compiles
// directly in the schema's context.
func (c *CUEValidator) Validate(v value.Value) (value.Value, []Issue) {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return nil, []Issue{{Message: fmt.Sprintf("encode candidate: %v", err)}}
	}

	candidate := c.schema.Context().CompileBytes(data)
	if err := candidate.Err(); err != nil {
		return nil, cueIssues(err)
	}

	unified := c.schema.Unify(candidate)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return nil, cueIssues(err)
	}
	return v, nil
}

// EnsuresStringID implements IDGuard. It reports whether the schema
// declares an "id" field whose kind is exactly string.
func (c *CUEValidator) EnsuresStringID() bool {
	id := c.schema.LookupPath(cue.ParsePath("id"))
	if !id.Exists() {
		return false
	}
	return id.IncompleteKind() == cue.StringKind
}

// cueIssues flattens a CUE error list into Issues with dotted paths.
func cueIssues(err error) []Issue {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []Issue{{Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(errs))
	for _, e := range errs {
		issues = append(issues, Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: e.Error(),
		})
	}
	return issues
}
