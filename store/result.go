package store

import (
	"github.com/skiffdb/skiff/schema"
	"github.com/skiffdb/skiff/value"
)

// Status classifies the outcome of a read.
type Status string

const (
	// StatusValid means the stored value matched a schema version and
	// migrated cleanly to the latest shape.
	StatusValid Status = "valid"
	// StatusInvalid means the stored value matched no schema version, or
	// its migration failed. The raw value is preserved for inspection.
	StatusInvalid Status = "invalid"
	// StatusNotFound means no live value is stored under the id.
	StatusNotFound Status = "not_found"
)

// GetResult is the tagged outcome of a table read.
type GetResult struct {
	Status Status
	ID     string

	// Row is the migrated, latest-shape row. Set only when Status is
	// StatusValid.
	Row value.Object

	// Raw is the stored value exactly as written. Set only when Status is
	// StatusInvalid, for inspection and repair.
	Raw value.Value

	// Issues explains why the value is invalid: the per-version validation
	// issues, or a single issue describing a failed migration.
	Issues []schema.Issue
}

func validResult(id string, row value.Object) GetResult {
	return GetResult{Status: StatusValid, ID: id, Row: row}
}

// invalidResult clones the raw value: it aliases the stored cell, and a
// caller repairing its copy in place must not rewrite stored state untagged.
func invalidResult(id string, raw value.Value, issues []schema.Issue) GetResult {
	return GetResult{Status: StatusInvalid, ID: id, Raw: value.Clone(raw), Issues: issues}
}

func notFoundResult(id string) GetResult {
	return GetResult{Status: StatusNotFound, ID: id}
}

// DeleteStatus classifies the outcome of a removal.
type DeleteStatus string

const (
	// Deleted means a live value existed locally and was removed.
	Deleted DeleteStatus = "deleted"
	// DeleteNotFoundLocally means no live value existed under the id on
	// this peer. A tombstone is still written so the deletion propagates
	// to peers that do hold the row.
	DeleteNotFoundLocally DeleteStatus = "not_found_locally"
)

// DeleteResult reports the outcome of one id in a removal.
type DeleteResult struct {
	ID     string
	Status DeleteStatus
}

// KVResult is the tagged outcome of a KV read.
type KVResult struct {
	Status Status

	// Value is the migrated, latest-shape value. Set only when Status is
	// StatusValid.
	Value value.Value

	// Raw is the stored value exactly as written. Set only when Status is
	// StatusInvalid.
	Raw value.Value

	// Issues explains an invalid value.
	Issues []schema.Issue
}
