// Package schema defines versioned table and KV definitions and the
// library-agnostic validator contract they are built from.
//
// A definition is an ordered list of validators - one per historical schema
// version - plus a single migration function from the union of all
// registered shapes to the latest shape. Definitions are immutable once
// built and have no side effects; they bind to a document only when handed
// to an accessor.
//
// Validators are duck-typed: anything implementing Validate can serve as a
// version, so validators backed by different libraries may coexist across
// tables in one workspace. Two implementations ship here: a CUE-backed
// validator (FromCUE/CompileCUE) and a minimal native object validator
// (NewObject).
//
// Malformed definitions (empty name, no versions, Version after Migrate,
// a table version that cannot guarantee an "id" string field) are rejected
// at Build time with a StructuralError, before any document exists.
package schema
