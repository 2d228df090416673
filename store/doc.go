// Package store provides the table and KV accessors over a replicated
// document: CRUD and queries on top of crdt containers, with
// validate-then-migrate reads.
//
// Writes store the raw row or value as given - the caller writes the
// current (latest) schema shape. Reads pass the stored raw value through
// the definition's union validator and then its migration function, so old
// shapes written by peers on older code surface in the latest shape without
// a batch rewrite step.
//
// Expected conditions are result variants, never errors:
//   - a stored value matching no schema version reads as StatusInvalid,
//     with the raw value preserved for inspection or repair
//   - a throwing migration converts to StatusInvalid at the boundary, so
//     one corrupt row cannot abort enumeration of the rest of the table
//   - absence is StatusNotFound; deleting an absent id reports
//     DeleteNotFoundLocally per id rather than failing the batch
//
// Conflict granularity is the whole row (or whole KV value): concurrent
// writes to the same id resolve entirely in favor of one peer's row, never
// a per-field merge. Update performs a local read-merge-write to shrink the
// conflict window without changing that unit.
package store
