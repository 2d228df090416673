// Package workspace ties the pieces together: one workspace owns a set of
// table and KV definitions, the replicated document they bind to, and the
// current epoch pointer.
//
// An epoch is a generation of the document. Ordinary schema evolution never
// needs a new epoch - migrate-on-read handles it - but schema-breaking
// changes and corruption recovery advance the epoch: a new document is
// seeded from the current valid rows (optionally through a caller-supplied
// transform) and the head pointer moves forward. The head pointer only ever
// moves by monotonic max, never plain overwrite, so a racing peer's advance
// cannot regress it. Prior epochs become read-only history and are not
// auto-deleted.
//
// Persisted layout, through a caller-supplied Sink:
//
//	{workspaceID}.head      head pointer record (epoch, monotonic-max write)
//	{workspaceID}-{epoch}   one document blob per epoch, append-mostly
//	                        until compacted
//
// The workspace itself performs no network I/O: Export and ApplyRemote are
// the integration points for an external replication transport.
package workspace
