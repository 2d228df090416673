// Package crdt implements the replicated document skiff stores tables and
// KV entries in.
//
// A document is a set of named containers. Each container holds a per-key
// ordered log of cells; the newest cell for a key is authoritative and
// older cells are dead, eligible for reclamation by compaction. Cells are
// ordered by a (counter, actor) tag - a Lamport clock paired with the
// writing peer's identifier - which gives every pair of concurrent writes
// the same deterministic winner on every peer (last-write-wins).
//
// ARCHITECTURE:
//
// Single-Writer Transactions:
// All local mutations happen inside short, synchronous transactions
// executed under one document-wide mutex. A transaction never suspends on
// I/O; propagation to other peers is entirely decoupled - a separate
// transport exchanges Save() bytes and feeds them back through Merge.
//
// Cross-Peer Merge:
// There is no coordinator. Merge takes the union of the per-key cell logs,
// deduplicates by tag, and re-resolves winners. Merging is commutative,
// associative, and idempotent, so peers applying each other's documents in
// any order converge to identical state.
//
// Change Notification:
// Observers subscribe per container and receive the set of keys whose
// winner changed, batched once per transaction (or merge). Callbacks run
// after the commit, outside the document lock, so an observer may read the
// document freely. Consumers re-read affected keys rather than receiving
// diffs.
//
// Logical time only: ordering uses the monotonic counter, never wall-clock
// timestamps, so replaying the same writes yields the same winners.
package crdt
