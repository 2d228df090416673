// Package materialize mirrors workspace tables into a queryable SQLite
// database. It is a reference implementation of the read-only materializer
// contract: it consumes GetAllValid for the initial sync and Observe for
// incremental updates, and never writes back through the accessors.
//
// Each mirrored table becomes one SQLite table holding the row id and the
// row's canonical JSON. Invalid rows are excluded; a row turning invalid
// (or deleted) disappears from the mirror on the next notification.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package materialize
