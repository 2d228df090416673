// Package value provides the canonical value model for skiff documents.
//
// This package contains type definitions and encoding only. All other
// packages import value; value imports nothing internal. This keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use Int (int64) for numbers. Floats would
//     make canonical encoding, and therefore convergence, non-deterministic
//     across peers.
//   - Canonical encoding follows RFC 8785: object keys sorted by UTF-16
//     code units, NFC-normalized strings, no HTML escaping.
//   - Canonical bytes are the document wire format, so two peers holding
//     the same logical state always serialize to identical bytes.
package value
