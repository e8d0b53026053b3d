// Package change defines the core change-record model shared by the
// differ and every output surface.
//
// # Purpose
//
//   - Provide deterministic, serialisable data structures describing one
//     semantic difference between two schemas.
//   - Offer a light-weight accumulator (Bag) that lets the differ emit in
//     traversal order without coupling to output ordering.
//   - Classify every record with a Breakage level so CI can gate on wire
//     compatibility without inspecting individual kinds.
//
// # Scope
//
// Package change does not perform formatting, IO, or schema analysis.
// Rendering lives in internal/difffmt; the emission logic lives in
// internal/differ.
//
// # Data model
//
// Change is the central record. It contains:
//
//   - Kind – the tagged change kind (node_added, node_removed, ...).
//   - Breakage – tri-level enum: none, code, wire.
//   - File / Span – the declaring file id and byte range of the change.
//   - Ref – the affected entity: kind, id, short name, and for members
//     the parent id plus ordinal.
//   - OldName / Target / Reason – kind-specific payload.
//
// Records own their payload strings and never borrow from the input
// schema trees: a packaged Diff stays valid after the inputs are gone.
//
// # Ordering
//
// The differ emits into a Bag in traversal order. Package sorts by
// (file path, start byte), deduplicates, and assembles the file table
// covering every referenced file id. Consumers can rely on both
// invariants; internal/testkit checks them in tests.
package change
