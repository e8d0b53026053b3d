// Package wire reads Cap'n Proto messages at the pointer-word level.
//
// It decodes the segment framing and resolves struct, list, and far
// pointers into typed views (Ptr) that read words straight out of the
// segments. Nothing is unmarshalled into intermediate structures: the
// value-equality algorithm in internal/compat walks encodings of
// different widths word by word, and the schema decoder in
// internal/schema picks fields out of structs by byte offset.
//
// The package is read-only. Messages are never mutated, and all views
// are bounds-checked once, when the pointer resolves.
package wire
