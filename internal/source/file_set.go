package source

import (
	"os"
	"path/filepath"
)

// FileSet holds the schema source files referenced by a diff, keyed by the
// 64-bit file node identifier. It is populated after diffing, from the
// file table of the output, and exists only to turn byte offsets into
// line/column positions and snippets.
type FileSet struct {
	files  map[FileID]*File
	byPath map[string]FileID
}

// NewFileSet creates a new empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{
		files:  make(map[FileID]*File),
		byPath: make(map[string]FileID),
	}
}

// Add stores a file under the given schema file id. Content is kept as
// written on disk: compiler byte offsets refer to the raw bytes, so CRLF
// and BOM are recorded in flags but never stripped from Content.
func (fs *FileSet) Add(id FileID, path string, content []byte) *File {
	flags := FileFlags(0)
	if hasBOM(content) {
		flags |= FileHadBOM
	}
	if hasCRLF(content) {
		flags |= FileHadCRLF
	}
	f := &File{
		ID:      id,
		Path:    normalizePath(path),
		Content: content,
		LineIdx: buildLineIndex(content),
		Flags:   flags,
	}
	fs.files[id] = f
	fs.byPath[f.Path] = id
	return f
}

// AddVirtual adds an in-memory file (tests, stdin).
func (fs *FileSet) AddVirtual(id FileID, name string, content []byte) *File {
	f := fs.Add(id, name, content)
	f.Flags |= FileVirtual
	return f
}

// Load reads a file from disk and adds it under id.
func (fs *FileSet) Load(id FileID, path string) (*File, error) {
	// #nosec G304 -- path comes from the diff file table
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return fs.Add(id, path, content), nil
}

// Get returns the file for the given id, or nil if it was never loaded.
func (fs *FileSet) Get(id FileID) *File {
	return fs.files[id]
}

// GetByPath returns the file loaded under the given path, if any.
func (fs *FileSet) GetByPath(path string) (*File, bool) {
	id, ok := fs.byPath[normalizePath(path)]
	if !ok {
		return nil, false
	}
	return fs.files[id], true
}

// Len returns the number of loaded files.
func (fs *FileSet) Len() int {
	return len(fs.files)
}

// Resolve converts a span into line and column positions. Returns zero
// positions when the span's file was not loaded.
func (fs *FileSet) Resolve(span Span) (start, end LineCol) {
	f := fs.files[span.File]
	if f == nil {
		return LineCol{}, LineCol{}
	}
	return toLineCol(f.LineIdx, span.Start), toLineCol(f.LineIdx, span.End)
}

func normalizePath(p string) string {
	// единый вид в кроссплатформенных дифах
	return filepath.ToSlash(filepath.Clean(p))
}
