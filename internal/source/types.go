package source

type (
	// FileID is the stable 64-bit identifier of a schema file node.
	// Unlike a dense file-set index it survives recompilation, so spans
	// from the old and the new schema can share one namespace.
	FileID uint64
	// FileFlags encodes metadata about a loaded source file.
	FileFlags uint8
)

const (
	// FileVirtual indicates the file was added from memory (test, stdin).
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileHadCRLF
)

// File captures metadata and content for a single schema source file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32
	Flags   FileFlags
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}
