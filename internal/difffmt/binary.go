package difffmt

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"capnpdiff/internal/change"
	"capnpdiff/internal/source"
)

// Binary schema version - increment when the output document changes.
const binarySchemaVersion uint16 = 1

// binaryEnvelope wraps the document with a version for safe decoding by
// other tools.
type binaryEnvelope struct {
	Schema uint16
	Diff   DiffJSON
}

// Binary renders the diff as a versioned msgpack document carrying the
// same record set as the JSON output.
func Binary(w io.Writer, d *change.Diff, fs *source.FileSet, opts JSONOpts) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(binaryEnvelope{
		Schema: binarySchemaVersion,
		Diff:   BuildDiffOutput(d, fs, opts),
	})
}

// DecodeBinary reads a document produced by Binary. Used by downstream
// tooling and round-trip tests.
func DecodeBinary(r io.Reader) (DiffJSON, error) {
	var env binaryEnvelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return DiffJSON{}, err
	}
	return env.Diff, nil
}
