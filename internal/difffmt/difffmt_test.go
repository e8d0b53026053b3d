package difffmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"capnpdiff/internal/change"
	"capnpdiff/internal/source"
)

func sampleDiff() *change.Diff {
	return &change.Diff{
		Changes: []change.Change{
			{
				Kind:     change.KindNodeTypeChanged,
				Breakage: change.BreakWire,
				File:     0xa,
				Span:     source.Span{File: 0xa, Start: 22, End: 24},
				Ref:      change.Ref{Kind: change.RefField, ID: 0x1, Name: "id", Ordinal: 0},
			},
			{
				Kind:     change.KindNodeAdded,
				Breakage: change.BreakNone,
				File:     0xa,
				Span:     source.Span{File: 0xa, Start: 30, End: 35},
				Ref:      change.Ref{Kind: change.RefStruct, ID: 0x2, Name: "Extra"},
			},
		},
		Files: []change.FileEntry{{ID: 0xa, Path: "person.capnp"}},
	}
}

func sampleFS() *source.FileSet {
	fs := source.NewFileSet()
	// offsets:        0         1         2         3
	//                 0123456789012345678901234567890123456
	fs.AddVirtual(0xa, "person.capnp", []byte("struct Person {\n  id @0 :UInt32;\n}\n"))
	return fs
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleDiff(), sampleFS(), JSONOpts{IncludePositions: true, IncludeSnippets: true}); err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var out DiffJSON
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if out.Summary.Total != 2 || out.Summary.Wire != 1 || out.Summary.None != 1 {
		t.Errorf("summary = %+v", out.Summary)
	}
	c := out.Changes[0]
	if c.Kind != "node_type_changed" || c.Breakage != "wire" || c.Location.File != "person.capnp" {
		t.Errorf("change[0] = %+v", c)
	}
	if c.Location.StartLine != 2 {
		t.Errorf("start line = %d, want 2", c.Location.StartLine)
	}
	if c.Location.Snippet != "  id @0 :UInt32;" {
		t.Errorf("snippet = %q", c.Location.Snippet)
	}
	if c.Ordinal == nil || *c.Ordinal != 0 {
		t.Errorf("member ordinal missing: %+v", c.Ordinal)
	}
	if out.Changes[1].Ordinal != nil {
		t.Error("non-member change must not carry an ordinal")
	}
}

func TestPretty_NoColor(t *testing.T) {
	var buf bytes.Buffer
	err := Pretty(&buf, sampleDiff(), sampleFS(), PrettyOpts{ShowSnippets: true})
	if err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"person.capnp:2:7: WIRE node_type_changed: type of field 'id' changed",
		"  id @0 :UInt32;",
		"^~",
		"2 changes: 1 wire-breaking, 1 compatible",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPretty_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, &change.Diff{}, nil, PrettyOpts{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no changes") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestBinary_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Binary(&buf, sampleDiff(), nil, JSONOpts{}); err != nil {
		t.Fatalf("Binary: %v", err)
	}
	out, err := DecodeBinary(&buf)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if len(out.Changes) != 2 || out.Changes[0].Kind != "node_type_changed" {
		t.Errorf("decoded = %+v", out)
	}
}
