package schema

import (
	"errors"
	"testing"

	"capnpdiff/internal/source"
)

func testRequest() *Request {
	return &Request{
		Nodes: []Node{
			{ID: 0x100, Kind: KindFile, DisplayName: "a.capnp"},
			{ID: 0x101, Kind: KindStruct, ScopeID: 0x100, DisplayName: "a.capnp:Person", PrefixLen: 8, Struct: &StructNode{}},
			{ID: 0x102, Kind: KindStruct, ScopeID: 0x101, DisplayName: "a.capnp:Person.employment", PrefixLen: 15, Struct: &StructNode{IsGroup: true}},
			// synthetic method parameter struct: scope zero
			{ID: 0x103, Kind: KindStruct, ScopeID: 0, DisplayName: "a.capnp:Iface.ping$Params", PrefixLen: 8, Struct: &StructNode{}},
		},
	}
}

func TestNodeIndex_Lookup(t *testing.T) {
	ix := BuildIndex(testRequest())

	n, err := ix.Node(0x101)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if n.ShortName() != "Person" {
		t.Errorf("ShortName = %q, want %q", n.ShortName(), "Person")
	}

	if _, err := ix.Node(0xdead); !errors.Is(err, ErrMissingNode) {
		t.Errorf("Node(unknown) = %v, want ErrMissingNode", err)
	}
}

func TestNodeIndex_ContainingFile(t *testing.T) {
	ix := BuildIndex(testRequest())

	tests := []struct {
		name   string
		id     NodeID
		file   NodeID
		wantOK bool
	}{
		{name: "file is its own file", id: 0x100, file: 0x100, wantOK: true},
		{name: "direct child", id: 0x101, file: 0x100, wantOK: true},
		{name: "nested group", id: 0x102, file: 0x100, wantOK: true},
		{name: "synthetic node", id: 0x103, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, ok, err := ix.ContainingFile(tt.id)
			if err != nil {
				t.Fatalf("ContainingFile: %v", err)
			}
			if ok != tt.wantOK || (ok && file != tt.file) {
				t.Errorf("ContainingFile(%#x) = (%#x, %v), want (%#x, %v)", tt.id, file, ok, tt.file, tt.wantOK)
			}
		})
	}

	// Memoized second lookup takes the cached path.
	if _, ok, _ := ix.ContainingFile(0x102); !ok {
		t.Error("memoized lookup lost the file")
	}
}

func TestSourceLocIndex(t *testing.T) {
	req := testRequest()
	req.Nodes[1].Span = source.Span{File: 0x100, Start: 1, End: 2}
	req.SourceInfo = []NodeSourceInfo{
		{ID: 0x101, Start: 10, End: 50, Members: []MemberSourceInfo{
			{Start: 20, End: 30},
			{Start: 0, End: 0}, // zero range: not recorded
		}},
		{ID: 0x103, Start: 5, End: 9}, // synthetic: skipped
		{ID: 0xbeef, Start: 1, End: 2}, // unknown node: skipped
	}
	ix := BuildIndex(req)
	loc, err := BuildSourceLocIndex(req, ix)
	if err != nil {
		t.Fatalf("BuildSourceLocIndex: %v", err)
	}

	person := &req.Nodes[1]
	if sp := loc.NodeSpan(person); sp.Start != 10 || sp.End != 50 || sp.File != 0x100 {
		t.Errorf("NodeSpan = %+v, side table should win over inline span", sp)
	}
	if sp := loc.MemberSpan(person, 0); sp.Start != 20 || sp.End != 30 {
		t.Errorf("MemberSpan(0) = %+v", sp)
	}
	// Member 1 had a zero range: falls back to the node span.
	if sp := loc.MemberSpan(person, 1); sp.Start != 10 || sp.End != 50 {
		t.Errorf("MemberSpan(1) fallback = %+v", sp)
	}

	// A node with no source info at all falls back to its inline span.
	group := &req.Nodes[2]
	group.Span = source.Span{File: 0x100, Start: 77, End: 99}
	if sp := loc.NodeSpan(group); sp.Start != 77 {
		t.Errorf("NodeSpan inline fallback = %+v", sp)
	}
}
