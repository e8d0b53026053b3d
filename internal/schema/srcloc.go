package schema

import (
	"fmt"

	"fortio.org/safecast"

	"capnpdiff/internal/source"
)

// MemberKey addresses a field, enumerant, or method, which have no ids of
// their own: the parent node id plus the member's declaration index.
// Together the two halves are wide enough that keys never collide.
type MemberKey struct {
	Node   NodeID
	Member uint32
}

// SourceLocIndex maps nodes and members to byte ranges in their declaring
// file. The compiler's side table is authoritative: for annotation nodes
// the inline node range can point at the annotated declaration instead of
// the annotation itself.
type SourceLocIndex struct {
	nodes   map[NodeID]source.Span
	members map[MemberKey]source.Span
}

// BuildSourceLocIndex indexes the request's source-info records. The node
// index supplies the containing file for each span.
func BuildSourceLocIndex(req *Request, nodes *NodeIndex) (*SourceLocIndex, error) {
	ix := &SourceLocIndex{
		nodes:   make(map[NodeID]source.Span, len(req.SourceInfo)),
		members: make(map[MemberKey]source.Span),
	}
	for _, si := range req.SourceInfo {
		if !nodes.Has(si.ID) {
			// The compiler may emit info for nodes of files outside the
			// requested set; those never show up in a diff.
			continue
		}
		fileID, ok, err := nodes.ContainingFile(si.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fid := source.FileID(fileID)

		if si.End > si.Start {
			ix.nodes[si.ID] = source.Span{File: fid, Start: si.Start, End: si.End}
		}
		for i, m := range si.Members {
			if m.End <= m.Start {
				// Zero ranges mean the compiler had nothing to say;
				// lookups fall back to the node's own range.
				continue
			}
			idx, err := safecast.Conv[uint32](i)
			if err != nil {
				return nil, fmt.Errorf("member index overflow: %w", err)
			}
			ix.members[MemberKey{Node: si.ID, Member: idx}] = source.Span{File: fid, Start: m.Start, End: m.End}
		}
	}
	return ix, nil
}

// NodeSpan returns the byte range of a node, preferring the side table
// over the node's inline span.
func (ix *SourceLocIndex) NodeSpan(n *Node) source.Span {
	if sp, ok := ix.nodes[n.ID]; ok {
		return sp
	}
	return n.Span
}

// MemberSpan returns the byte range of member i of the given node,
// falling back to the node's own range when the member has none.
func (ix *SourceLocIndex) MemberSpan(n *Node, i uint32) source.Span {
	if sp, ok := ix.members[MemberKey{Node: n.ID, Member: i}]; ok {
		return sp
	}
	return ix.NodeSpan(n)
}
