package schema

import (
	"errors"
	"fmt"
)

// ErrMissingNode reports a lookup of an identifier that is not present in
// the request. Hitting it mid-diff is a bug or a corrupt schema, never a
// recoverable condition.
var ErrMissingNode = errors.New("missing node")

// NodeIndex provides identifier-based lookups over one side's nodes.
// Schemas form a graph keyed by 64-bit ids; the index is the flat view
// the differ walks.
type NodeIndex struct {
	nodes   map[NodeID]*Node
	parents map[NodeID]NodeID

	// files memoizes the containing-file walk. A node maps to 0 when the
	// parent chain ends in a zero scope without reaching a file node
	// (synthetic nodes such as anonymous method parameter structs).
	files map[NodeID]NodeID
}

// BuildIndex indexes all nodes of a request.
func BuildIndex(req *Request) *NodeIndex {
	ix := &NodeIndex{
		nodes:   make(map[NodeID]*Node, len(req.Nodes)),
		parents: make(map[NodeID]NodeID, len(req.Nodes)),
		files:   make(map[NodeID]NodeID),
	}
	for i := range req.Nodes {
		n := &req.Nodes[i]
		ix.nodes[n.ID] = n
		ix.parents[n.ID] = n.ScopeID
	}
	return ix
}

// Node returns the node with the given id.
func (ix *NodeIndex) Node(id NodeID) (*Node, error) {
	n, ok := ix.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrMissingNode, uint64(id))
	}
	return n, nil
}

// Has reports whether the id is known.
func (ix *NodeIndex) Has(id NodeID) bool {
	_, ok := ix.nodes[id]
	return ok
}

// Parent returns the scope id of the given node.
func (ix *NodeIndex) Parent(id NodeID) (NodeID, error) {
	p, ok := ix.parents[id]
	if !ok {
		return 0, fmt.Errorf("%w: %#x", ErrMissingNode, uint64(id))
	}
	return p, nil
}

// ContainingFile walks the parent chain to the file node. ok is false for
// synthetic nodes whose chain ends at scope zero.
func (ix *NodeIndex) ContainingFile(id NodeID) (NodeID, bool, error) {
	if f, ok := ix.files[id]; ok {
		return f, f != 0, nil
	}

	cur := id
	for {
		n, err := ix.Node(cur)
		if err != nil {
			return 0, false, err
		}
		if n.Kind == KindFile {
			ix.files[id] = cur
			return cur, true, nil
		}
		if n.ScopeID == 0 {
			ix.files[id] = 0
			return 0, false, nil
		}
		cur = n.ScopeID
	}
}
