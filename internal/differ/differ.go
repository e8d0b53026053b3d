package differ

import (
	"errors"
	"fmt"
	"sort"

	"capnpdiff/internal/change"
	"capnpdiff/internal/schema"
)

// Implementation errors: inputs the differ recognizes but refuses to
// analyze. They abort the diff, unlike `unsupported` change emissions.
var (
	ErrGenericMethod  = errors.New("generic methods are not supported")
	ErrImplicitParams = errors.New("implicit method parameters are not supported")
)

// Differ walks two decoded schemas in lockstep and emits change records.
// All state is per-invocation; the input requests are never mutated.
type Differ struct {
	old, new *schema.Request

	oldIdx, newIdx *schema.NodeIndex
	oldLoc, newLoc *schema.SourceLocIndex

	bag *change.Bag

	// curFile tags every emitted change with the file being walked.
	curFile schema.NodeID
	// paths records every file id touched, new path winning over old.
	paths map[schema.NodeID]string
}

// Diff computes the semantic difference between two schemas.
func Diff(old, new *schema.Request) (*change.Diff, error) {
	oldIdx := schema.BuildIndex(old)
	newIdx := schema.BuildIndex(new)

	oldLoc, err := schema.BuildSourceLocIndex(old, oldIdx)
	if err != nil {
		return nil, fmt.Errorf("old source locations: %w", err)
	}
	newLoc, err := schema.BuildSourceLocIndex(new, newIdx)
	if err != nil {
		return nil, fmt.Errorf("new source locations: %w", err)
	}

	d := &Differ{
		old:    old,
		new:    new,
		oldIdx: oldIdx,
		newIdx: newIdx,
		oldLoc: oldLoc,
		newLoc: newLoc,
		bag:    change.NewBag(),
		paths:  make(map[schema.NodeID]string),
	}
	if err := d.diffFiles(); err != nil {
		return nil, err
	}
	return change.Package(d.bag, d.paths), nil
}

func (d *Differ) emit(c change.Change) {
	c.File = d.curFile
	d.bag.Add(c)
}

// fileNodes collects a request's file nodes sorted by id for
// deterministic emission.
func fileNodes(req *schema.Request) []*schema.Node {
	var files []*schema.Node
	for i := range req.Nodes {
		if req.Nodes[i].Kind == schema.KindFile {
			files = append(files, &req.Nodes[i])
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files
}

// diffFiles pairs files by their stable identifier and recurses into
// paired subtrees.
func (d *Differ) diffFiles() error {
	oldFiles := fileNodes(d.old)
	newFiles := fileNodes(d.new)

	newByID := make(map[schema.NodeID]*schema.Node, len(newFiles))
	for _, f := range newFiles {
		newByID[f.ID] = f
	}
	oldByID := make(map[schema.NodeID]*schema.Node, len(oldFiles))
	for _, f := range oldFiles {
		oldByID[f.ID] = f
	}

	for _, of := range oldFiles {
		nf, ok := newByID[of.ID]
		if !ok {
			// File removal can never break the wire: the compiler would
			// have refused the new schema if anything still imported it.
			d.curFile = of.ID
			d.paths[of.ID] = of.DisplayName
			d.emit(change.Change{
				Kind:     change.KindNodeRemoved,
				Breakage: change.BreakCode,
				Span:     d.oldLoc.NodeSpan(of),
				Ref:      nodeRef(of),
			})
			continue
		}
		d.curFile = nf.ID
		d.paths[nf.ID] = nf.DisplayName
		if err := d.diffNode(of, nf); err != nil {
			return err
		}
	}

	for _, nf := range newFiles {
		if _, ok := oldByID[nf.ID]; ok {
			continue
		}
		d.curFile = nf.ID
		d.paths[nf.ID] = nf.DisplayName
		d.emit(change.Change{
			Kind: change.KindNodeAdded,
			Span: d.newLoc.NodeSpan(nf),
			Ref:  nodeRef(nf),
		})
	}
	return nil
}

// diffNode compares a pair of nodes sharing an identifier.
func (d *Differ) diffNode(oldN, newN *schema.Node) error {
	if oldN.Kind != newN.Kind {
		// A kind change is a removal plus an addition. Nested subtrees
		// may survive under the new kind, so recursion continues.
		d.emit(change.Change{
			Kind:     change.KindNodeRemoved,
			Breakage: change.BreakCode,
			Span:     d.oldLoc.NodeSpan(oldN),
			Ref:      nodeRef(oldN),
		})
		d.emit(change.Change{
			Kind: change.KindNodeAdded,
			Span: d.newLoc.NodeSpan(newN),
			Ref:  nodeRef(newN),
		})
		return d.diffNested(oldN, newN)
	}

	if oldN.ShortName() != newN.ShortName() {
		d.emit(change.Change{
			Kind:     change.KindNodeRenamed,
			Breakage: change.BreakCode,
			Span:     d.newLoc.NodeSpan(newN),
			Ref:      nodeRef(newN),
			OldName:  oldN.ShortName(),
		})
	}

	var err error
	switch newN.Kind {
	case schema.KindFile:
		// Files have no body of their own.
	case schema.KindStruct:
		err = d.diffStructBody(oldN, newN)
	case schema.KindEnum:
		err = d.diffEnum(oldN, newN)
	case schema.KindInterface:
		err = d.diffInterface(oldN, newN)
	case schema.KindConst:
		err = d.diffConst(oldN, newN)
	case schema.KindAnnotation:
		err = d.diffAnnotation(oldN, newN)
	default:
		err = fmt.Errorf("unknown node kind %d", newN.Kind)
	}
	if err != nil {
		return err
	}

	return d.diffNested(oldN, newN)
}

// diffNested matches the nested declarations of a paired parent. Matching
// is by id first; leftovers on the old side fall back to a (name, kind)
// match, which is reported as an id change and then diffed as a pair.
func (d *Differ) diffNested(oldN, newN *schema.Node) error {
	newByID := make(map[schema.NodeID]schema.NestedNode, len(newN.Nested))
	for _, nn := range newN.Nested {
		newByID[nn.ID] = nn
	}
	oldByID := make(map[schema.NodeID]schema.NestedNode, len(oldN.Nested))
	for _, on := range oldN.Nested {
		oldByID[on.ID] = on
	}
	consumed := make(map[schema.NodeID]bool)

	for _, on := range oldN.Nested {
		oldChild, err := d.oldIdx.Node(on.ID)
		if err != nil {
			return err
		}

		if _, ok := newByID[on.ID]; ok {
			newChild, err := d.newIdx.Node(on.ID)
			if err != nil {
				return err
			}
			if err := d.diffNode(oldChild, newChild); err != nil {
				return err
			}
			continue
		}

		// Fallback: same short name and kind under the same parent.
		if nn, ok := d.matchNestedByName(oldChild, newN, oldByID, consumed); ok {
			newChild, err := d.newIdx.Node(nn.ID)
			if err != nil {
				return err
			}
			consumed[nn.ID] = true
			d.emit(change.Change{
				Kind:     change.KindNodeIDChanged,
				Breakage: change.BreakWire,
				Span:     d.newLoc.NodeSpan(newChild),
				Ref:      nodeRef(newChild),
			})
			if err := d.diffNode(oldChild, newChild); err != nil {
				return err
			}
			continue
		}

		d.emit(change.Change{
			Kind:     change.KindNodeRemoved,
			Breakage: removalBreakage(oldChild),
			Span:     d.oldLoc.NodeSpan(oldChild),
			Ref:      nodeRef(oldChild),
		})
	}

	for _, nn := range newN.Nested {
		if _, ok := oldByID[nn.ID]; ok || consumed[nn.ID] {
			continue
		}
		newChild, err := d.newIdx.Node(nn.ID)
		if err != nil {
			return err
		}
		d.emit(change.Change{
			Kind: change.KindNodeAdded,
			Span: d.newLoc.NodeSpan(newChild),
			Ref:  nodeRef(newChild),
		})
	}
	return nil
}

// matchNestedByName finds an unconsumed new nested entry with the same
// short name and kind as the old child, skipping entries that pair by id
// with some old entry.
func (d *Differ) matchNestedByName(oldChild *schema.Node, newN *schema.Node, oldByID map[schema.NodeID]schema.NestedNode, consumed map[schema.NodeID]bool) (schema.NestedNode, bool) {
	for _, nn := range newN.Nested {
		if consumed[nn.ID] {
			continue
		}
		if _, pairedByID := oldByID[nn.ID]; pairedByID {
			continue
		}
		if nn.Name != oldChild.ShortName() {
			continue
		}
		newChild, err := d.newIdx.Node(nn.ID)
		if err != nil || newChild.Kind != oldChild.Kind {
			continue
		}
		return nn, true
	}
	return schema.NestedNode{}, false
}

// removalBreakage: removing a group node removes a field, which frees an
// ordinal for incompatible reuse; removing any other nested node only
// breaks dependent source.
func removalBreakage(n *schema.Node) change.Breakage {
	if n.Kind == schema.KindStruct && n.Struct != nil && n.Struct.IsGroup {
		return change.BreakWire
	}
	return change.BreakCode
}

func nodeRef(n *schema.Node) change.Ref {
	return change.Ref{Kind: refKindOf(n.Kind), ID: n.ID, Name: n.ShortName()}
}

func refKindOf(k schema.NodeKind) change.RefKind {
	switch k {
	case schema.KindFile:
		return change.RefFile
	case schema.KindStruct:
		return change.RefStruct
	case schema.KindEnum:
		return change.RefEnum
	case schema.KindInterface:
		return change.RefInterface
	case schema.KindConst:
		return change.RefConst
	case schema.KindAnnotation:
		return change.RefAnnotation
	}
	return change.RefStruct
}
