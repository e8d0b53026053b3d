package differ

import (
	"errors"
	"fmt"

	"capnpdiff/internal/change"
	"capnpdiff/internal/compat"
	"capnpdiff/internal/schema"
	"capnpdiff/internal/source"
)

// breakageOf maps a compatibility class to the breakage of a type change.
func breakageOf(cls compat.Class) change.Breakage {
	if cls == compat.Compatible {
		return change.BreakCode
	}
	return change.BreakWire
}

// diffStructBody diffs the field lists of a paired struct (or group).
func (d *Differ) diffStructBody(oldN, newN *schema.Node) error {
	oldFields := oldN.Struct.Fields
	newFields := newN.Struct.Fields
	return d.diffMembers(oldN, newN, fieldMembers(oldFields), fieldMembers(newFields), memberHooks{
		refKind: change.RefField,
		body: func(oi, ni int) error {
			return d.diffFieldPair(newN, &oldFields[oi], &newFields[ni], ni)
		},
	})
}

// diffFieldPair diffs the bodies of two paired fields.
func (d *Differ) diffFieldPair(newParent *schema.Node, oldF, newF *schema.Field, newIdx int) error {
	span := d.newLoc.MemberSpan(newParent, uint32(newIdx))
	ref := change.Ref{Kind: change.RefField, ID: newParent.ID, Name: newF.Name, Ordinal: fieldOrdinal(newF, newIdx)}

	if oldF.Kind != newF.Kind {
		// Slot vs group re-lays the struct.
		d.emit(change.Change{
			Kind:     change.KindNodeTypeChanged,
			Breakage: change.BreakWire,
			Span:     span,
			Ref:      ref,
		})
		return nil
	}

	if oldF.Kind == schema.FieldGroup {
		return d.diffGroupField(oldF, newF, span, ref)
	}

	cls, err := compat.Classify(oldF.Slot.Type, newF.Slot.Type, d.newIdx)
	if err != nil {
		if errors.Is(err, compat.ErrUnsupportedGenerics) {
			d.emitUnsupported(span, ref, err)
			return nil
		}
		return err
	}

	switch cls {
	case compat.Same, compat.Equivalent:
		eq, err := compat.EqualValues(oldF.Slot.Default, newF.Slot.Default)
		if err != nil {
			if errors.Is(err, compat.ErrUnsupportedValueEquality) {
				d.emitUnsupported(span, ref, err)
				return nil
			}
			return fmt.Errorf("field %q default: %w", newF.Name, err)
		}
		if !eq {
			d.emit(change.Change{
				Kind:     change.KindFieldDefaultChanged,
				Breakage: change.BreakWire,
				Span:     span,
				Ref:      ref,
			})
		}
	default:
		d.emit(change.Change{
			Kind:     change.KindNodeTypeChanged,
			Breakage: breakageOf(cls),
			Span:     span,
			Ref:      ref,
		})
	}
	return nil
}

// diffGroupField compares group fields through their synthetic struct
// nodes: matching ids recurse into the group body, divergent ids are a
// type change.
func (d *Differ) diffGroupField(oldF, newF *schema.Field, span source.Span, ref change.Ref) error {
	if oldF.Group.TypeID != newF.Group.TypeID {
		d.emit(change.Change{
			Kind:     change.KindNodeTypeChanged,
			Breakage: change.BreakWire,
			Span:     span,
			Ref:      ref,
		})
		return nil
	}
	oldG, err := d.oldIdx.Node(oldF.Group.TypeID)
	if err != nil {
		return err
	}
	newG, err := d.newIdx.Node(newF.Group.TypeID)
	if err != nil {
		return err
	}
	return d.diffNode(oldG, newG)
}

func fieldOrdinal(f *schema.Field, idx int) uint32 {
	if f.Explicit {
		return uint32(f.Ordinal)
	}
	return uint32(idx)
}

func (d *Differ) emitUnsupported(span source.Span, ref change.Ref, reason error) {
	d.emit(change.Change{
		Kind:     change.KindUnsupported,
		Breakage: change.BreakWire,
		Span:     span,
		Ref:      ref,
		Reason:   reason.Error(),
	})
}

// diffEnum compares enumerants position by position: reordering an
// enumerant changes its wire value, so only name changes at a stable
// position are renames.
func (d *Differ) diffEnum(oldN, newN *schema.Node) error {
	oldEs := oldN.Enum.Enumerants
	newEs := newN.Enum.Enumerants

	common := len(oldEs)
	if len(newEs) < common {
		common = len(newEs)
	}
	for i := 0; i < common; i++ {
		if oldEs[i].Name == newEs[i].Name {
			continue
		}
		d.emit(change.Change{
			Kind:     change.KindNodeRenamed,
			Breakage: change.BreakCode,
			Span:     d.newLoc.MemberSpan(newN, uint32(i)),
			Ref:      memberRef(change.RefEnumerant, newN.ID, newEs[i].Name, uint32(i)),
			OldName:  oldEs[i].Name,
		})
	}
	for i := len(newEs); i < len(oldEs); i++ {
		// A future enumerant at this position would collide with the
		// removed ordinal.
		d.emit(change.Change{
			Kind:     change.KindNodeRemoved,
			Breakage: change.BreakWire,
			Span:     d.oldLoc.MemberSpan(oldN, uint32(i)),
			Ref:      memberRef(change.RefEnumerant, oldN.ID, oldEs[i].Name, uint32(i)),
		})
	}
	for i := len(oldEs); i < len(newEs); i++ {
		d.emit(change.Change{
			Kind: change.KindNodeAdded,
			Span: d.newLoc.MemberSpan(newN, uint32(i)),
			Ref:  memberRef(change.RefEnumerant, newN.ID, newEs[i].Name, uint32(i)),
		})
	}
	return nil
}

// diffInterface diffs method lists. Generic methods and implicit
// parameters abort: the analysis would be wrong, not merely incomplete.
func (d *Differ) diffInterface(oldN, newN *schema.Node) error {
	for _, side := range []*schema.Node{oldN, newN} {
		for i := range side.Interface.Methods {
			m := &side.Interface.Methods[i]
			if m.ParamScopes != 0 || m.ResultScopes != 0 {
				return fmt.Errorf("%w: method %q of %q", ErrGenericMethod, m.Name, side.ShortName())
			}
			if m.ImplicitParams != 0 {
				return fmt.Errorf("%w: method %q of %q", ErrImplicitParams, m.Name, side.ShortName())
			}
		}
	}

	oldMs := oldN.Interface.Methods
	newMs := newN.Interface.Methods
	return d.diffMembers(oldN, newN, methodMembers(oldMs), methodMembers(newMs), memberHooks{
		refKind: change.RefMethod,
		body: func(oi, ni int) error {
			return d.diffMethodPair(newN, &oldMs[oi], &newMs[ni], ni)
		},
		removed: func(oi int) error {
			return d.cascadeMethodFields(&oldMs[oi], d.oldIdx, d.oldLoc, change.KindNodeRemoved, change.BreakWire)
		},
		added: func(ni int) error {
			return d.cascadeMethodFields(&newMs[ni], d.newIdx, d.newLoc, change.KindNodeAdded, change.BreakNone)
		},
	})
}

// diffMethodPair compares the parameter and result structs of a paired
// method. Anonymous (zero-scope) structs are diffed transparently; named
// ones compare by identifier like any struct-typed field.
func (d *Differ) diffMethodPair(newParent *schema.Node, oldM, newM *schema.Method, newIdx int) error {
	span := d.newLoc.MemberSpan(newParent, uint32(newIdx))
	if err := d.diffMethodStruct(oldM.ParamType, newM.ParamType, span, change.Ref{
		Kind: change.RefMethodInput, ID: newParent.ID, Name: newM.Name, Ordinal: uint32(newIdx),
	}); err != nil {
		return err
	}
	return d.diffMethodStruct(oldM.ResultType, newM.ResultType, span, change.Ref{
		Kind: change.RefMethodOutput, ID: newParent.ID, Name: newM.Name, Ordinal: uint32(newIdx),
	})
}

func (d *Differ) diffMethodStruct(oldID, newID schema.NodeID, span source.Span, ref change.Ref) error {
	oldS, err := d.oldIdx.Node(oldID)
	if err != nil {
		return err
	}
	newS, err := d.newIdx.Node(newID)
	if err != nil {
		return err
	}
	if oldS.Kind != schema.KindStruct || newS.Kind != schema.KindStruct {
		return fmt.Errorf("method %q: parameter node is a %s, not a struct", ref.Name, oldS.Kind)
	}

	if oldS.ScopeID == 0 && newS.ScopeID == 0 {
		// Auto-generated parameter struct: its fields are the method's
		// parameters, so diff the bodies without lifecycle noise.
		if err := d.diffStructBody(oldS, newS); err != nil {
			return err
		}
		return d.diffNested(oldS, newS)
	}

	if oldID != newID || oldS.ScopeID == 0 || newS.ScopeID == 0 {
		d.emit(change.Change{
			Kind:     change.KindNodeTypeChanged,
			Breakage: change.BreakWire,
			Span:     span,
			Ref:      ref,
		})
	}
	return nil
}

// cascadeMethodFields emits lifecycle events for the parameters of an
// added or removed method: the anonymous parameter and result structs
// are invisible on their own, so their fields surface here.
func (d *Differ) cascadeMethodFields(m *schema.Method, idx *schema.NodeIndex, loc *schema.SourceLocIndex, kind change.Kind, br change.Breakage) error {
	for _, id := range []schema.NodeID{m.ParamType, m.ResultType} {
		n, err := idx.Node(id)
		if err != nil {
			return err
		}
		if n.ScopeID != 0 || n.Kind != schema.KindStruct {
			continue
		}
		for i := range n.Struct.Fields {
			f := &n.Struct.Fields[i]
			d.emit(change.Change{
				Kind:     kind,
				Breakage: br,
				Span:     loc.MemberSpan(n, uint32(i)),
				Ref:      change.Ref{Kind: change.RefField, ID: n.ID, Name: f.Name, Ordinal: fieldOrdinal(f, i)},
			})
		}
	}
	return nil
}

// diffConst compares a paired constant. The value comparator only runs
// when the types classify as unchanged.
func (d *Differ) diffConst(oldN, newN *schema.Node) error {
	span := d.newLoc.NodeSpan(newN)
	ref := change.Ref{Kind: change.RefConst, ID: newN.ID, Name: newN.ShortName()}

	cls, err := compat.Classify(oldN.Const.Type, newN.Const.Type, d.newIdx)
	if err != nil {
		if errors.Is(err, compat.ErrUnsupportedGenerics) {
			d.emitUnsupported(span, ref, err)
			return nil
		}
		return err
	}
	if cls != compat.Same && cls != compat.Equivalent {
		d.emit(change.Change{
			Kind:     change.KindNodeTypeChanged,
			Breakage: breakageOf(cls),
			Span:     span,
			Ref:      ref,
		})
		return nil
	}

	eq, err := compat.EqualValues(oldN.Const.Value, newN.Const.Value)
	if err != nil {
		if errors.Is(err, compat.ErrUnsupportedValueEquality) {
			d.emitUnsupported(span, ref, err)
			return nil
		}
		return fmt.Errorf("const %q value: %w", newN.ShortName(), err)
	}
	if !eq {
		// Constants occupy no wire space.
		d.emit(change.Change{
			Kind:     change.KindConstValueChanged,
			Breakage: change.BreakCode,
			Span:     span,
			Ref:      ref,
		})
	}
	return nil
}

// diffAnnotation compares a paired annotation declaration: its type,
// then its twelve target flags.
func (d *Differ) diffAnnotation(oldN, newN *schema.Node) error {
	span := d.newLoc.NodeSpan(newN)
	ref := change.Ref{Kind: change.RefAnnotation, ID: newN.ID, Name: newN.ShortName()}

	cls, err := compat.Classify(oldN.Annotation.Type, newN.Annotation.Type, d.newIdx)
	if err != nil {
		if errors.Is(err, compat.ErrUnsupportedGenerics) {
			d.emitUnsupported(span, ref, err)
			return nil
		}
		return err
	}
	if cls != compat.Same && cls != compat.Equivalent {
		d.emit(change.Change{
			Kind:     change.KindNodeTypeChanged,
			Breakage: breakageOf(cls),
			Span:     span,
			Ref:      ref,
		})
	}

	for t := schema.AnnotationTarget(0); t < schema.NumAnnotationTargets; t++ {
		oldOK := oldN.Annotation.Targets[t]
		newOK := newN.Annotation.Targets[t]
		switch {
		case oldOK && !newOK:
			d.emit(change.Change{
				Kind:     change.KindAnnotationTargetRemoved,
				Breakage: change.BreakCode,
				Span:     span,
				Ref:      ref,
				Target:   t.String(),
			})
		case !oldOK && newOK:
			d.emit(change.Change{
				Kind:   change.KindAnnotationTargetAdded,
				Span:   span,
				Ref:    ref,
				Target: t.String(),
			})
		}
	}
	return nil
}
