package differ

import (
	"capnpdiff/internal/change"
	"capnpdiff/internal/schema"
)

// member is the common shape of fields and methods for pairing purposes:
// a name plus an explicit or positional ordinal.
type member struct {
	name    string
	ordinal uint32
}

// memberHooks parameterizes the pairing algorithm per member kind.
type memberHooks struct {
	// refKind names the member kind in emitted changes.
	refKind change.RefKind
	// body diffs the paired members at old index oi and new index ni.
	body func(oi, ni int) error
	// removed and added run after the lifecycle event for unpaired
	// members; used by methods to cascade into anonymous parameter
	// structs. May be nil.
	removed func(oi int) error
	added   func(ni int) error
}

// diffMembers pairs two member lists. Pairing is positional within the
// common prefix; a name mismatch falls back to a whole-list name search
// to distinguish renames from reorderings. When several new members
// share the wanted name the lowest index wins, which can double-pair in
// pathological rename collisions; that behavior is intentional and
// pinned by tests.
func (d *Differ) diffMembers(oldParent, newParent *schema.Node, oldMs, newMs []member, hooks memberHooks) error {
	consumed := make([]bool, len(newMs))

	common := len(oldMs)
	if len(newMs) < common {
		common = len(newMs)
	}

	for i := 0; i < common; i++ {
		if oldMs[i].name == newMs[i].name {
			consumed[i] = true
			if err := hooks.body(i, i); err != nil {
				return err
			}
			continue
		}

		j := indexByName(newMs, oldMs[i].name)
		if j < 0 {
			// No new member carries the old name: a rename at this
			// ordinal.
			d.emit(change.Change{
				Kind:     change.KindNodeRenamed,
				Breakage: change.BreakCode,
				Span:     d.newLoc.MemberSpan(newParent, uint32(i)),
				Ref:      memberRef(hooks.refKind, newParent.ID, newMs[i].name, newMs[i].ordinal),
				OldName:  oldMs[i].name,
			})
			consumed[i] = true
			if err := hooks.body(i, i); err != nil {
				return err
			}
			continue
		}

		// The name still exists elsewhere: the member moved.
		d.emit(change.Change{
			Kind:     change.KindMemberOrdinalChanged,
			Breakage: change.BreakWire,
			Span:     d.newLoc.MemberSpan(newParent, uint32(j)),
			Ref:      memberRef(hooks.refKind, newParent.ID, newMs[j].name, newMs[j].ordinal),
		})
		consumed[j] = true
		if err := hooks.body(i, j); err != nil {
			return err
		}
	}

	// Ordinals past the new list are gone. Removed ordinals could be
	// reused incompatibly, so member removals always break the wire.
	for i := len(newMs); i < len(oldMs); i++ {
		d.emit(change.Change{
			Kind:     change.KindNodeRemoved,
			Breakage: change.BreakWire,
			Span:     d.oldLoc.MemberSpan(oldParent, uint32(i)),
			Ref:      memberRef(hooks.refKind, oldParent.ID, oldMs[i].name, oldMs[i].ordinal),
		})
		if hooks.removed != nil {
			if err := hooks.removed(i); err != nil {
				return err
			}
		}
	}

	for j := range newMs {
		if consumed[j] {
			continue
		}
		d.emit(change.Change{
			Kind: change.KindNodeAdded,
			Span: d.newLoc.MemberSpan(newParent, uint32(j)),
			Ref:  memberRef(hooks.refKind, newParent.ID, newMs[j].name, newMs[j].ordinal),
		})
		if hooks.added != nil {
			if err := hooks.added(j); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexByName returns the lowest index of the member with the given
// name, or -1.
func indexByName(ms []member, name string) int {
	for i := range ms {
		if ms[i].name == name {
			return i
		}
	}
	return -1
}

func memberRef(kind change.RefKind, parent schema.NodeID, name string, ordinal uint32) change.Ref {
	return change.Ref{Kind: kind, ID: parent, Name: name, Ordinal: ordinal}
}

// fieldMembers projects a field list for pairing. Implicit ordinals
// default to the declaration index.
func fieldMembers(fields []schema.Field) []member {
	ms := make([]member, len(fields))
	for i, f := range fields {
		ord := uint32(i)
		if f.Explicit {
			ord = uint32(f.Ordinal)
		}
		ms[i] = member{name: f.Name, ordinal: ord}
	}
	return ms
}

// methodMembers projects a method list; method ordinals are positional.
func methodMembers(methods []schema.Method) []member {
	ms := make([]member, len(methods))
	for i, m := range methods {
		ms[i] = member{name: m.Name, ordinal: uint32(i)}
	}
	return ms
}
