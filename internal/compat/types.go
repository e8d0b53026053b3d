package compat

import (
	"errors"
	"fmt"

	"capnpdiff/internal/schema"
)

// Class is the compatibility classification of a type change.
type Class uint8

const (
	// Same: identical types; no change.
	Same Class = iota
	// Equivalent: distinct spellings of the same type. Reserved for
	// generic handling; nothing produces it today, but it keeps the
	// "no change emitted" policy separate from Same.
	Equivalent
	// Compatible: wire-safe but source-breaking.
	Compatible
	// Incompatible: encoded messages may be misread.
	Incompatible
)

func (c Class) String() string {
	switch c {
	case Same:
		return "same"
	case Equivalent:
		return "equivalent"
	case Compatible:
		return "compatible"
	case Incompatible:
		return "incompatible"
	}
	return "unknown"
}

// ErrUnsupportedGenerics reports a struct or interface reference with
// brand scopes. Callers surface it as an `unsupported` change rather than
// aborting.
var ErrUnsupportedGenerics = errors.New("generic types are not supported")

// Classify compares an old and a new type under the Cap'n Proto evolution
// rules. The new-side node index resolves struct references for the
// list upgrade rule.
func Classify(old, new schema.Type, newIdx *schema.NodeIndex) (Class, error) {
	if old.Kind == new.Kind {
		return classifySameKind(old, new, newIdx)
	}
	if compatibleCrossKind(old, new) {
		return Compatible, nil
	}
	return Incompatible, nil
}

func classifySameKind(old, new schema.Type, newIdx *schema.NodeIndex) (Class, error) {
	switch old.Kind {
	case schema.TypeList:
		if old.Elem == nil || new.Elem == nil {
			return Incompatible, fmt.Errorf("list without element type")
		}
		if ok, err := listStructUpgrade(*old.Elem, *new.Elem, newIdx); err != nil {
			return Incompatible, err
		} else if ok {
			return Compatible, nil
		}
		return Classify(*old.Elem, *new.Elem, newIdx)

	case schema.TypeEnum:
		if old.TypeID == new.TypeID {
			return Same, nil
		}
		return Incompatible, nil

	case schema.TypeStruct, schema.TypeInterface:
		if old.BrandScopes != 0 || new.BrandScopes != 0 {
			return Incompatible, fmt.Errorf("%w: branded %s reference", ErrUnsupportedGenerics, old.Kind)
		}
		if old.TypeID == new.TypeID {
			return Same, nil
		}
		return Incompatible, nil

	default:
		// Primitives, text, data and AnyPointer are always Same with
		// themselves.
		return Same, nil
	}
}

// compatibleCrossKind implements the wire-safe upgrades between distinct
// type kinds.
func compatibleCrossKind(old, new schema.Type) bool {
	switch new.Kind {
	case schema.TypeAnyPointer:
		return old.IsPointer() && old.Kind != schema.TypeAnyPointer

	case schema.TypeUint16:
		// Enums encode as unsigned 16-bit.
		return old.Kind == schema.TypeEnum

	case schema.TypeData:
		return old.Kind == schema.TypeText || isByteList(old)

	case schema.TypeList:
		if new.Elem != nil && new.Elem.Kind == schema.TypeUint8 {
			return old.Kind == schema.TypeData
		}
		return false
	}
	return false
}

// listStructUpgrade reports whether List(P) -> List(S) falls under the
// struct-upgrade rule: S's first field has the kind of P. Lists of bools
// are explicitly excluded, as are pointers-to-bool upgrades.
func listStructUpgrade(oldElem, newElem schema.Type, newIdx *schema.NodeIndex) (bool, error) {
	if newElem.Kind != schema.TypeStruct {
		return false, nil
	}
	switch oldElem.Kind {
	case schema.TypeBool, schema.TypeStruct, schema.TypeInterface, schema.TypeEnum,
		schema.TypeAnyPointer, schema.TypeVoid:
		return false, nil
	}

	s, err := newIdx.Node(newElem.TypeID)
	if err != nil {
		return false, err
	}
	if s.Kind != schema.KindStruct || s.Struct == nil || len(s.Struct.Fields) == 0 {
		return false, nil
	}
	first := s.Struct.Fields[0]
	if first.Kind != schema.FieldSlot {
		return false, nil
	}
	return first.Slot.Type.Kind == oldElem.Kind, nil
}

func isByteList(t schema.Type) bool {
	return t.Kind == schema.TypeList && t.Elem != nil && t.Elem.Kind == schema.TypeUint8
}
