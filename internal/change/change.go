package change

import (
	"fmt"

	"capnpdiff/internal/schema"
	"capnpdiff/internal/source"
)

// Kind is the tagged change kind. The wire encoding reserves room for
// more ordinals than are currently in use.
type Kind uint8

const (
	KindUnsupported Kind = iota
	KindNodeAdded
	KindNodeRemoved
	KindNodeRenamed
	KindNodeIDChanged
	KindMemberOrdinalChanged
	KindNodeTypeChanged
	KindFieldDefaultChanged
	KindConstValueChanged
	KindAnnotationTargetAdded
	KindAnnotationTargetRemoved
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindNodeAdded:
		return "node_added"
	case KindNodeRemoved:
		return "node_removed"
	case KindNodeRenamed:
		return "node_renamed"
	case KindNodeIDChanged:
		return "node_id_changed"
	case KindMemberOrdinalChanged:
		return "member_ordinal_changed"
	case KindNodeTypeChanged:
		return "node_type_changed"
	case KindFieldDefaultChanged:
		return "field_default_value_changed"
	case KindConstValueChanged:
		return "const_value_changed"
	case KindAnnotationTargetAdded:
		return "annotation_target_added"
	case KindAnnotationTargetRemoved:
		return "annotation_target_removed"
	}
	return "unknown"
}

// RefKind names the kind of entity a change is about. The member kinds
// reuse the ref id as the parent node id; the typed kinds appear only on
// type- and value-change events.
type RefKind uint8

const (
	RefFile RefKind = iota
	RefStruct
	RefEnum
	RefInterface
	RefConst
	RefAnnotation
	RefField
	RefEnumerant
	RefMethod
	RefMethodInput
	RefMethodOutput
)

func (k RefKind) String() string {
	switch k {
	case RefFile:
		return "file"
	case RefStruct:
		return "struct"
	case RefEnum:
		return "enum"
	case RefInterface:
		return "interface"
	case RefConst:
		return "const"
	case RefAnnotation:
		return "annotation"
	case RefField:
		return "field"
	case RefEnumerant:
		return "enumerant"
	case RefMethod:
		return "method"
	case RefMethodInput:
		return "method input"
	case RefMethodOutput:
		return "method output"
	}
	return "unknown"
}

// Member reports whether the ref addresses a field, enumerant, or method
// rather than a node.
func (k RefKind) Member() bool {
	switch k {
	case RefField, RefEnumerant, RefMethod, RefMethodInput, RefMethodOutput:
		return true
	}
	return false
}

// Ref identifies the affected entity. For member kinds ID is the parent
// node id and Ordinal the member's wire ordinal.
type Ref struct {
	Kind    RefKind
	ID      schema.NodeID
	Name    string
	Ordinal uint32
}

// Change is one emitted difference. Output records own their payload
// strings; nothing borrows from the input schemas.
type Change struct {
	Kind     Kind
	Breakage Breakage
	File     schema.NodeID
	Span     source.Span
	Ref      Ref

	// OldName is set on renames.
	OldName string
	// Target is set on annotation-target changes.
	Target string
	// Reason is set on unsupported changes.
	Reason string
}

// Describe renders a one-line human message for the change.
func (c Change) Describe() string {
	name := c.Ref.Name
	switch c.Kind {
	case KindUnsupported:
		return "unsupported: " + c.Reason
	case KindNodeAdded:
		return fmt.Sprintf("%s '%s' added", c.Ref.Kind, name)
	case KindNodeRemoved:
		return fmt.Sprintf("%s '%s' removed", c.Ref.Kind, name)
	case KindNodeRenamed:
		return fmt.Sprintf("%s '%s' renamed to '%s'", c.Ref.Kind, c.OldName, name)
	case KindNodeIDChanged:
		return fmt.Sprintf("%s '%s' changed id", c.Ref.Kind, name)
	case KindMemberOrdinalChanged:
		return fmt.Sprintf("%s '%s' moved to ordinal %d", c.Ref.Kind, name, c.Ref.Ordinal)
	case KindNodeTypeChanged:
		return fmt.Sprintf("type of %s '%s' changed", c.Ref.Kind, name)
	case KindFieldDefaultChanged:
		return fmt.Sprintf("default value of field '%s' changed", name)
	case KindConstValueChanged:
		return fmt.Sprintf("value of const '%s' changed", name)
	case KindAnnotationTargetAdded:
		return fmt.Sprintf("annotation '%s' gained target %s", name, c.Target)
	case KindAnnotationTargetRemoved:
		return fmt.Sprintf("annotation '%s' lost target %s", name, c.Target)
	}
	return "unknown change"
}
