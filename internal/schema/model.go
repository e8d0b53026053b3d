package schema

import (
	"capnpdiff/internal/source"
	"capnpdiff/internal/wire"
)

// NodeID is the stable 64-bit identifier of a schema node.
type NodeID uint64

// NodeKind discriminates the node union.
type NodeKind uint8

const (
	KindFile NodeKind = iota
	KindStruct
	KindEnum
	KindInterface
	KindConst
	KindAnnotation
)

func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindInterface:
		return "interface"
	case KindConst:
		return "const"
	case KindAnnotation:
		return "annotation"
	}
	return "unknown"
}

// Node is one schema declaration. The kind payload matching Kind is
// non-nil and the others are nil; file nodes carry no payload.
type Node struct {
	ID          NodeID
	DisplayName string
	PrefixLen   uint32
	ScopeID     NodeID
	Nested      []NestedNode
	Span        source.Span // inline range; may be wrong for annotation nodes

	Kind       NodeKind
	Struct     *StructNode
	Enum       *EnumNode
	Interface  *InterfaceNode
	Const      *ConstNode
	Annotation *AnnotationNode
}

// ShortName returns the display name with the scope prefix stripped.
func (n *Node) ShortName() string {
	if uint64(n.PrefixLen) > uint64(len(n.DisplayName)) {
		return n.DisplayName
	}
	return n.DisplayName[n.PrefixLen:]
}

// NestedNode names a child declaration.
type NestedNode struct {
	Name string
	ID   NodeID
}

// StructNode is the struct payload.
type StructNode struct {
	IsGroup           bool
	DiscriminantCount uint16
	Fields            []Field
}

// EnumNode is the enum payload.
type EnumNode struct {
	Enumerants []Enumerant
}

// InterfaceNode is the interface payload.
type InterfaceNode struct {
	Methods []Method
}

// ConstNode is the const payload.
type ConstNode struct {
	Type  Type
	Value Value
}

// AnnotationNode is the annotation payload. Targets is indexed by
// AnnotationTarget.
type AnnotationNode struct {
	Type    Type
	Targets [NumAnnotationTargets]bool
}

// AnnotationTarget enumerates the twelve declaration kinds an annotation
// may apply to, in wire order.
type AnnotationTarget uint8

const (
	TargetFile AnnotationTarget = iota
	TargetConst
	TargetEnum
	TargetEnumerant
	TargetStruct
	TargetField
	TargetUnion
	TargetGroup
	TargetInterface
	TargetMethod
	TargetParam
	TargetAnnotation

	NumAnnotationTargets = 12
)

func (t AnnotationTarget) String() string {
	switch t {
	case TargetFile:
		return "file"
	case TargetConst:
		return "const"
	case TargetEnum:
		return "enum"
	case TargetEnumerant:
		return "enumerant"
	case TargetStruct:
		return "struct"
	case TargetField:
		return "field"
	case TargetUnion:
		return "union"
	case TargetGroup:
		return "group"
	case TargetInterface:
		return "interface"
	case TargetMethod:
		return "method"
	case TargetParam:
		return "param"
	case TargetAnnotation:
		return "annotation"
	}
	return "unknown"
}

// FieldKind discriminates the field union.
type FieldKind uint8

const (
	FieldSlot FieldKind = iota
	FieldGroup
)

// Field belongs to a struct.
type Field struct {
	Name      string
	CodeOrder uint16

	Kind  FieldKind
	Slot  *SlotField
	Group *GroupField

	// Ordinal is the explicit @N ordinal; Explicit is false when the
	// source relied on declaration order.
	Ordinal  uint16
	Explicit bool
}

// SlotField is a plain data or pointer field.
type SlotField struct {
	Offset             uint32
	Type               Type
	Default            Value
	HadExplicitDefault bool
}

// GroupField refers to the synthetic struct node holding the group.
type GroupField struct {
	TypeID NodeID
}

// Enumerant belongs to an enum. Its ordinal is its position.
type Enumerant struct {
	Name      string
	CodeOrder uint16
}

// Method belongs to an interface.
type Method struct {
	Name      string
	CodeOrder uint16

	ParamType  NodeID
	ResultType NodeID

	// Non-zero scope counts mean generics, which the differ rejects.
	ParamScopes    int
	ResultScopes   int
	ImplicitParams int
}

// TypeKind discriminates the type union.
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeText
	TypeData
	TypeList
	TypeEnum
	TypeStruct
	TypeInterface
	TypeAnyPointer
)

func (k TypeKind) String() string {
	switch k {
	case TypeVoid:
		return "Void"
	case TypeBool:
		return "Bool"
	case TypeInt8:
		return "Int8"
	case TypeInt16:
		return "Int16"
	case TypeInt32:
		return "Int32"
	case TypeInt64:
		return "Int64"
	case TypeUint8:
		return "UInt8"
	case TypeUint16:
		return "UInt16"
	case TypeUint32:
		return "UInt32"
	case TypeUint64:
		return "UInt64"
	case TypeFloat32:
		return "Float32"
	case TypeFloat64:
		return "Float64"
	case TypeText:
		return "Text"
	case TypeData:
		return "Data"
	case TypeList:
		return "List"
	case TypeEnum:
		return "enum"
	case TypeStruct:
		return "struct"
	case TypeInterface:
		return "interface"
	case TypeAnyPointer:
		return "AnyPointer"
	}
	return "unknown"
}

// Type is a tagged type reference. Elem is set for lists; TypeID and
// BrandScopes for enum/struct/interface references.
type Type struct {
	Kind        TypeKind
	Elem        *Type
	TypeID      NodeID
	BrandScopes int
}

// IsPointer reports whether values of the type live behind a pointer.
func (t Type) IsPointer() bool {
	switch t.Kind {
	case TypeText, TypeData, TypeList, TypeStruct, TypeInterface, TypeAnyPointer:
		return true
	}
	return false
}

// String renders the type for change messages.
func (t Type) String() string {
	if t.Kind == TypeList && t.Elem != nil {
		return "List(" + t.Elem.String() + ")"
	}
	return t.Kind.String()
}

// ValueKind discriminates the value union, in wire order.
type ValueKind uint8

const (
	ValueVoid ValueKind = iota
	ValueBool
	ValueInt8
	ValueInt16
	ValueInt32
	ValueInt64
	ValueUint8
	ValueUint16
	ValueUint32
	ValueUint64
	ValueFloat32
	ValueFloat64
	ValueText
	ValueData
	ValueList
	ValueEnum
	ValueStruct
	ValueInterface
	ValueAnyPointer
)

func (k ValueKind) String() string {
	switch k {
	case ValueVoid:
		return "void"
	case ValueBool:
		return "bool"
	case ValueInt8:
		return "int8"
	case ValueInt16:
		return "int16"
	case ValueInt32:
		return "int32"
	case ValueInt64:
		return "int64"
	case ValueUint8:
		return "uint8"
	case ValueUint16:
		return "uint16"
	case ValueUint32:
		return "uint32"
	case ValueUint64:
		return "uint64"
	case ValueFloat32:
		return "float32"
	case ValueFloat64:
		return "float64"
	case ValueText:
		return "text"
	case ValueData:
		return "data"
	case ValueList:
		return "list"
	case ValueEnum:
		return "enum"
	case ValueStruct:
		return "struct"
	case ValueInterface:
		return "interface"
	case ValueAnyPointer:
		return "anyPointer"
	}
	return "unknown"
}

// Value is a tagged constant or default value. Scalars are decoded
// eagerly; pointer-typed payloads keep the raw wire pointer so equality
// can walk segment words without allocating.
type Value struct {
	Kind ValueKind

	Bool  bool
	Int   int64
	Uint  uint64
	Float float64 // float32 payloads are widened
	Enum  uint16
	Ptr   wire.Ptr // text, data, list, struct, anyPointer
}

// Request is a decoded CodeGeneratorRequest: the input of the differ.
type Request struct {
	Nodes []Node
	Files []RequestedFile

	// SourceInfo carries the compiler's byte ranges per node and per
	// member, keyed during index construction.
	SourceInfo []NodeSourceInfo
}

// RequestedFile names one of the files the schemas were compiled from.
type RequestedFile struct {
	ID       NodeID
	Filename string
}

// NodeSourceInfo is the per-node location record.
type NodeSourceInfo struct {
	ID      NodeID
	Start   uint32
	End     uint32
	Members []MemberSourceInfo
}

// MemberSourceInfo is the per-member location record, positional by
// declaration order.
type MemberSourceInfo struct {
	Start uint32
	End   uint32
}
