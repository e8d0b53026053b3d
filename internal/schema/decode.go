package schema

import (
	"fmt"
	"math"

	"capnpdiff/internal/source"
	"capnpdiff/internal/wire"
)

// Field offsets into the capnp schema structs (schema.capnp). Byte
// offsets address the data section; ptr constants index the pointer
// section. The compiler may emit shorter structs than these layouts
// describe; reads past the end return zero, which is exactly the old
// wire-format behavior.
const (
	// CodeGeneratorRequest
	reqPtrNodes      = 0
	reqPtrFiles      = 1
	reqPtrSourceInfo = 3

	// CodeGeneratorRequest.RequestedFile
	reqFileOffID   = 0 // u64
	reqFilePtrName = 0

	// Node
	nodeOffID           = 0  // u64
	nodeOffPrefixLen    = 8  // u32
	nodeOffWhich        = 12 // u16
	nodeOffScopeID      = 16 // u64
	nodePtrName         = 0
	nodePtrNested       = 1
	nodeWhichFile       = 0
	nodeWhichStruct     = 1
	nodeWhichEnum       = 2
	nodeWhichInterface  = 3
	nodeWhichConst      = 4
	nodeWhichAnnotation = 5

	// Node.struct group
	structOffDiscCount = 30 // u16
	structBitIsGroup   = 224
	structPtrFields    = 3

	// Node.enum group
	enumPtrEnumerants = 3

	// Node.interface group
	ifacePtrMethods = 3

	// Node.const group
	constPtrType  = 3
	constPtrValue = 4

	// Node.annotation group
	annPtrType        = 3
	annBitTargetsFile = 112 // twelve target bits follow in wire order

	// Node.NestedNode
	nestedOffID   = 0 // u64
	nestedPtrName = 0

	// Field
	fieldOffCodeOrder    = 0  // u16
	fieldOffDiscriminant = 2  // u16, XOR 0xffff
	fieldOffWhich        = 8  // u16
	fieldPtrName         = 0
	fieldWhichSlot       = 0
	fieldWhichGroup      = 1

	fieldSlotOffOffset      = 4 // u32
	fieldSlotPtrType        = 2
	fieldSlotPtrDefault     = 3
	fieldSlotBitHadExplicit = 112

	fieldGroupOffTypeID = 16 // u64

	fieldOffOrdinalWhich    = 10 // u16
	fieldOffOrdinalExplicit = 12 // u16
	fieldOrdinalImplicit    = 0
	fieldOrdinalExplicit    = 1

	// Enumerant
	enumerantOffCodeOrder = 0 // u16
	enumerantPtrName      = 0

	// Method
	methodOffCodeOrder   = 0  // u16
	methodOffParamType   = 8  // u64
	methodOffResultType  = 16 // u64
	methodPtrName        = 0
	methodPtrParamBrand  = 2
	methodPtrResultBrand = 3
	methodPtrImplicit    = 4

	// Type
	typeOffWhich  = 0 // u16
	typeOffTypeID = 8 // u64
	typePtrElem   = 0
	typePtrBrand  = 0

	// Value
	valueOffWhich = 0 // u16

	// Brand
	brandPtrScopes = 0

	// Node.SourceInfo
	srcOffID      = 0  // u64
	srcOffStart   = 8  // u32
	srcOffEnd     = 12 // u32
	srcPtrMembers = 1

	// Node.SourceInfo.Member
	srcMemberOffStart = 0 // u32
	srcMemberOffEnd   = 4 // u32
)

// DecodeRequest decodes an encoded CodeGeneratorRequest, as produced by
// `capnp compile -o-`, into the differ's model. Pointer-typed values keep
// references into the message, so the byte slice must stay alive as long
// as the request.
func DecodeRequest(data []byte) (*Request, error) {
	msg, err := wire.ParseStream(data)
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	root, err := msg.Root()
	if err != nil {
		return nil, fmt.Errorf("request root: %w", err)
	}
	if root.Kind() != wire.KindStruct {
		return nil, fmt.Errorf("request root is %s, want struct", root.Kind())
	}

	req := &Request{}
	if err := decodeNodes(root, req); err != nil {
		return nil, err
	}
	if err := decodeRequestedFiles(root, req); err != nil {
		return nil, err
	}
	if err := decodeSourceInfo(root, req); err != nil {
		return nil, err
	}
	applyInlineSpans(req)
	return req, nil
}

func decodeNodes(root wire.Ptr, req *Request) error {
	list, err := root.PtrSlot(reqPtrNodes)
	if err != nil {
		return fmt.Errorf("nodes list: %w", err)
	}
	if list.IsNull() {
		return nil
	}
	req.Nodes = make([]Node, 0, list.Len())
	for i := uint32(0); i < list.Len(); i++ {
		el, err := list.ListStruct(i)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		n, err := decodeNode(el)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		req.Nodes = append(req.Nodes, n)
	}
	return nil
}

func decodeNode(p wire.Ptr) (Node, error) {
	name, err := ptrText(p, nodePtrName)
	if err != nil {
		return Node{}, fmt.Errorf("displayName: %w", err)
	}
	n := Node{
		ID:          NodeID(p.Uint64(nodeOffID)),
		DisplayName: name,
		PrefixLen:   p.Uint32(nodeOffPrefixLen),
		ScopeID:     NodeID(p.Uint64(nodeOffScopeID)),
	}

	if err := decodeNested(p, &n); err != nil {
		return Node{}, err
	}

	switch p.Uint16(nodeOffWhich) {
	case nodeWhichFile:
		n.Kind = KindFile
	case nodeWhichStruct:
		n.Kind = KindStruct
		n.Struct = &StructNode{
			IsGroup:           p.Bit(structBitIsGroup),
			DiscriminantCount: p.Uint16(structOffDiscCount),
		}
		if err := decodeFields(p, n.Struct); err != nil {
			return Node{}, err
		}
	case nodeWhichEnum:
		n.Kind = KindEnum
		n.Enum = &EnumNode{}
		if err := decodeEnumerants(p, n.Enum); err != nil {
			return Node{}, err
		}
	case nodeWhichInterface:
		n.Kind = KindInterface
		n.Interface = &InterfaceNode{}
		if err := decodeMethods(p, n.Interface); err != nil {
			return Node{}, err
		}
	case nodeWhichConst:
		n.Kind = KindConst
		typ, err := ptrType(p, constPtrType)
		if err != nil {
			return Node{}, fmt.Errorf("const type: %w", err)
		}
		val, err := ptrValue(p, constPtrValue)
		if err != nil {
			return Node{}, fmt.Errorf("const value: %w", err)
		}
		n.Const = &ConstNode{Type: typ, Value: val}
	case nodeWhichAnnotation:
		n.Kind = KindAnnotation
		typ, err := ptrType(p, annPtrType)
		if err != nil {
			return Node{}, fmt.Errorf("annotation type: %w", err)
		}
		ann := &AnnotationNode{Type: typ}
		for t := uint32(0); t < NumAnnotationTargets; t++ {
			ann.Targets[t] = p.Bit(annBitTargetsFile + t)
		}
		n.Annotation = ann
	default:
		return Node{}, fmt.Errorf("unknown node kind %d for %q", p.Uint16(nodeOffWhich), name)
	}
	return n, nil
}

func decodeNested(p wire.Ptr, n *Node) error {
	list, err := p.PtrSlot(nodePtrNested)
	if err != nil {
		return fmt.Errorf("nestedNodes: %w", err)
	}
	if list.IsNull() {
		return nil
	}
	n.Nested = make([]NestedNode, 0, list.Len())
	for i := uint32(0); i < list.Len(); i++ {
		el, err := list.ListStruct(i)
		if err != nil {
			return fmt.Errorf("nestedNodes[%d]: %w", i, err)
		}
		name, err := ptrText(el, nestedPtrName)
		if err != nil {
			return fmt.Errorf("nestedNodes[%d] name: %w", i, err)
		}
		n.Nested = append(n.Nested, NestedNode{
			Name: name,
			ID:   NodeID(el.Uint64(nestedOffID)),
		})
	}
	return nil
}

func decodeFields(p wire.Ptr, s *StructNode) error {
	list, err := p.PtrSlot(structPtrFields)
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	if list.IsNull() {
		return nil
	}
	s.Fields = make([]Field, 0, list.Len())
	for i := uint32(0); i < list.Len(); i++ {
		el, err := list.ListStruct(i)
		if err != nil {
			return fmt.Errorf("fields[%d]: %w", i, err)
		}
		f, err := decodeField(el)
		if err != nil {
			return fmt.Errorf("fields[%d]: %w", i, err)
		}
		s.Fields = append(s.Fields, f)
	}
	return nil
}

func decodeField(p wire.Ptr) (Field, error) {
	name, err := ptrText(p, fieldPtrName)
	if err != nil {
		return Field{}, fmt.Errorf("name: %w", err)
	}
	f := Field{
		Name:      name,
		CodeOrder: p.Uint16(fieldOffCodeOrder),
	}

	switch p.Uint16(fieldOffWhich) {
	case fieldWhichSlot:
		typ, err := ptrType(p, fieldSlotPtrType)
		if err != nil {
			return Field{}, fmt.Errorf("slot type: %w", err)
		}
		def, err := ptrValue(p, fieldSlotPtrDefault)
		if err != nil {
			return Field{}, fmt.Errorf("default value: %w", err)
		}
		f.Kind = FieldSlot
		f.Slot = &SlotField{
			Offset:             p.Uint32(fieldSlotOffOffset),
			Type:               typ,
			Default:            def,
			HadExplicitDefault: p.Bit(fieldSlotBitHadExplicit),
		}
	case fieldWhichGroup:
		f.Kind = FieldGroup
		f.Group = &GroupField{TypeID: NodeID(p.Uint64(fieldGroupOffTypeID))}
	default:
		return Field{}, fmt.Errorf("unknown field kind %d for %q", p.Uint16(fieldOffWhich), name)
	}

	if p.Uint16(fieldOffOrdinalWhich) == fieldOrdinalExplicit {
		f.Explicit = true
		f.Ordinal = p.Uint16(fieldOffOrdinalExplicit)
	}
	return f, nil
}

func decodeEnumerants(p wire.Ptr, e *EnumNode) error {
	list, err := p.PtrSlot(enumPtrEnumerants)
	if err != nil {
		return fmt.Errorf("enumerants: %w", err)
	}
	if list.IsNull() {
		return nil
	}
	e.Enumerants = make([]Enumerant, 0, list.Len())
	for i := uint32(0); i < list.Len(); i++ {
		el, err := list.ListStruct(i)
		if err != nil {
			return fmt.Errorf("enumerants[%d]: %w", i, err)
		}
		name, err := ptrText(el, enumerantPtrName)
		if err != nil {
			return fmt.Errorf("enumerants[%d] name: %w", i, err)
		}
		e.Enumerants = append(e.Enumerants, Enumerant{
			Name:      name,
			CodeOrder: el.Uint16(enumerantOffCodeOrder),
		})
	}
	return nil
}

func decodeMethods(p wire.Ptr, iface *InterfaceNode) error {
	list, err := p.PtrSlot(ifacePtrMethods)
	if err != nil {
		return fmt.Errorf("methods: %w", err)
	}
	if list.IsNull() {
		return nil
	}
	iface.Methods = make([]Method, 0, list.Len())
	for i := uint32(0); i < list.Len(); i++ {
		el, err := list.ListStruct(i)
		if err != nil {
			return fmt.Errorf("methods[%d]: %w", i, err)
		}
		name, err := ptrText(el, methodPtrName)
		if err != nil {
			return fmt.Errorf("methods[%d] name: %w", i, err)
		}
		paramScopes, err := brandScopeCount(el, methodPtrParamBrand)
		if err != nil {
			return fmt.Errorf("methods[%d] param brand: %w", i, err)
		}
		resultScopes, err := brandScopeCount(el, methodPtrResultBrand)
		if err != nil {
			return fmt.Errorf("methods[%d] result brand: %w", i, err)
		}
		implicitList, err := el.PtrSlot(methodPtrImplicit)
		if err != nil {
			return fmt.Errorf("methods[%d] implicit params: %w", i, err)
		}
		iface.Methods = append(iface.Methods, Method{
			Name:           name,
			CodeOrder:      el.Uint16(methodOffCodeOrder),
			ParamType:      NodeID(el.Uint64(methodOffParamType)),
			ResultType:     NodeID(el.Uint64(methodOffResultType)),
			ParamScopes:    paramScopes,
			ResultScopes:   resultScopes,
			ImplicitParams: int(implicitList.Len()),
		})
	}
	return nil
}

// ptrType decodes a Type struct hanging off pointer slot i.
func ptrType(p wire.Ptr, slot uint32) (Type, error) {
	tp, err := p.PtrSlot(slot)
	if err != nil {
		return Type{}, err
	}
	return decodeType(tp)
}

func decodeType(p wire.Ptr) (Type, error) {
	if p.IsNull() {
		// An absent Type struct reads as all-zero, i.e. Void.
		return Type{Kind: TypeVoid}, nil
	}
	which := p.Uint16(typeOffWhich)
	if which > uint16(TypeAnyPointer) {
		return Type{}, fmt.Errorf("unknown type kind %d", which)
	}
	t := Type{Kind: TypeKind(which)}

	switch t.Kind {
	case TypeList:
		ep, err := p.PtrSlot(typePtrElem)
		if err != nil {
			return Type{}, fmt.Errorf("list element: %w", err)
		}
		elem, err := decodeType(ep)
		if err != nil {
			return Type{}, fmt.Errorf("list element: %w", err)
		}
		t.Elem = &elem
	case TypeEnum, TypeStruct, TypeInterface:
		t.TypeID = NodeID(p.Uint64(typeOffTypeID))
		scopes, err := brandScopeCount(p, typePtrBrand)
		if err != nil {
			return Type{}, fmt.Errorf("brand: %w", err)
		}
		t.BrandScopes = scopes
	}
	return t, nil
}

// brandScopeCount returns the number of brand scopes behind pointer slot
// i. The differ only needs to know whether generics are in play.
func brandScopeCount(p wire.Ptr, slot uint32) (int, error) {
	bp, err := p.PtrSlot(slot)
	if err != nil {
		return 0, err
	}
	if bp.IsNull() {
		return 0, nil
	}
	scopes, err := bp.PtrSlot(brandPtrScopes)
	if err != nil {
		return 0, err
	}
	return int(scopes.Len()), nil
}

// ptrValue decodes a Value struct hanging off pointer slot i.
func ptrValue(p wire.Ptr, slot uint32) (Value, error) {
	vp, err := p.PtrSlot(slot)
	if err != nil {
		return Value{}, err
	}
	return decodeValue(vp)
}

func decodeValue(p wire.Ptr) (Value, error) {
	if p.IsNull() {
		return Value{Kind: ValueVoid}, nil
	}
	which := p.Uint16(valueOffWhich)
	if which > uint16(ValueAnyPointer) {
		return Value{}, fmt.Errorf("unknown value kind %d", which)
	}
	v := Value{Kind: ValueKind(which)}

	switch v.Kind {
	case ValueVoid, ValueInterface:
	case ValueBool:
		v.Bool = p.Bit(16)
	case ValueInt8:
		v.Int = int64(int8(p.Uint8(2)))
	case ValueInt16:
		v.Int = int64(int16(p.Uint16(2)))
	case ValueInt32:
		v.Int = int64(int32(p.Uint32(4)))
	case ValueInt64:
		v.Int = int64(p.Uint64(8))
	case ValueUint8:
		v.Uint = uint64(p.Uint8(2))
	case ValueUint16:
		v.Uint = uint64(p.Uint16(2))
	case ValueUint32:
		v.Uint = uint64(p.Uint32(4))
	case ValueUint64:
		v.Uint = p.Uint64(8)
	case ValueFloat32:
		v.Float = float64(math.Float32frombits(p.Uint32(4)))
	case ValueFloat64:
		v.Float = math.Float64frombits(p.Uint64(8))
	case ValueEnum:
		v.Enum = p.Uint16(2)
	case ValueText, ValueData, ValueList, ValueStruct, ValueAnyPointer:
		ptr, err := p.PtrSlot(0)
		if err != nil {
			return Value{}, err
		}
		v.Ptr = ptr
	}
	return v, nil
}

func decodeRequestedFiles(root wire.Ptr, req *Request) error {
	list, err := root.PtrSlot(reqPtrFiles)
	if err != nil {
		return fmt.Errorf("requestedFiles: %w", err)
	}
	if list.IsNull() {
		return nil
	}
	req.Files = make([]RequestedFile, 0, list.Len())
	for i := uint32(0); i < list.Len(); i++ {
		el, err := list.ListStruct(i)
		if err != nil {
			return fmt.Errorf("requestedFiles[%d]: %w", i, err)
		}
		name, err := ptrText(el, reqFilePtrName)
		if err != nil {
			return fmt.Errorf("requestedFiles[%d] name: %w", i, err)
		}
		req.Files = append(req.Files, RequestedFile{
			ID:       NodeID(el.Uint64(reqFileOffID)),
			Filename: name,
		})
	}
	return nil
}

func decodeSourceInfo(root wire.Ptr, req *Request) error {
	list, err := root.PtrSlot(reqPtrSourceInfo)
	if err != nil {
		return fmt.Errorf("sourceInfo: %w", err)
	}
	if list.IsNull() {
		return nil
	}
	req.SourceInfo = make([]NodeSourceInfo, 0, list.Len())
	for i := uint32(0); i < list.Len(); i++ {
		el, err := list.ListStruct(i)
		if err != nil {
			return fmt.Errorf("sourceInfo[%d]: %w", i, err)
		}
		si := NodeSourceInfo{
			ID:    NodeID(el.Uint64(srcOffID)),
			Start: el.Uint32(srcOffStart),
			End:   el.Uint32(srcOffEnd),
		}
		members, err := el.PtrSlot(srcPtrMembers)
		if err != nil {
			return fmt.Errorf("sourceInfo[%d] members: %w", i, err)
		}
		if !members.IsNull() {
			si.Members = make([]MemberSourceInfo, 0, members.Len())
			for j := uint32(0); j < members.Len(); j++ {
				mp, err := members.ListStruct(j)
				if err != nil {
					return fmt.Errorf("sourceInfo[%d] member %d: %w", i, j, err)
				}
				si.Members = append(si.Members, MemberSourceInfo{
					Start: mp.Uint32(srcMemberOffStart),
					End:   mp.Uint32(srcMemberOffEnd),
				})
			}
		}
		req.SourceInfo = append(req.SourceInfo, si)
	}
	return nil
}

// applyInlineSpans copies per-node source ranges onto the nodes so code
// holding a *Node has a usable location without consulting the index.
func applyInlineSpans(req *Request) {
	byID := make(map[NodeID]int, len(req.Nodes))
	for i := range req.Nodes {
		byID[req.Nodes[i].ID] = i
	}
	fileOf := fileResolver(req)
	for _, si := range req.SourceInfo {
		i, ok := byID[si.ID]
		if !ok || si.End <= si.Start {
			continue
		}
		fid, ok := fileOf(si.ID)
		if !ok {
			continue
		}
		req.Nodes[i].Span = source.Span{File: fid, Start: si.Start, End: si.End}
	}
}

// fileResolver returns a containing-file lookup over the raw node slice.
func fileResolver(req *Request) func(NodeID) (source.FileID, bool) {
	byID := make(map[NodeID]*Node, len(req.Nodes))
	for i := range req.Nodes {
		byID[req.Nodes[i].ID] = &req.Nodes[i]
	}
	return func(id NodeID) (source.FileID, bool) {
		for {
			n, ok := byID[id]
			if !ok {
				return 0, false
			}
			if n.Kind == KindFile {
				return source.FileID(n.ID), true
			}
			if n.ScopeID == 0 {
				return 0, false
			}
			id = n.ScopeID
		}
	}
}

func ptrText(p wire.Ptr, slot uint32) (string, error) {
	tp, err := p.PtrSlot(slot)
	if err != nil {
		return "", err
	}
	return tp.Text()
}
