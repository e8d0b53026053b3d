package wire

import (
	"fmt"
)

// PtrKind discriminates resolved pointer values. Far pointers never
// surface: resolution follows them to their landing pads.
type PtrKind uint8

const (
	KindNull PtrKind = iota
	KindStruct
	KindList
	KindCapability
)

func (k PtrKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	case KindCapability:
		return "capability"
	}
	return "unknown"
}

// ElementSize is the wire element-size code of a list pointer.
type ElementSize uint8

const (
	SizeVoid ElementSize = iota
	SizeBit
	SizeByte
	SizeTwoBytes
	SizeFourBytes
	SizeEightBytes
	SizePointer
	SizeComposite
)

func (e ElementSize) String() string {
	switch e {
	case SizeVoid:
		return "void"
	case SizeBit:
		return "bit"
	case SizeByte:
		return "byte"
	case SizeTwoBytes:
		return "twoBytes"
	case SizeFourBytes:
		return "fourBytes"
	case SizeEightBytes:
		return "eightBytes"
	case SizePointer:
		return "pointer"
	case SizeComposite:
		return "composite"
	}
	return "unknown"
}

// dataBytes returns the packed payload width in bytes for non-bit,
// non-pointer element sizes.
func (e ElementSize) dataBytes() uint64 {
	switch e {
	case SizeByte:
		return 1
	case SizeTwoBytes:
		return 2
	case SizeFourBytes:
		return 4
	case SizeEightBytes:
		return 8
	}
	return 0
}

// Ptr is a resolved pointer: a typed view into a message segment. The
// zero value is the null pointer.
type Ptr struct {
	msg  *Message
	kind PtrKind
	seg  uint32

	// struct object, also reused for composite list elements
	dataOff uint32 // word index of the data section
	ptrOff  uint32 // word index of the pointer section
	dataLen uint16 // data words
	ptrLen  uint16 // pointer words

	// list object
	elem    ElementSize
	count   uint32 // element count
	content uint32 // word index of the first content word (past the composite tag)

	capIndex uint32
}

const (
	ptrKindMask   = 3
	rawKindStruct = 0
	rawKindList   = 1
	rawKindFar    = 2
	rawKindCap    = 3
	maxFarHops    = 2
)

// signedOffset extracts the 30-bit signed word offset of a struct or list
// pointer (relative to the word after the pointer).
func signedOffset(w uint64) int32 {
	return int32(uint32(w)) >> 2
}

// resolve decodes the pointer word at (seg, word), following far pointers.
func (m *Message) resolve(seg, word uint32, hops int) (Ptr, error) {
	w, err := m.word(seg, word)
	if err != nil {
		return Ptr{}, err
	}
	if w == 0 {
		return Ptr{}, nil
	}

	switch w & ptrKindMask {
	case rawKindStruct:
		return m.structAt(seg, int64(word)+1+int64(signedOffset(w)), uint16(w>>32), uint16(w>>48))
	case rawKindList:
		return m.listAt(seg, int64(word)+1+int64(signedOffset(w)), ElementSize(w>>32&7), uint32(w>>35))
	case rawKindFar:
		if hops >= maxFarHops {
			return Ptr{}, fmt.Errorf("%w: far pointer chain at segment %d word %d", ErrFarPointer, seg, word)
		}
		return m.resolveFar(w, hops)
	default:
		return Ptr{msg: m, kind: KindCapability, capIndex: uint32(w >> 32)}, nil
	}
}

// structAt builds a struct view with bounds checks.
func (m *Message) structAt(seg uint32, target int64, dataLen, ptrLen uint16) (Ptr, error) {
	end := target + int64(dataLen) + int64(ptrLen)
	if target < 0 || end > int64(m.SegmentWords(seg)) {
		return Ptr{}, fmt.Errorf("%w: struct at segment %d words [%d,%d)", ErrOutOfBounds, seg, target, end)
	}
	return Ptr{
		msg:     m,
		kind:    KindStruct,
		seg:     seg,
		dataOff: uint32(target),
		dataLen: dataLen,
		ptrOff:  uint32(target) + uint32(dataLen),
		ptrLen:  ptrLen,
	}, nil
}

// listAt builds a list view with bounds checks. For composite lists count
// is the content word count from the pointer; the element count comes from
// the tag word.
func (m *Message) listAt(seg uint32, target int64, elem ElementSize, count uint32) (Ptr, error) {
	var words int64
	switch elem {
	case SizeVoid:
		words = 0
	case SizeBit:
		words = (int64(count) + 511) / 512
	case SizePointer:
		words = int64(count)
	case SizeComposite:
		words = int64(count) + 1 // tag word precedes the content
	default:
		words = (int64(count)*int64(elem.dataBytes()) + WordSize - 1) / WordSize
	}
	if target < 0 || target+words > int64(m.SegmentWords(seg)) {
		return Ptr{}, fmt.Errorf("%w: list at segment %d words [%d,%d)", ErrOutOfBounds, seg, target, target+words)
	}

	p := Ptr{
		msg:     m,
		kind:    KindList,
		seg:     seg,
		elem:    elem,
		count:   count,
		content: uint32(target),
	}
	if elem == SizeComposite {
		tag, err := m.word(seg, uint32(target))
		if err != nil {
			return Ptr{}, err
		}
		if tag&ptrKindMask != rawKindStruct {
			return Ptr{}, fmt.Errorf("%w: composite list tag is not a struct pointer", ErrBadPointer)
		}
		p.count = uint32(signedOffset(tag)) // element count lives in the offset field
		p.dataLen = uint16(tag >> 32)
		p.ptrLen = uint16(tag >> 48)
		p.content = uint32(target) + 1
		per := int64(p.dataLen) + int64(p.ptrLen)
		if per*int64(p.count) > int64(count) {
			return Ptr{}, fmt.Errorf("%w: composite list claims %d elements of %d words in %d words",
				ErrBadPointer, p.count, per, count)
		}
	}
	return p, nil
}

func (m *Message) resolveFar(w uint64, hops int) (Ptr, error) {
	doubleFar := w&4 != 0
	padWord := uint32(w>>3) & (1<<29 - 1)
	padSeg := uint32(w >> 32)

	if !doubleFar {
		return m.resolve(padSeg, padWord, hops+1)
	}

	// Double-far: the pad holds a single far pointer to the object start,
	// followed by a tag word shaped like an object pointer whose offset
	// part is ignored.
	far, err := m.word(padSeg, padWord)
	if err != nil {
		return Ptr{}, err
	}
	if far&ptrKindMask != rawKindFar || far&4 != 0 {
		return Ptr{}, fmt.Errorf("%w: double-far pad is not a single far pointer", ErrFarPointer)
	}
	objSeg := uint32(far >> 32)
	objWord := int64(uint32(far>>3) & (1<<29 - 1))

	tag, err := m.word(padSeg, padWord+1)
	if err != nil {
		return Ptr{}, err
	}
	switch tag & ptrKindMask {
	case rawKindStruct:
		return m.structAt(objSeg, objWord, uint16(tag>>32), uint16(tag>>48))
	case rawKindList:
		return m.listAt(objSeg, objWord, ElementSize(tag>>32&7), uint32(tag>>35))
	default:
		return Ptr{}, fmt.Errorf("%w: double-far tag kind %d", ErrFarPointer, tag&ptrKindMask)
	}
}
