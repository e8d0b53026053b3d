package wire

import (
	"encoding/binary"
	"fmt"
)

// Kind returns the resolved pointer kind.
func (p Ptr) Kind() PtrKind { return p.kind }

// IsNull reports whether p is the null pointer.
func (p Ptr) IsNull() bool { return p.kind == KindNull }

// --- struct accessors ---

// DataWords returns the size of the data section in words.
func (p Ptr) DataWords() uint16 { return p.dataLen }

// PtrCount returns the size of the pointer section in words.
func (p Ptr) PtrCount() uint16 { return p.ptrLen }

// DataWord returns data word i, or 0 past the end of the data section.
// Reading past the end models the implicit zero padding of the wire
// format, which is what makes short and long encodings of the same
// struct comparable.
func (p Ptr) DataWord(i uint32) uint64 {
	if p.kind != KindStruct || i >= uint32(p.dataLen) {
		return 0
	}
	w, err := p.msg.word(p.seg, p.dataOff+i)
	if err != nil {
		// The bounds were validated when the pointer resolved.
		panic(fmt.Errorf("struct data section shrank: %w", err))
	}
	return w
}

// Uint64 reads a 64-bit field at the given byte offset into the data section.
func (p Ptr) Uint64(byteOff uint32) uint64 {
	w := p.DataWord(byteOff / WordSize)
	if byteOff%WordSize != 0 {
		panic(fmt.Errorf("unaligned 64-bit read at byte %d", byteOff))
	}
	return w
}

// Uint32 reads a 32-bit field at the given byte offset.
func (p Ptr) Uint32(byteOff uint32) uint32 {
	w := p.DataWord(byteOff / WordSize)
	shift := (byteOff % WordSize) * 8
	return uint32(w >> shift)
}

// Uint16 reads a 16-bit field at the given byte offset.
func (p Ptr) Uint16(byteOff uint32) uint16 {
	w := p.DataWord(byteOff / WordSize)
	shift := (byteOff % WordSize) * 8
	return uint16(w >> shift)
}

// Uint8 reads an 8-bit field at the given byte offset.
func (p Ptr) Uint8(byteOff uint32) uint8 {
	w := p.DataWord(byteOff / WordSize)
	shift := (byteOff % WordSize) * 8
	return uint8(w >> shift)
}

// Bit reads the bit at the given absolute bit offset into the data section.
func (p Ptr) Bit(bitOff uint32) bool {
	w := p.DataWord(bitOff / 64)
	return w>>(bitOff%64)&1 != 0
}

// PtrSlot resolves pointer slot i of a struct. Slots past the pointer
// section read as null, mirroring DataWord's zero padding.
func (p Ptr) PtrSlot(i uint32) (Ptr, error) {
	if p.kind != KindStruct || i >= uint32(p.ptrLen) {
		return Ptr{}, nil
	}
	return p.msg.resolve(p.seg, p.ptrOff+i, 0)
}

// --- list accessors ---

// Len returns the element count of a list, or 0 for non-lists.
func (p Ptr) Len() uint32 {
	if p.kind != KindList {
		return 0
	}
	return p.count
}

// Elem returns the element-size code of a list.
func (p Ptr) Elem() ElementSize { return p.elem }

// RawBytes returns the packed payload of a bit- or byte-packed list as a
// view into the segment. Bit lists return ceil(count/8) bytes.
func (p Ptr) RawBytes() ([]byte, error) {
	if p.kind != KindList {
		return nil, fmt.Errorf("%w: RawBytes on %s pointer", ErrBadPointer, p.kind)
	}
	var n uint64
	switch p.elem {
	case SizeBit:
		n = (uint64(p.count) + 7) / 8
	case SizeByte, SizeTwoBytes, SizeFourBytes, SizeEightBytes:
		n = uint64(p.count) * p.elem.dataBytes()
	default:
		return nil, fmt.Errorf("%w: RawBytes on %s list", ErrBadPointer, p.elem)
	}
	return p.msg.bytesAt(p.seg, p.content, n)
}

// ListPtr resolves element i of a pointer list.
func (p Ptr) ListPtr(i uint32) (Ptr, error) {
	if p.kind != KindList || p.elem != SizePointer {
		return Ptr{}, fmt.Errorf("%w: ListPtr on %s/%s", ErrBadPointer, p.kind, p.elem)
	}
	if i >= p.count {
		return Ptr{}, fmt.Errorf("%w: element %d of %d", ErrOutOfBounds, i, p.count)
	}
	return p.msg.resolve(p.seg, p.content+i, 0)
}

// ListStruct returns element i of a composite list as a struct view.
func (p Ptr) ListStruct(i uint32) (Ptr, error) {
	if p.kind != KindList || p.elem != SizeComposite {
		return Ptr{}, fmt.Errorf("%w: ListStruct on %s/%s", ErrBadPointer, p.kind, p.elem)
	}
	if i >= p.count {
		return Ptr{}, fmt.Errorf("%w: element %d of %d", ErrOutOfBounds, i, p.count)
	}
	per := uint32(p.dataLen) + uint32(p.ptrLen)
	start := p.content + i*per
	return Ptr{
		msg:     p.msg,
		kind:    KindStruct,
		seg:     p.seg,
		dataOff: start,
		dataLen: p.dataLen,
		ptrOff:  start + uint32(p.dataLen),
		ptrLen:  p.ptrLen,
	}, nil
}

// TextBytes returns the bytes of a text list without the NUL terminator.
func (p Ptr) TextBytes() ([]byte, error) {
	if p.kind == KindNull {
		return nil, nil
	}
	if p.kind != KindList || p.elem != SizeByte {
		return nil, fmt.Errorf("%w: text must be a byte list, got %s/%s", ErrBadPointer, p.kind, p.elem)
	}
	b, err := p.RawBytes()
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || b[len(b)-1] != 0 {
		return nil, fmt.Errorf("%w: text without NUL terminator", ErrBadPointer)
	}
	return b[:len(b)-1], nil
}

// Text decodes a text list into a string.
func (p Ptr) Text() (string, error) {
	b, err := p.TextBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CapIndex returns the capability table index of a capability pointer.
func (p Ptr) CapIndex() uint32 { return p.capIndex }

// ReadUint reads element i of a packed list as an unsigned scalar. The
// byte width is the list's element size; lists without a 1-, 2-, 4- or
// 8-byte element size fail.
func (p Ptr) ReadUint(i uint32) (uint64, error) {
	if p.kind != KindList {
		return 0, fmt.Errorf("%w: ReadUint on %s pointer", ErrBadPointer, p.kind)
	}
	if i >= p.count {
		return 0, fmt.Errorf("%w: element %d of %d", ErrOutOfBounds, i, p.count)
	}
	width := p.elem.dataBytes()
	if width == 0 {
		return 0, fmt.Errorf("%w: ReadUint on %s list", ErrBadPointer, p.elem)
	}
	b, err := p.msg.bytesAt(p.seg, p.content, uint64(p.count)*width)
	if err != nil {
		return 0, err
	}
	off := uint64(i) * width
	switch width {
	case 1:
		return uint64(b[off]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b[off:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b[off:])), nil
	default:
		return binary.LittleEndian.Uint64(b[off:]), nil
	}
}
