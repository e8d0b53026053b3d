package compat

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"capnpdiff/internal/schema"
	"capnpdiff/internal/wire"
)

// Value-equality errors. ErrUnsupportedValueEquality is recoverable: the
// differ turns it into an `unsupported` change and moves on.
// ErrInterfacePointer means the input message is broken and aborts the diff.
var (
	ErrUnsupportedValueEquality = errors.New("unsupported value comparison")
	ErrInterfacePointer         = errors.New("interface pointer in value")
)

// EqualValues reports whether two encoded values denote the same logical
// default. The comparison is structural, not byte-exact: a null pointer
// equals an all-zero struct or an empty list, and short data sections
// equal longer all-zero ones. Words are read straight out of the message
// segments.
func EqualValues(a, b schema.Value) (bool, error) {
	if a.Kind != b.Kind {
		return equalCrossKind(a, b)
	}

	switch a.Kind {
	case schema.ValueVoid:
		return true, nil
	case schema.ValueBool:
		return a.Bool == b.Bool, nil
	case schema.ValueInt8, schema.ValueInt16, schema.ValueInt32, schema.ValueInt64:
		return a.Int == b.Int, nil
	case schema.ValueUint8, schema.ValueUint16, schema.ValueUint32, schema.ValueUint64:
		return a.Uint == b.Uint, nil
	case schema.ValueFloat32, schema.ValueFloat64:
		// Bit comparison keeps equality reflexive for NaN defaults.
		return math.Float64bits(a.Float) == math.Float64bits(b.Float), nil
	case schema.ValueEnum:
		return a.Enum == b.Enum, nil
	case schema.ValueText:
		return equalText(a.Ptr, b.Ptr)
	case schema.ValueData:
		return equalData(a.Ptr, b.Ptr)
	case schema.ValueList:
		return equalPtr(a.Ptr, b.Ptr)
	case schema.ValueStruct, schema.ValueAnyPointer:
		return equalPtr(a.Ptr, b.Ptr)
	case schema.ValueInterface:
		// Interface values carry no payload; a non-null pointer cannot
		// appear here by construction.
		return true, nil
	}
	return false, fmt.Errorf("unknown value kind %d", a.Kind)
}

// equalCrossKind handles the one legal cross-kind comparison: an enum
// value against its UInt16 encoding.
func equalCrossKind(a, b schema.Value) (bool, error) {
	if a.Kind == schema.ValueEnum && b.Kind == schema.ValueUint16 {
		return uint64(a.Enum) == b.Uint, nil
	}
	if a.Kind == schema.ValueUint16 && b.Kind == schema.ValueEnum {
		return a.Uint == uint64(b.Enum), nil
	}
	return false, fmt.Errorf("%w: %s vs %s", ErrUnsupportedValueEquality, a.Kind, b.Kind)
}

func equalText(a, b wire.Ptr) (bool, error) {
	ab, err := a.TextBytes()
	if err != nil {
		return false, err
	}
	bb, err := b.TextBytes()
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func equalData(a, b wire.Ptr) (bool, error) {
	if a.IsNull() || b.IsNull() {
		return dataLen(a) == 0 && dataLen(b) == 0, nil
	}
	ab, err := a.RawBytes()
	if err != nil {
		return false, err
	}
	bb, err := b.RawBytes()
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func dataLen(p wire.Ptr) uint32 {
	if p.IsNull() {
		return 0
	}
	return p.Len()
}

// equalPtr dispatches on the resolved pointer kinds.
func equalPtr(a, b wire.Ptr) (bool, error) {
	if a.Kind() == wire.KindCapability || b.Kind() == wire.KindCapability {
		return false, fmt.Errorf("%w: capability index present in default", ErrInterfacePointer)
	}

	switch {
	case a.IsNull() && b.IsNull():
		return true, nil
	case a.IsNull():
		return isDefaultPtr(b)
	case b.IsNull():
		return isDefaultPtr(a)
	case a.Kind() == wire.KindStruct && b.Kind() == wire.KindStruct:
		return equalStruct(a, b)
	case a.Kind() == wire.KindList && b.Kind() == wire.KindList:
		return equalList(a, b)
	default:
		return false, fmt.Errorf("%w: %s vs %s pointer", ErrUnsupportedValueEquality, a.Kind(), b.Kind())
	}
}

// equalStruct compares two struct objects of possibly different sizes:
// the overlapping data words must match, trailing words on the longer
// side must be zero, common pointer slots compare recursively, and extra
// slots must hold default pointers.
func equalStruct(a, b wire.Ptr) (bool, error) {
	maxData := uint32(a.DataWords())
	if d := uint32(b.DataWords()); d > maxData {
		maxData = d
	}
	for i := uint32(0); i < maxData; i++ {
		// Reads past either end return zero, which folds the overlap
		// and trailing-zero rules into one loop.
		if a.DataWord(i) != b.DataWord(i) {
			return false, nil
		}
	}

	maxPtrs := uint32(a.PtrCount())
	if p := uint32(b.PtrCount()); p > maxPtrs {
		maxPtrs = p
	}
	for i := uint32(0); i < maxPtrs; i++ {
		ap, err := a.PtrSlot(i)
		if err != nil {
			return false, err
		}
		bp, err := b.PtrSlot(i)
		if err != nil {
			return false, err
		}
		eq, err := equalPtr(ap, bp)
		if err != nil || !eq {
			return eq, err
		}
	}
	return true, nil
}

func equalList(a, b wire.Ptr) (bool, error) {
	if a.Len() != b.Len() {
		return false, nil
	}
	if a.Elem() != b.Elem() {
		return false, fmt.Errorf("%w: %s list vs %s list", ErrUnsupportedValueEquality, a.Elem(), b.Elem())
	}

	switch a.Elem() {
	case wire.SizeVoid:
		return true, nil

	case wire.SizeBit, wire.SizeByte, wire.SizeTwoBytes, wire.SizeFourBytes, wire.SizeEightBytes:
		ab, err := a.RawBytes()
		if err != nil {
			return false, err
		}
		bb, err := b.RawBytes()
		if err != nil {
			return false, err
		}
		return bytes.Equal(ab, bb), nil

	case wire.SizePointer:
		for i := uint32(0); i < a.Len(); i++ {
			ap, err := a.ListPtr(i)
			if err != nil {
				return false, err
			}
			bp, err := b.ListPtr(i)
			if err != nil {
				return false, err
			}
			eq, err := equalPtr(ap, bp)
			if err != nil || !eq {
				return eq, err
			}
		}
		return true, nil

	case wire.SizeComposite:
		for i := uint32(0); i < a.Len(); i++ {
			ae, err := a.ListStruct(i)
			if err != nil {
				return false, err
			}
			be, err := b.ListStruct(i)
			if err != nil {
				return false, err
			}
			eq, err := equalStruct(ae, be)
			if err != nil || !eq {
				return eq, err
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown element size %d", a.Elem())
}

// isDefaultPtr reports whether a pointer is indistinguishable from an
// absent one: null, an all-zero struct, or an empty list.
func isDefaultPtr(p wire.Ptr) (bool, error) {
	switch p.Kind() {
	case wire.KindNull:
		return true, nil
	case wire.KindList:
		return p.Len() == 0, nil
	case wire.KindStruct:
		for i := uint32(0); i < uint32(p.DataWords()); i++ {
			if p.DataWord(i) != 0 {
				return false, nil
			}
		}
		for i := uint32(0); i < uint32(p.PtrCount()); i++ {
			sp, err := p.PtrSlot(i)
			if err != nil {
				return false, err
			}
			ok, err := isDefaultPtr(sp)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: capability index present in default", ErrInterfacePointer)
	}
}
