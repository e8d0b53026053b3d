package compat

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"capnpdiff/internal/schema"
	"capnpdiff/internal/wire"
)

// seg packs words into a little-endian segment.
func seg(words ...uint64) []byte {
	b := make([]byte, len(words)*wire.WordSize)
	for i, w := range words {
		binary.LittleEndian.PutUint64(b[i*wire.WordSize:], w)
	}
	return b
}

func structPtrWord(off int32, data, ptrs uint16) uint64 {
	return uint64(uint32(off)<<2) | uint64(data)<<32 | uint64(ptrs)<<48
}

func listPtrWord(off int32, elem wire.ElementSize, count uint32) uint64 {
	return uint64(uint32(off)<<2) | 1 | uint64(elem)<<32 | uint64(count)<<35
}

// rootPtr builds a message from words and resolves its root pointer.
func rootPtr(t *testing.T, words ...uint64) wire.Ptr {
	t.Helper()
	m, err := wire.NewMessage(seg(words...))
	if err != nil {
		t.Fatal(err)
	}
	p, err := m.Root()
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func structVal(p wire.Ptr) schema.Value {
	return schema.Value{Kind: schema.ValueStruct, Ptr: p}
}

func listVal(p wire.Ptr) schema.Value {
	return schema.Value{Kind: schema.ValueList, Ptr: p}
}

func TestEqualValues_Scalars(t *testing.T) {
	tests := []struct {
		name string
		a, b schema.Value
		want bool
	}{
		{name: "void", a: schema.Value{Kind: schema.ValueVoid}, b: schema.Value{Kind: schema.ValueVoid}, want: true},
		{name: "bool equal", a: schema.Value{Kind: schema.ValueBool, Bool: true}, b: schema.Value{Kind: schema.ValueBool, Bool: true}, want: true},
		{name: "bool differs", a: schema.Value{Kind: schema.ValueBool, Bool: true}, b: schema.Value{Kind: schema.ValueBool}, want: false},
		{name: "int equal", a: schema.Value{Kind: schema.ValueInt32, Int: -7}, b: schema.Value{Kind: schema.ValueInt32, Int: -7}, want: true},
		{name: "uint differs", a: schema.Value{Kind: schema.ValueUint64, Uint: 1}, b: schema.Value{Kind: schema.ValueUint64, Uint: 2}, want: false},
		{name: "float equal", a: schema.Value{Kind: schema.ValueFloat64, Float: 1.5}, b: schema.Value{Kind: schema.ValueFloat64, Float: 1.5}, want: true},
		{name: "nan reflexive", a: schema.Value{Kind: schema.ValueFloat64, Float: math.NaN()}, b: schema.Value{Kind: schema.ValueFloat64, Float: math.NaN()}, want: true},
		{name: "enum equal", a: schema.Value{Kind: schema.ValueEnum, Enum: 3}, b: schema.Value{Kind: schema.ValueEnum, Enum: 3}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EqualValues(tt.a, tt.b)
			if err != nil {
				t.Fatalf("EqualValues: %v", err)
			}
			if got != tt.want {
				t.Errorf("EqualValues = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqualValues_EnumUint16(t *testing.T) {
	enum := schema.Value{Kind: schema.ValueEnum, Enum: 5}
	same := schema.Value{Kind: schema.ValueUint16, Uint: 5}
	other := schema.Value{Kind: schema.ValueUint16, Uint: 6}

	if eq, err := EqualValues(enum, same); err != nil || !eq {
		t.Errorf("enum vs equal u16 = (%v, %v), want true", eq, err)
	}
	if eq, err := EqualValues(same, enum); err != nil || !eq {
		t.Errorf("u16 vs equal enum = (%v, %v), want true", eq, err)
	}
	if eq, err := EqualValues(enum, other); err != nil || eq {
		t.Errorf("enum vs different u16 = (%v, %v), want false", eq, err)
	}
}

func TestEqualValues_CrossKindUnsupported(t *testing.T) {
	a := schema.Value{Kind: schema.ValueInt32, Int: 1}
	b := schema.Value{Kind: schema.ValueUint32, Uint: 1}
	if _, err := EqualValues(a, b); !errors.Is(err, ErrUnsupportedValueEquality) {
		t.Errorf("int32 vs uint32: err = %v, want ErrUnsupportedValueEquality", err)
	}
}

func TestEqualValues_Text(t *testing.T) {
	hi := rootPtr(t, listPtrWord(0, wire.SizeByte, 3), uint64('h')|uint64('i')<<8)
	hi2 := rootPtr(t, listPtrWord(0, wire.SizeByte, 3), uint64('h')|uint64('i')<<8)
	ho := rootPtr(t, listPtrWord(0, wire.SizeByte, 3), uint64('h')|uint64('o')<<8)
	empty := rootPtr(t, listPtrWord(0, wire.SizeByte, 1), 0)
	null := wire.Ptr{}

	text := func(p wire.Ptr) schema.Value { return schema.Value{Kind: schema.ValueText, Ptr: p} }

	tests := []struct {
		name string
		a, b schema.Value
		want bool
	}{
		{name: "equal text", a: text(hi), b: text(hi2), want: true},
		{name: "different text", a: text(hi), b: text(ho), want: false},
		{name: "null equals empty", a: text(null), b: text(empty), want: true},
		{name: "null vs non-empty", a: text(null), b: text(hi), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EqualValues(tt.a, tt.b)
			if err != nil {
				t.Fatalf("EqualValues: %v", err)
			}
			if got != tt.want {
				t.Errorf("EqualValues = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqualValues_NullEqualsZeroStruct(t *testing.T) {
	// A two-word all-zero struct with one null pointer slot.
	zero := rootPtr(t, structPtrWord(0, 2, 1), 0, 0, 0)
	null := wire.Ptr{}

	if eq, err := EqualValues(structVal(wire.Ptr{}), structVal(zero)); err != nil || !eq {
		t.Errorf("null vs zero struct = (%v, %v), want true", eq, err)
	}
	if eq, err := EqualValues(structVal(zero), structVal(null)); err != nil || !eq {
		t.Errorf("zero struct vs null = (%v, %v), want true", eq, err)
	}

	nonzero := rootPtr(t, structPtrWord(0, 1, 0), 42)
	if eq, err := EqualValues(structVal(null), structVal(nonzero)); err != nil || eq {
		t.Errorf("null vs non-zero struct = (%v, %v), want false", eq, err)
	}
}

func TestEqualValues_NullEqualsEmptyList(t *testing.T) {
	empty := rootPtr(t, listPtrWord(0, wire.SizeFourBytes, 0))
	if eq, err := EqualValues(listVal(wire.Ptr{}), listVal(empty)); err != nil || !eq {
		t.Errorf("null vs empty list = (%v, %v), want true", eq, err)
	}
}

func TestEqualValues_StructWidths(t *testing.T) {
	// Same logical value encoded with different struct widths: the short
	// encoding has one data word, the long one has two with a zero tail.
	short := rootPtr(t, structPtrWord(0, 1, 0), 99)
	long := rootPtr(t, structPtrWord(0, 2, 0), 99, 0)
	longDirty := rootPtr(t, structPtrWord(0, 2, 0), 99, 1)

	if eq, err := EqualValues(structVal(short), structVal(long)); err != nil || !eq {
		t.Errorf("short vs long-zero = (%v, %v), want true", eq, err)
	}
	if eq, err := EqualValues(structVal(short), structVal(longDirty)); err != nil || eq {
		t.Errorf("short vs long-dirty = (%v, %v), want false", eq, err)
	}
}

func TestEqualValues_StructPointerRecursion(t *testing.T) {
	// Struct with one pointer slot holding text "a".
	withText := func(c byte) wire.Ptr {
		return rootPtr(t,
			structPtrWord(0, 0, 1),          // root: 0 data, 1 ptr
			listPtrWord(0, wire.SizeByte, 2), // slot 0 -> text
			uint64(c),
		)
	}
	a1 := withText('a')
	a2 := withText('a')
	b := withText('b')

	if eq, err := EqualValues(structVal(a1), structVal(a2)); err != nil || !eq {
		t.Errorf("equal nested text = (%v, %v), want true", eq, err)
	}
	if eq, err := EqualValues(structVal(a1), structVal(b)); err != nil || eq {
		t.Errorf("different nested text = (%v, %v), want false", eq, err)
	}

	// Extra pointer slot on the longer side must be a default pointer.
	extraNull := rootPtr(t,
		structPtrWord(0, 0, 2),
		listPtrWord(1, wire.SizeByte, 2),
		0,
		uint64('a'),
	)
	if eq, err := EqualValues(structVal(a1), structVal(extraNull)); err != nil || !eq {
		t.Errorf("extra null slot = (%v, %v), want true", eq, err)
	}
}

func TestEqualValues_CompositeLists(t *testing.T) {
	mk := func(v uint64) wire.Ptr {
		return rootPtr(t,
			listPtrWord(0, wire.SizeComposite, 2),
			structPtrWord(2, 1, 0), // tag: 2 elements, 1 data word each
			7,
			v,
		)
	}
	if eq, err := EqualValues(listVal(mk(9)), listVal(mk(9))); err != nil || !eq {
		t.Errorf("equal composite lists = (%v, %v), want true", eq, err)
	}
	if eq, err := EqualValues(listVal(mk(9)), listVal(mk(8))); err != nil || eq {
		t.Errorf("different composite lists = (%v, %v), want false", eq, err)
	}
}

func TestEqualValues_ListTypeMismatch(t *testing.T) {
	bytesList := rootPtr(t, listPtrWord(0, wire.SizeByte, 2), uint64('h')|uint64('i')<<8)
	wordsList := rootPtr(t, listPtrWord(0, wire.SizeEightBytes, 2), 1, 2)

	if _, err := EqualValues(listVal(bytesList), listVal(wordsList)); !errors.Is(err, ErrUnsupportedValueEquality) {
		t.Errorf("byte list vs word list: err = %v, want ErrUnsupportedValueEquality", err)
	}
}

func TestEqualValues_InterfacePointer(t *testing.T) {
	// Capability pointer: kind bits 11.
	capPtr := rootPtr(t, 3|uint64(1)<<32)
	if _, err := EqualValues(structVal(capPtr), structVal(wire.Ptr{})); !errors.Is(err, ErrInterfacePointer) {
		t.Errorf("capability in default: err = %v, want ErrInterfacePointer", err)
	}
}
