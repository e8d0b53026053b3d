package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// seg packs words into a little-endian segment.
func seg(words ...uint64) []byte {
	b := make([]byte, len(words)*WordSize)
	for i, w := range words {
		binary.LittleEndian.PutUint64(b[i*WordSize:], w)
	}
	return b
}

// structPtr builds a struct pointer word.
func structPtr(off int32, data, ptrs uint16) uint64 {
	return uint64(uint32(off)<<2) | uint64(data)<<32 | uint64(ptrs)<<48
}

// listPtr builds a list pointer word.
func listPtr(off int32, elem ElementSize, count uint32) uint64 {
	return uint64(uint32(off)<<2) | 1 | uint64(elem)<<32 | uint64(count)<<35
}

// farPtr builds a single-far pointer word.
func farPtr(seg uint32, word uint32) uint64 {
	return 2 | uint64(word)<<3 | uint64(seg)<<32
}

func TestParseStream(t *testing.T) {
	// Single segment of two words.
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0}) // count-1 = 0
	buf.Write([]byte{2, 0, 0, 0}) // 2 words
	buf.Write(seg(structPtr(0, 1, 0), 0xdeadbeef))

	m, err := ParseStream(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	if m.NumSegments() != 1 || m.SegmentWords(0) != 2 {
		t.Fatalf("got %d segments of %d words", m.NumSegments(), m.SegmentWords(0))
	}

	root, err := m.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root.Kind() != KindStruct || root.DataWords() != 1 {
		t.Fatalf("root = %s with %d data words", root.Kind(), root.DataWords())
	}
	if got := root.DataWord(0); got != 0xdeadbeef {
		t.Errorf("DataWord(0) = %#x, want 0xdeadbeef", got)
	}
}

func TestParseStream_TwoSegments(t *testing.T) {
	// Two segments: table is padded to a word boundary.
	var buf bytes.Buffer
	buf.Write([]byte{1, 0, 0, 0})
	buf.Write([]byte{1, 0, 0, 0}) // seg0: 1 word
	buf.Write([]byte{1, 0, 0, 0}) // seg1: 1 word
	buf.Write([]byte{0, 0, 0, 0}) // padding
	buf.Write(seg(farPtr(1, 0)))
	buf.Write(seg(structPtr(-1, 0, 0))) // struct of zero size right at the pad

	m, err := ParseStream(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseStream: %v", err)
	}
	root, err := m.Root()
	if err != nil {
		t.Fatalf("Root through far pointer: %v", err)
	}
	if root.Kind() != KindStruct {
		t.Fatalf("root kind = %s, want struct", root.Kind())
	}
}

func TestParseStream_Truncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "table only", data: []byte{0, 0, 0, 0, 4, 0, 0, 0}},
		{name: "short segment", data: append([]byte{0, 0, 0, 0, 2, 0, 0, 0}, seg(0)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStream(tt.data); !errors.Is(err, ErrTruncated) {
				t.Errorf("ParseStream = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestStruct_ZeroPadding(t *testing.T) {
	m, err := NewMessage(seg(structPtr(0, 1, 1), 42, 0))
	if err != nil {
		t.Fatal(err)
	}
	root, err := m.Root()
	if err != nil {
		t.Fatal(err)
	}

	if got := root.DataWord(5); got != 0 {
		t.Errorf("DataWord past end = %d, want 0", got)
	}
	slot, err := root.PtrSlot(7)
	if err != nil || !slot.IsNull() {
		t.Errorf("PtrSlot past end = (%v, %v), want null", slot.Kind(), err)
	}
}

func TestStruct_FieldAccessors(t *testing.T) {
	// Word 1: 0x1122334455667788 little-endian.
	m, err := NewMessage(seg(structPtr(0, 1, 0), 0x1122334455667788))
	if err != nil {
		t.Fatal(err)
	}
	root, _ := m.Root()

	if got := root.Uint64(0); got != 0x1122334455667788 {
		t.Errorf("Uint64(0) = %#x", got)
	}
	if got := root.Uint32(4); got != 0x11223344 {
		t.Errorf("Uint32(4) = %#x", got)
	}
	if got := root.Uint16(2); got != 0x5566 {
		t.Errorf("Uint16(2) = %#x", got)
	}
	if got := root.Uint8(7); got != 0x11 {
		t.Errorf("Uint8(7) = %#x", got)
	}
	if !root.Bit(3) { // 0x88 = 0b10001000
		t.Error("Bit(3) = false, want true")
	}
	if root.Bit(0) {
		t.Error("Bit(0) = true, want false")
	}
}

func TestText(t *testing.T) {
	// "hi" + NUL in a byte list.
	payload := uint64('h') | uint64('i')<<8
	m, err := NewMessage(seg(listPtr(0, SizeByte, 3), payload))
	if err != nil {
		t.Fatal(err)
	}
	root, _ := m.Root()
	s, err := root.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if s != "hi" {
		t.Errorf("Text = %q, want %q", s, "hi")
	}
}

func TestCompositeList(t *testing.T) {
	// Two elements, one data word each: [7, 9].
	m, err := NewMessage(seg(
		listPtr(0, SizeComposite, 2), // 2 content words
		structPtr(2, 1, 0),           // tag: count=2, 1 data word
		7,
		9,
	))
	if err != nil {
		t.Fatal(err)
	}
	root, _ := m.Root()
	if root.Len() != 2 {
		t.Fatalf("Len = %d, want 2", root.Len())
	}
	for i, want := range []uint64{7, 9} {
		el, err := root.ListStruct(uint32(i))
		if err != nil {
			t.Fatalf("ListStruct(%d): %v", i, err)
		}
		if got := el.DataWord(0); got != want {
			t.Errorf("element %d = %d, want %d", i, got, want)
		}
	}
}

func TestPackedListReadUint(t *testing.T) {
	// List(UInt16) [10, 20, 30].
	payload := uint64(10) | uint64(20)<<16 | uint64(30)<<32
	m, err := NewMessage(seg(listPtr(0, SizeTwoBytes, 3), payload))
	if err != nil {
		t.Fatal(err)
	}
	root, _ := m.Root()
	for i, want := range []uint64{10, 20, 30} {
		got, err := root.ReadUint(uint32(i))
		if err != nil {
			t.Fatalf("ReadUint(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("ReadUint(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestOutOfBoundsPointer(t *testing.T) {
	m, err := NewMessage(seg(structPtr(5, 1, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Root(); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Root = %v, want ErrOutOfBounds", err)
	}
}

func TestNullRoot(t *testing.T) {
	m, err := NewMessage(seg(0))
	if err != nil {
		t.Fatal(err)
	}
	root, err := m.Root()
	if err != nil || !root.IsNull() {
		t.Errorf("Root = (%s, %v), want null", root.Kind(), err)
	}
}
