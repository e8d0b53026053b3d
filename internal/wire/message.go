package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// Sentinel errors for malformed or unsupported messages. Far pointers are
// resolved internally; ErrFarPointer surfaces only for pads that cannot be
// followed, which indicates a corrupt message.
var (
	ErrTruncated   = errors.New("truncated message")
	ErrBadPointer  = errors.New("malformed pointer")
	ErrFarPointer  = errors.New("unresolvable far pointer")
	ErrOutOfBounds = errors.New("pointer target out of bounds")
)

// WordSize is the Cap'n Proto word size in bytes.
const WordSize = 8

// Message is a read-only view over the segments of an encoded Cap'n Proto
// message. All accessors read words in place; nothing is decoded into
// intermediate heap structures.
type Message struct {
	segs [][]byte
}

// ParseStream decodes the standard stream framing: a little-endian u32
// segment count minus one, u32 word sizes per segment, padding to a word
// boundary, then the segment payloads.
func ParseStream(data []byte) (*Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: missing segment table", ErrTruncated)
	}
	segCount := binary.LittleEndian.Uint32(data) + 1
	if segCount == 0 || segCount > 1<<16 {
		return nil, fmt.Errorf("%w: segment count %d", ErrBadPointer, segCount)
	}

	tableLen := 4 + 4*int(segCount)
	// The table is padded so segment data starts on a word boundary.
	if tableLen%WordSize != 0 {
		tableLen += WordSize - tableLen%WordSize
	}
	if len(data) < tableLen {
		return nil, fmt.Errorf("%w: segment table needs %d bytes, have %d", ErrTruncated, tableLen, len(data))
	}

	segs := make([][]byte, segCount)
	off := tableLen
	for i := range segs {
		words := binary.LittleEndian.Uint32(data[4+4*i:])
		size := int(words) * WordSize
		if off+size > len(data) {
			return nil, fmt.Errorf("%w: segment %d needs %d bytes past offset %d", ErrTruncated, i, size, off)
		}
		segs[i] = data[off : off+size]
		off += size
	}
	return &Message{segs: segs}, nil
}

// NewMessage wraps raw segments. Each segment length must be a whole
// number of words. Used by tests and by decoded caches.
func NewMessage(segs ...[]byte) (*Message, error) {
	for i, s := range segs {
		if len(s)%WordSize != 0 {
			return nil, fmt.Errorf("%w: segment %d is %d bytes", ErrBadPointer, i, len(s))
		}
	}
	return &Message{segs: segs}, nil
}

// NumSegments returns the segment count.
func (m *Message) NumSegments() int { return len(m.segs) }

// SegmentWords returns the length of a segment in words.
func (m *Message) SegmentWords(seg uint32) uint32 {
	if int(seg) >= len(m.segs) {
		return 0
	}
	n, err := safecast.Conv[uint32](len(m.segs[seg]) / WordSize)
	if err != nil {
		panic(fmt.Errorf("segment word count overflow: %w", err))
	}
	return n
}

// word reads the word at the given index of a segment.
func (m *Message) word(seg, idx uint32) (uint64, error) {
	if int(seg) >= len(m.segs) {
		return 0, fmt.Errorf("%w: segment %d of %d", ErrOutOfBounds, seg, len(m.segs))
	}
	s := m.segs[seg]
	byteOff := uint64(idx) * WordSize
	if byteOff+WordSize > uint64(len(s)) {
		return 0, fmt.Errorf("%w: word %d in segment %d (%d words)", ErrOutOfBounds, idx, seg, len(s)/WordSize)
	}
	return binary.LittleEndian.Uint64(s[byteOff:]), nil
}

// bytesAt returns n bytes starting at the given word of a segment, as a
// view into the segment.
func (m *Message) bytesAt(seg, word uint32, n uint64) ([]byte, error) {
	if int(seg) >= len(m.segs) {
		return nil, fmt.Errorf("%w: segment %d of %d", ErrOutOfBounds, seg, len(m.segs))
	}
	s := m.segs[seg]
	start := uint64(word) * WordSize
	if start+n > uint64(len(s)) {
		return nil, fmt.Errorf("%w: %d bytes at word %d of segment %d", ErrOutOfBounds, n, word, seg)
	}
	return s[start : start+n], nil
}

// Root resolves the root pointer (word 0 of segment 0).
func (m *Message) Root() (Ptr, error) {
	if len(m.segs) == 0 || len(m.segs[0]) == 0 {
		return Ptr{}, nil
	}
	return m.resolve(0, 0, 0)
}
