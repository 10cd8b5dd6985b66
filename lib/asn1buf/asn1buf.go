// Package asn1buf provides the byte buffer used by the DER encoder.
//
// # Overview
//
// A DER header (tag and length) precedes its content on the wire, but the
// length is only known once the content has been encoded. The encoder
// therefore builds every encoding back to front: content is inserted first,
// then the header that wraps it is inserted in front of it. The Buffer type
// supports exactly that access pattern.
//
// # Key Features
//
//   - Insertion at the head of the buffered data (InsertOctet, InsertOctetString)
//   - Dynamic buffer growth with exponential allocation strategy; existing
//     content is moved to the tail of the new backing array
//   - Backing arrays are recycled through size-classed sync.Pool instances
//   - Bytes returns an owned, forward-ordered copy, so a released buffer never
//     aliases encoder output
//   - A reader side (CreateReader) for re-parsing already-encoded DER
//
// # Thread Safety
//
// Buffer is NOT thread-safe. Each encode operation owns its Buffer exclusively.
package asn1buf

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

const (
	// ENABLE_TRACE controls whether trace output is printed
	ENABLE_TRACE = false

	// MIN_POOLED_SIZE is the smallest pooled backing array
	MIN_POOLED_SIZE = 64

	// MAX_POOLED_SIZE is the largest backing array returned to a pool.
	// Larger arrays are left to the garbage collector.
	MAX_POOLED_SIZE = 64 * 1024

	// POOL_CLASSES is the number of size classes: 64, 128, ... 64K
	POOL_CLASSES = 11
)

// InitialBufferSize is the initial capacity for the buffer in CreateWriter.
var InitialBufferSize = MIN_POOLED_SIZE

var pools [POOL_CLASSES]sync.Pool

func init() {
	for i := range pools {
		size := MIN_POOLED_SIZE << i
		pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
}

// poolIndex returns the size class able to hold n bytes, or -1.
func poolIndex(n int) int {
	if n > MAX_POOLED_SIZE {
		return -1
	}
	if n <= MIN_POOLED_SIZE {
		return 0
	}
	return bits.Len32(uint32(n-1)) - 6
}

func allocate(n int) []byte {
	idx := poolIndex(n)
	if idx < 0 {
		return make([]byte, n)
	}
	return *(pools[idx].Get().(*[]byte))
}

func recycle(b []byte) {
	if cap(b) < MIN_POOLED_SIZE || cap(b) > MAX_POOLED_SIZE || bits.OnesCount(uint(cap(b))) != 1 {
		return
	}
	b = b[:cap(b)]
	pools[poolIndex(cap(b))].Put(&b)
}

// Buffer holds an encoding under construction, or wraps an existing encoding
// for reading.
// Fields:
//
//	Buff: backing array; the writer's content occupies Buff[start:]
//	start: index of the first content byte (writer) or next unread byte (reader)
//	reader: true when the buffer wraps existing data
type Buffer struct {
	Buff   []byte
	start  int
	reader bool
}

// Trace prints debug information about the buffer state.
// Only prints if ENABLE_TRACE is true (compile-time constant).
func (b *Buffer) Trace(event, function, arguments string) {
	if !ENABLE_TRACE {
		return
	}
	state := fmt.Sprintf("[%s %s] cap=%d start=%d len=%d",
		event, function, len(b.Buff), b.start, b.Len())
	if arguments != "" {
		state = state + " --> " + arguments
	}
	println(state)
}

// CreateWriter creates an empty Buffer for encoding.
func CreateWriter() *Buffer {
	storage := allocate(InitialBufferSize)
	return &Buffer{
		Buff:  storage,
		start: len(storage),
	}
}

// CreateReader wraps data for reading. The data is not copied and must not
// be modified while the reader is in use.
func CreateReader(data []byte) *Buffer {
	return &Buffer{
		Buff:   data,
		reader: true,
	}
}

// Len returns the number of bytes inserted so far (writer) or not yet read
// (reader).
func (b *Buffer) Len() int {
	return len(b.Buff) - b.start
}

// Remains returns the number of unread bytes of a reader.
func (b *Buffer) Remains() int {
	return b.Len()
}

// String implements the fmt.Stringer interface for Buffer.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{cap: %d, start: %d, len: %d, reader: %v}",
		len(b.Buff), b.start, b.Len(), b.reader)
}

// grow ensures room for at least n more bytes in front of the content.
// Capacity doubles (or grows to the needed size if larger) and the content
// is copied to the tail of the new array, so inserts stay O(1) amortized.
func (b *Buffer) grow(n int) {
	if ENABLE_TRACE {
		b.Trace("ENTER", "grow", fmt.Sprintf("n=%d", n))
		defer b.Trace("EXIT", "grow", "")
	}
	if b.start >= n {
		return
	}
	used := b.Len()
	capacity := max(len(b.Buff)*2, used+n)
	storage := allocate(capacity)
	capacity = len(storage)
	copy(storage[capacity-used:], b.Buff[b.start:])
	recycle(b.Buff)
	b.Buff = storage
	b.start = capacity - used
}

// InsertOctet inserts a single byte in front of the current content.
func (b *Buffer) InsertOctet(o byte) {
	if b.start == 0 {
		b.grow(1)
	}
	b.start--
	b.Buff[b.start] = o
}

// InsertOctetString inserts data in front of the current content, keeping
// the order of data itself.
func (b *Buffer) InsertOctetString(data []byte) {
	if ENABLE_TRACE {
		b.Trace("ENTER", "InsertOctetString", fmt.Sprintf("len(data)=%d", len(data)))
		defer b.Trace("EXIT", "InsertOctetString", "")
	}
	if len(data) == 0 {
		return
	}
	b.grow(len(data))
	b.start -= len(data)
	copy(b.Buff[b.start:], data)
}

// Bytes returns a copy of the content in forward order, or nil if nothing
// has been inserted.
func (b *Buffer) Bytes() []byte {
	if b.Len() == 0 {
		return nil
	}
	out := make([]byte, b.Len())
	copy(out, b.Buff[b.start:])
	return out
}

// Release returns the writer's storage to the pool. The buffer must not be
// used afterwards. Readers only drop their reference to the wrapped data.
func (b *Buffer) Release() {
	if b.Buff == nil {
		return
	}
	if !b.reader {
		recycle(b.Buff)
	}
	b.Buff = nil
	b.start = 0
}

// ReadOctet reads the next byte of a reader.
func (b *Buffer) ReadOctet() (byte, error) {
	if !b.reader {
		return 0, errors.New("buffer is not a reader")
	}
	if b.Len() < 1 {
		return 0, errors.New("unexpected end of data")
	}
	o := b.Buff[b.start]
	b.start++
	return o, nil
}

// ReadOctetString reads exactly n bytes of a reader. The returned slice
// aliases the wrapped data.
func (b *Buffer) ReadOctetString(n int) ([]byte, error) {
	if !b.reader {
		return nil, errors.New("buffer is not a reader")
	}
	if n < 0 {
		return nil, errors.New("negative byte count")
	}
	if b.Len() < n {
		return nil, errors.New("insufficient data")
	}
	out := b.Buff[b.start : b.start+n]
	b.start += n
	return out, nil
}
