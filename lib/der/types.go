package der

import (
	"fmt"
	"math"
	"math/bits"
	"unsafe"

	"github.com/thebagchi/asn1der-go/lib/asn1buf"
)

// Tag is the identifying information of an encoded value together with the
// length of its content octets.
type Tag struct {
	Class        Class
	Construction Construction
	Number       uint32
	Length       int
}

// Kind identifies a descriptor variant.
type Kind uint8

const (
	KindFunc Kind = iota + 1
	KindSequence
	KindPointer
	KindOffset
	KindCounted
	KindNullTermSequenceOf
	KindNonEmptyNullTermSequenceOf
	KindSequenceOf
	KindTagged
	KindInt
	KindUint
	KindImmediate
)

// Type describes how to encode a value. Descriptors are built once and
// shared; nothing in this package modifies a descriptor after construction,
// so one descriptor graph can serve concurrent encodes.
//
// The set of variants is closed: Func, Sequence, Ptr, Offset, Counted,
// NullTermSequenceOf, SequenceOf, Tagged, Int, Uint and Immediate.
type Type interface {
	Kind() Kind
	sealed()
}

// Integer is the set of Go integer types a length field may have.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Func is the escape hatch for values that are not expressible
// structurally. Encode inserts the content octets and returns their tag.
type Func struct {
	Encode func(b *asn1buf.Buffer, v any) (Tag, error)
}

// Sequence encodes Fields in order as a SEQUENCE. Each field descriptor
// receives the sequence's own value, so fields are normally Offset
// descriptors. Absent, if set, reports the OPTIONAL fields not present in a
// value; it is evaluated once per encode.
type Sequence struct {
	Fields []Type
	Absent func(v any) FieldSet
}

// Ptr dereferences a *T before encoding it with Base. A nil pointer is a
// missing value.
type Ptr struct {
	Base Type
	load func(v any) (any, error)
}

// Pointer returns a descriptor for values of type *T whose pointee is
// encoded with base.
func Pointer[T any](base Type) *Ptr {
	return &Ptr{
		Base: base,
		load: func(v any) (any, error) {
			p, ok := v.(*T)
			if !ok {
				return nil, mismatch[*T](v)
			}
			if p == nil {
				return nil, nil
			}
			return *p, nil
		},
	}
}

// Offset selects part of a value, usually a struct field, and encodes it
// with Base.
type Offset struct {
	Base Type
	load func(v any) (any, error)
}

// Field returns a descriptor that applies get to a value of type S and
// encodes the result with base.
func Field[S, F any](base Type, get func(S) F) *Offset {
	return &Offset{
		Base: base,
		load: func(v any) (any, error) {
			s, ok := v.(S)
			if !ok {
				return nil, mismatch[S](v)
			}
			return get(s), nil
		},
	}
}

// Counted encodes data whose element or octet count is kept in a separate
// field of the same value. LengthSigned and LengthSize describe that field.
type Counted struct {
	Base         CountedType
	LengthSigned bool
	LengthSize   int
	count        func(v any) (int, error)
	data         func(v any) (any, error)
}

// CountedField returns a Counted descriptor for a value of type S: length
// reads the count, data reads what is counted.
func CountedField[S any, N Integer, D any](base CountedType, length func(S) N, data func(S) D) *Counted {
	var zero N
	return &Counted{
		Base:         base,
		LengthSigned: ^zero < 0,
		LengthSize:   int(unsafe.Sizeof(zero)),
		count: func(v any) (int, error) {
			s, ok := v.(S)
			if !ok {
				return 0, mismatch[S](v)
			}
			return loadCount(length(s))
		},
		data: func(v any) (any, error) {
			s, ok := v.(S)
			if !ok {
				return nil, mismatch[S](v)
			}
			return data(s), nil
		},
	}
}

// loadCount converts a length field to a count. Negative values and values
// beyond the int range are invalid.
func loadCount[N Integer](n N) (int, error) {
	var zero N
	if ^zero < 0 {
		x := int64(n)
		if x < 0 || uint64(x) > math.MaxInt {
			return 0, fmt.Errorf("%w: length field %d", ErrInvalidFormat, x)
		}
		return int(x), nil
	}
	x := uint64(n)
	if x > math.MaxInt {
		return 0, fmt.Errorf("%w: length field %d", ErrInvalidFormat, x)
	}
	return int(x), nil
}

// sliceAccess reads a []E without reflection.
type sliceAccess struct {
	length func(v any) (int, error)
	index  func(v any, i int) any
}

func sliceOf[E any]() sliceAccess {
	return sliceAccess{
		length: func(v any) (int, error) {
			s, ok := v.([]E)
			if !ok {
				return 0, mismatch[[]E](v)
			}
			return len(s), nil
		},
		index: func(v any, i int) any {
			return v.([]E)[i]
		},
	}
}

// NullTermSequenceOf encodes the elements of a slice up to the first zero
// (nil) element as a SEQUENCE OF. With NonEmpty set an immediately
// terminated slice is a missing value.
type NullTermSequenceOf struct {
	Elem     Type
	NonEmpty bool
	slice    sliceAccess
	scan     func(v any) (int, error)
}

// NullTerminated returns a descriptor for a []E terminated by the zero value
// of E, typically []*T or []any. A slice without a terminator is encoded in
// full.
func NullTerminated[E comparable](elem Type, nonEmpty bool) *NullTermSequenceOf {
	return &NullTermSequenceOf{
		Elem:     elem,
		NonEmpty: nonEmpty,
		slice:    sliceOf[E](),
		scan: func(v any) (int, error) {
			s, ok := v.([]E)
			if !ok {
				return 0, mismatch[[]E](v)
			}
			var zero E
			for i, e := range s {
				if e == zero {
					return i, nil
				}
			}
			return len(s), nil
		},
	}
}

// SequenceOf encodes every element of a slice as a SEQUENCE OF.
type SequenceOf struct {
	Elem  Type
	slice sliceAccess
}

// SliceOf returns a descriptor for a []E whose elements are encoded with
// elem.
func SliceOf[E any](elem Type) *SequenceOf {
	return &SequenceOf{Elem: elem, slice: sliceOf[E]()}
}

// Tagged replaces (Implicit) or wraps (explicit) the tag of Base.
type Tagged struct {
	Base         Type
	Class        Class
	Construction Construction
	Number       uint32
	Implicit     bool
}

// Explicit wraps base in an outer [class number] tag.
func Explicit(class Class, number uint32, base Type) *Tagged {
	return &Tagged{Base: base, Class: class, Construction: CONSTRUCTED, Number: number}
}

// Implicit replaces the class and number of base's tag.
func Implicit(class Class, number uint32, base Type) *Tagged {
	return &Tagged{Base: base, Class: class, Number: number, Implicit: true}
}

// Int loads a signed integer of Size octets (1, 2, 4 or 8).
type Int struct{ Size int }

// Uint loads an unsigned integer of Size octets (1, 2, 4 or 8).
type Uint struct{ Size int }

// Immediate encodes the constant Value regardless of the value passed in.
type Immediate struct{ Value int64 }

func (*Func) Kind() Kind       { return KindFunc }
func (*Sequence) Kind() Kind   { return KindSequence }
func (*Ptr) Kind() Kind        { return KindPointer }
func (*Offset) Kind() Kind     { return KindOffset }
func (*Counted) Kind() Kind    { return KindCounted }
func (*SequenceOf) Kind() Kind { return KindSequenceOf }
func (*Tagged) Kind() Kind     { return KindTagged }
func (*Int) Kind() Kind        { return KindInt }
func (*Uint) Kind() Kind       { return KindUint }
func (*Immediate) Kind() Kind  { return KindImmediate }

func (s *NullTermSequenceOf) Kind() Kind {
	if s.NonEmpty {
		return KindNonEmptyNullTermSequenceOf
	}
	return KindNullTermSequenceOf
}

func (*Func) sealed()               {}
func (*Sequence) sealed()           {}
func (*Ptr) sealed()                {}
func (*Offset) sealed()             {}
func (*Counted) sealed()            {}
func (*NullTermSequenceOf) sealed() {}
func (*SequenceOf) sealed()         {}
func (*Tagged) sealed()             {}
func (*Int) sealed()                {}
func (*Uint) sealed()               {}
func (*Immediate) sealed()          {}

// CountedKind identifies a counted-type variant.
type CountedKind uint8

const (
	CountedString CountedKind = iota + 1
	CountedDER
	CountedSeqOf
	CountedChoice
)

// CountedType describes what a Counted descriptor's data holds. The set of
// variants is closed: String, DER, CountedSequenceOf and Choice.
type CountedType interface {
	CountedKind() CountedKind
	sealedCounted()
}

// StringEncoder inserts count octets of data and returns the content length.
type StringEncoder func(b *asn1buf.Buffer, data any, count int) (int, error)

// String is a primitive string type with universal tag Number.
type String struct {
	Number uint32
	Encode StringEncoder
}

// DER is a complete pre-encoded value of count octets. Its content is
// spliced in and its header regenerated.
type DER struct{}

// CountedSequenceOf treats the count as the number of leading elements of a
// slice to encode.
type CountedSequenceOf struct {
	Elem  Type
	slice sliceAccess
}

// CountedSliceOf returns a counted SEQUENCE OF over a []E.
func CountedSliceOf[E any](elem Type) *CountedSequenceOf {
	return &CountedSequenceOf{Elem: elem, slice: sliceOf[E]()}
}

// Choice treats the count as the index of the alternative to encode. Every
// alternative receives the same data value.
type Choice struct {
	Options []Type
}

func (*String) CountedKind() CountedKind            { return CountedString }
func (*DER) CountedKind() CountedKind               { return CountedDER }
func (*CountedSequenceOf) CountedKind() CountedKind { return CountedSeqOf }
func (*Choice) CountedKind() CountedKind            { return CountedChoice }

func (*String) sealedCounted()            {}
func (*DER) sealedCounted()               {}
func (*CountedSequenceOf) sealedCounted() {}
func (*Choice) sealedCounted()            {}

// FieldSet is a set of sequence field indices.
type FieldSet struct {
	words []uint64
}

// Fields returns a FieldSet holding indices.
func Fields(indices ...int) FieldSet {
	var s FieldSet
	for _, i := range indices {
		s.Add(i)
	}
	return s
}

// Add inserts index i.
func (s *FieldSet) Add(i int) {
	if i < 0 {
		return
	}
	word := i / 64
	if word >= len(s.words) {
		s.words = append(s.words, make([]uint64, word+1-len(s.words))...)
	}
	s.words[word] |= 1 << (uint(i) % 64)
}

// Has reports whether index i is in the set.
func (s FieldSet) Has(i int) bool {
	word := i / 64
	if i < 0 || word >= len(s.words) {
		return false
	}
	return s.words[word]&(1<<(uint(i)%64)) != 0
}

// Len returns the number of indices in the set.
func (s FieldSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}
