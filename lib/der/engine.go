package der

import (
	"fmt"

	"github.com/thebagchi/asn1der-go/lib/asn1buf"
)

// Encode returns the complete DER encoding of v described by t: the content
// followed by (and therefore preceded on the wire by) t's own header.
// A nil v is a missing value.
func Encode(v any, t Type) ([]byte, error) {
	if v == nil {
		return nil, ErrMissingField
	}
	b := asn1buf.CreateWriter()
	defer b.Release()

	if _, err := encodeTypeAndTag(b, v, t); nil != err {
		return nil, err
	}
	return b.Bytes(), nil
}

// EncodeType inserts the content octets of v described by t and returns
// their tag. The caller is responsible for the header. Func encoders use it
// to recurse into other descriptors.
func EncodeType(b *asn1buf.Buffer, v any, t Type) (Tag, error) {
	if v == nil {
		return Tag{}, ErrMissingField
	}

	switch a := t.(type) {
	case *Func:
		return a.Encode(b, v)

	case *Sequence:
		length, err := encodeSequence(b, v, a)
		if nil != err {
			return Tag{}, err
		}
		return Tag{UNIVERSAL, CONSTRUCTED, TAG_SEQUENCE, length}, nil

	case *Ptr:
		inner, err := a.load(v)
		if nil != err {
			return Tag{}, err
		}
		return EncodeType(b, inner, a.Base)

	case *Offset:
		inner, err := a.load(v)
		if nil != err {
			return Tag{}, err
		}
		return EncodeType(b, inner, a.Base)

	case *Counted:
		count, err := a.count(v)
		if nil != err {
			return Tag{}, err
		}
		data, err := a.data(v)
		if nil != err {
			return Tag{}, err
		}
		return encodeCounted(b, data, count, a.Base)

	case *NullTermSequenceOf:
		count, err := a.scan(v)
		if nil != err {
			return Tag{}, err
		}
		if a.NonEmpty && count == 0 {
			return Tag{}, fmt.Errorf("%w: empty sequence", ErrMissingField)
		}
		length, err := encodeSequenceOf(b, count, v, a.slice, a.Elem)
		if nil != err {
			return Tag{}, err
		}
		return Tag{UNIVERSAL, CONSTRUCTED, TAG_SEQUENCE, length}, nil

	case *SequenceOf:
		count, err := a.slice.length(v)
		if nil != err {
			return Tag{}, err
		}
		length, err := encodeSequenceOf(b, count, v, a.slice, a.Elem)
		if nil != err {
			return Tag{}, err
		}
		return Tag{UNIVERSAL, CONSTRUCTED, TAG_SEQUENCE, length}, nil

	case *Tagged:
		tag, err := EncodeType(b, v, a.Base)
		if nil != err {
			return Tag{}, err
		}
		if !a.Implicit {
			n, err := MakeTag(b, tag)
			if nil != err {
				return Tag{}, err
			}
			tag.Length += n
			tag.Construction = a.Construction
		}
		tag.Class = a.Class
		tag.Number = a.Number
		return tag, nil

	case *Int:
		value, err := loadInt(v, a.Size)
		if nil != err {
			return Tag{}, err
		}
		return Tag{UNIVERSAL, PRIMITIVE, TAG_INTEGER, EncodeInteger(b, value)}, nil

	case *Uint:
		value, err := loadUint(v, a.Size)
		if nil != err {
			return Tag{}, err
		}
		return Tag{UNIVERSAL, PRIMITIVE, TAG_INTEGER, EncodeUnsignedInteger(b, value)}, nil

	case *Immediate:
		return Tag{UNIVERSAL, PRIMITIVE, TAG_INTEGER, EncodeInteger(b, a.Value)}, nil

	default:
		panic(fmt.Sprintf("der: unknown descriptor %T", t))
	}
}

// encodeTypeAndTag inserts the full TLV of v and returns its total length.
func encodeTypeAndTag(b *asn1buf.Buffer, v any, t Type) (int, error) {
	tag, err := EncodeType(b, v, t)
	if nil != err {
		return 0, err
	}
	n, err := MakeTag(b, tag)
	if nil != err {
		return 0, err
	}
	return tag.Length + n, nil
}

// encodeCounted inserts count units of data described by c.
func encodeCounted(b *asn1buf.Buffer, data any, count int, c CountedType) (Tag, error) {
	switch a := c.(type) {
	case *String:
		length, err := a.Encode(b, data, count)
		if nil != err {
			return Tag{}, err
		}
		return Tag{UNIVERSAL, PRIMITIVE, a.Number, length}, nil

	case *DER:
		der, err := octets(data)
		if nil != err {
			return Tag{}, err
		}
		if count > len(der) {
			return Tag{}, fmt.Errorf("%w: length %d exceeds %d available octets",
				ErrInvalidFormat, count, len(der))
		}
		return splitDER(b, der[:count])

	case *CountedSequenceOf:
		available, err := a.slice.length(data)
		if nil != err {
			return Tag{}, err
		}
		if count > available {
			if available == 0 {
				return Tag{}, fmt.Errorf("%w: %d elements counted, none present",
					ErrMissingField, count)
			}
			return Tag{}, fmt.Errorf("%w: %d elements counted, %d present",
				ErrInvalidFormat, count, available)
		}
		length, err := encodeSequenceOf(b, count, data, a.slice, a.Elem)
		if nil != err {
			return Tag{}, err
		}
		return Tag{UNIVERSAL, CONSTRUCTED, TAG_SEQUENCE, length}, nil

	case *Choice:
		if count >= len(a.Options) {
			return Tag{}, fmt.Errorf("%w: choice %d of %d", ErrMissingField, count, len(a.Options))
		}
		return EncodeType(b, data, a.Options[count])

	default:
		panic(fmt.Sprintf("der: unknown counted type %T", c))
	}
}

// encodeSequence inserts the fields of seq last to first, so that they
// appear in declaration order.
func encodeSequence(b *asn1buf.Buffer, v any, seq *Sequence) (int, error) {
	var absent FieldSet
	if seq.Absent != nil {
		absent = seq.Absent(v)
	}
	sum := 0
	for i := len(seq.Fields); i > 0; i-- {
		if absent.Has(i - 1) {
			continue
		}
		length, err := encodeTypeAndTag(b, v, seq.Fields[i-1])
		if nil != err {
			return 0, fmt.Errorf("field %d: %w", i-1, err)
		}
		sum += length
	}
	return sum, nil
}

// encodeSequenceOf inserts the first count elements of the slice v last to
// first.
func encodeSequenceOf(b *asn1buf.Buffer, count int, v any, slice sliceAccess, elem Type) (int, error) {
	sum := 0
	for i := count; i > 0; i-- {
		length, err := encodeTypeAndTag(b, slice.index(v, i-1), elem)
		if nil != err {
			return 0, fmt.Errorf("element %d: %w", i-1, err)
		}
		sum += length
	}
	return sum, nil
}

// raw returns the two's complement bits of any Go integer value.
func raw(v any) (uint64, bool) {
	switch x := v.(type) {
	case int:
		return uint64(x), true
	case int8:
		return uint64(x), true
	case int16:
		return uint64(x), true
	case int32:
		return uint64(x), true
	case int64:
		return uint64(x), true
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case uintptr:
		return uint64(x), true
	}
	return 0, false
}

// loadInt reads v at a storage width of size octets and sign-extends it.
func loadInt(v any, size int) (int64, error) {
	x, ok := raw(v)
	if !ok {
		return 0, fmt.Errorf("%w: %T is not an integer", ErrInvalidFormat, v)
	}
	switch size {
	case 1:
		return int64(int8(x)), nil
	case 2:
		return int64(int16(x)), nil
	case 4:
		return int64(int32(x)), nil
	case 8:
		return int64(x), nil
	default:
		panic(fmt.Sprintf("der: integer size %d", size))
	}
}

// loadUint reads v at a storage width of size octets and zero-extends it.
func loadUint(v any, size int) (uint64, error) {
	x, ok := raw(v)
	if !ok {
		return 0, fmt.Errorf("%w: %T is not an integer", ErrInvalidFormat, v)
	}
	switch size {
	case 1:
		return uint64(uint8(x)), nil
	case 2:
		return uint64(uint16(x)), nil
	case 4:
		return uint64(uint32(x)), nil
	case 8:
		return x, nil
	default:
		panic(fmt.Sprintf("der: integer size %d", size))
	}
}

// octets returns the bytes held by a []byte or string value.
func octets(data any) ([]byte, error) {
	switch x := data.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %T is not an octet string", ErrInvalidFormat, data)
}
