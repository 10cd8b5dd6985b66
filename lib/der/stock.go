package der

import (
	encoding_asn1 "encoding/asn1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/thebagchi/asn1der-go/lib/asn1buf"
)

// Stock descriptors for the basic types. They are shared by every schema and
// must not be modified.
var (
	Int8  = &Int{Size: 1}
	Int16 = &Int{Size: 2}
	Int32 = &Int{Size: 4}
	Int64 = &Int{Size: 8}

	Uint8  = &Uint{Size: 1}
	Uint16 = &Uint{Size: 2}
	Uint32 = &Uint{Size: 4}
	Uint64 = &Uint{Size: 8}

	// Boolean encodes a bool, or any integer with C truth semantics.
	Boolean = &Func{Encode: encodeBooleanValue}

	// Null encodes NULL for any non-nil value.
	Null = &Func{Encode: encodeNullValue}

	// GeneralizedTime encodes a time.Time, Unix seconds held in any integer
	// type, or an RFC 3339 string.
	GeneralizedTime = &Func{Encode: encodeTimeValue}

	// ObjectIdentifier encodes an encoding/asn1.ObjectIdentifier, a []int or
	// a dotted decimal string.
	ObjectIdentifier = &Func{Encode: encodeObjectIdentifierValue}
)

// Counted string types. Data may be a []byte or a string.
var (
	OctetString     = &String{Number: TAG_OCTET_STRING, Encode: EncodeOctets}
	GeneralString   = &String{Number: TAG_GENERAL_STRING, Encode: EncodeOctets}
	UTF8String      = &String{Number: TAG_UTF8_STRING, Encode: EncodeOctets}
	IA5String       = &String{Number: TAG_IA5_STRING, Encode: EncodeOctets}
	PrintableString = &String{Number: TAG_PRINTABLE_STRING, Encode: EncodeOctets}
	BitString       = &String{Number: TAG_BIT_STRING, Encode: EncodeBits}
	HexOctetString  = &String{Number: TAG_OCTET_STRING, Encode: EncodeHexOctets}

	// RawDER splices a complete pre-encoded value.
	RawDER = &DER{}
)

// EncodeOctets is the StringEncoder for octet and character strings.
func EncodeOctets(b *asn1buf.Buffer, data any, count int) (int, error) {
	value, err := octets(data)
	if nil != err {
		return 0, err
	}
	return EncodeByteString(b, value, count)
}

// EncodeBits is the StringEncoder for whole-octet bit strings.
func EncodeBits(b *asn1buf.Buffer, data any, count int) (int, error) {
	value, err := octets(data)
	if nil != err {
		return 0, err
	}
	return EncodeBitString(b, value, count)
}

// EncodeHexOctets is the StringEncoder for octet strings written as hex
// text; count is the number of decoded octets.
func EncodeHexOctets(b *asn1buf.Buffer, data any, count int) (int, error) {
	text, ok := data.(string)
	if !ok {
		return EncodeOctets(b, data, count)
	}
	value, err := hex.DecodeString(text)
	if nil != err {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return EncodeByteString(b, value, count)
}

func encodeBooleanValue(b *asn1buf.Buffer, v any) (Tag, error) {
	var value bool
	switch x := v.(type) {
	case bool:
		value = x
	default:
		n, ok := raw(v)
		if !ok {
			return Tag{}, fmt.Errorf("%w: %T is not a boolean", ErrInvalidFormat, v)
		}
		value = n != 0
	}
	return Tag{UNIVERSAL, PRIMITIVE, TAG_BOOLEAN, EncodeBoolean(b, value)}, nil
}

func encodeNullValue(b *asn1buf.Buffer, v any) (Tag, error) {
	return Tag{UNIVERSAL, PRIMITIVE, TAG_NULL, 0}, nil
}

func encodeTimeValue(b *asn1buf.Buffer, v any) (Tag, error) {
	var value time.Time
	switch x := v.(type) {
	case time.Time:
		value = x
	case string:
		parsed, err := time.Parse(time.RFC3339, x)
		if nil != err {
			return Tag{}, fmt.Errorf("%w: %v", ErrBadTime, err)
		}
		value = parsed
	default:
		seconds, err := loadInt(v, 8)
		if nil != err {
			return Tag{}, err
		}
		value = time.Unix(seconds, 0)
	}
	length, err := EncodeGeneralTime(b, value)
	if nil != err {
		return Tag{}, err
	}
	return Tag{UNIVERSAL, PRIMITIVE, TAG_GENERALIZED_TIME, length}, nil
}

// ParseObjectIdentifier parses a dotted decimal object identifier.
func ParseObjectIdentifier(s string) (encoding_asn1.ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	oid := make(encoding_asn1.ObjectIdentifier, len(parts))
	for i, part := range parts {
		arc, err := strconv.Atoi(part)
		if nil != err || arc < 0 {
			return nil, fmt.Errorf("%w: object identifier %q", ErrInvalidFormat, s)
		}
		oid[i] = arc
	}
	return oid, nil
}

// 8.19 Encoding of an object identifier value
// |- 8.19.2 The contents octets shall be an (ordered) list of encodings of subidentifiers
// |  |  concatenated together. Each subidentifier is represented as a series of (one or
// |  |  more) octets. Bit 8 of each octet indicates whether it is the last in the series.
// |- 8.19.4 The numerical value of the first subidentifier is derived from the values of
// |  |  the first two object identifier components in the object identifier value being
// |  |  encoded, using the formula: (X*40) + Y

func encodeObjectIdentifierValue(b *asn1buf.Buffer, v any) (Tag, error) {
	var oid encoding_asn1.ObjectIdentifier
	switch x := v.(type) {
	case encoding_asn1.ObjectIdentifier:
		oid = x
	case []int:
		oid = x
	case string:
		parsed, err := ParseObjectIdentifier(x)
		if nil != err {
			return Tag{}, err
		}
		oid = parsed
	default:
		return Tag{}, fmt.Errorf("%w: %T is not an object identifier", ErrInvalidFormat, v)
	}

	var builder cryptobyte.Builder
	builder.AddASN1ObjectIdentifier(oid)
	encoded, err := builder.Bytes()
	if nil != err {
		return Tag{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	var (
		input   = cryptobyte.String(encoded)
		content cryptobyte.String
	)
	if !input.ReadASN1(&content, cryptobyte_asn1.OBJECT_IDENTIFIER) {
		return Tag{}, fmt.Errorf("%w: object identifier %v", ErrInvalidFormat, oid)
	}
	b.InsertOctetString(content)
	return Tag{UNIVERSAL, PRIMITIVE, TAG_OBJECT_IDENTIFIER, len(content)}, nil
}
