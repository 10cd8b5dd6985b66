package der

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/thebagchi/asn1der-go/lib/asn1buf"
)

// All encoders in this file insert into the buffer back to front: the last
// content byte is inserted first. They return the number of content octets
// inserted.

// 8.1.3 Length octets
// |- 8.1.3.1 Two forms of length octets are specified. These are:
// |  |  a) the definite form (see 8.1.3.3); and
// |  |  b) the indefinite form (see 8.1.3.6).
// |- 8.1.3.3 For the definite form, the length octets shall consist of one or more
// |  |  octets, and shall represent the number of octets in the contents octets using
// |  |  either the short form (see 8.1.3.4) or the long form (see 8.1.3.5) as a sender's
// |  |  option.
// |- 8.1.3.4 In the short form, the length octets shall consist of a single octet in
// |  |  which bit 8 is zero and bits 7 to 1 encode the number of octets in the contents
// |  |  octets (which may be zero), as an unsigned binary integer with bit 7 as the most
// |  |  significant bit.
// |- 8.1.3.5 In the long form, the length octets shall consist of an initial octet and
// |  |  one or more subsequent octets. The initial octet shall be encoded as follows:
// |  |  a) bit 8 shall be one;
// |  |  b) bits 7 to 1 shall encode the number of subsequent octets in the length octets,
// |  |     as an unsigned binary integer with bit 7 as the most significant bit;
// |  |  c) the value 11111111 shall not be used.
// |  |  Bits 8 to 1 of the first subsequent octet, followed by bits 8 to 1 of the second
// |  |  subsequent octet, followed in turn by bits 8 to 1 of each further octet up to and
// |  |  including the last subsequent octet, shall be the encoding of an unsigned binary
// |  |  integer equal to the number of octets in the contents octets, with bit 8 of the
// |  |  first subsequent octet as the most significant bit.
// 10.1 Length forms
// |- The definite form of length encoding shall be used, encoded in the minimum number
// |  |  of octets.

// OctetsLength returns the number of length octets for a content length.
func OctetsLength(length int) int {
	if length < SHORT_LENGTH_LIMIT {
		return 1
	}
	return 1 + (bits.Len64(uint64(length))+7)>>3
}

// 8.1.2 Identifier octets
// |- 8.1.2.2 For tags with a number ranging from zero to 30 (inclusive), the identifier
// |  |  octets shall comprise a single octet encoded as follows:
// |  |  a) bits 8 and 7 shall be encoded to represent the class of the tag;
// |  |  b) bit 6 shall be a zero or a one according to the rules of 8.1.2.5;
// |  |  c) bits 5 to 1 shall encode the number of the tag as a binary integer with bit 5
// |  |     as the most significant bit.
// |- 8.1.2.4 For tags with a number greater than or equal to 31, the identifier shall
// |  |  comprise a leading octet followed by one or more subsequent octets.
// |  |- 8.1.2.4.1 The leading octet shall be encoded as follows:
// |  |  |  a) bits 8 and 7 shall be encoded to represent the class of the tag;
// |  |  |  b) bit 6 shall be a zero or a one according to the rules of 8.1.2.5;
// |  |  |  c) bits 5 to 1 shall be encoded as 11111.
// |  |- 8.1.2.4.2 The subsequent octets shall encode the number of the tag as follows:
// |  |  |  a) bit 8 of each octet shall be set to one unless it is the last octet of the
// |  |  |     identifier octets;
// |  |  |  b) bits 7 to 1 of the first subsequent octet, followed by bits 7 to 1 of the
// |  |  |     second subsequent octet, followed in turn by bits 7 to 1 of each further
// |  |  |     octet, up to and including the last subsequent octet in the identifier
// |  |  |     octets shall be the encoding of an unsigned binary integer equal to the tag
// |  |  |     number, with bit 7 of the first subsequent octet as the most significant bit;
// |  |  |  c) bits 7 to 1 of the first subsequent octet shall not all be zero.
// |- 8.1.2.5 Bit 6 shall be set to zero if the encoding is primitive, and shall be set to
// |  |  one if the encoding is constructed.

// OctetsTagNumber returns the number of identifier octets for a tag number.
func OctetsTagNumber(number uint32) int {
	if number < LOW_TAGNUM_LIMIT {
		return 1
	}
	return 1 + (bits.Len32(number)+6)/7
}

// MakeTag writes the identifier and length octets for t in front of the
// content already in the buffer and returns the number of header octets.
// The length goes in first because insertion is back to front.
func MakeTag(b *asn1buf.Buffer, t Tag) (int, error) {
	if t.Number > TAGNUM_MAX {
		return 0, fmt.Errorf("%w: tag number %d", ErrOverflow, t.Number)
	}
	if t.Length < 0 {
		return 0, fmt.Errorf("%w: negative length %d", ErrOverflow, t.Length)
	}

	sum := 0
	if t.Length < SHORT_LENGTH_LIMIT {
		b.InsertOctet(byte(t.Length) & 0x7F)
		sum++
	} else {
		count := 0
		for rest := uint64(t.Length); rest != 0; rest >>= 8 {
			b.InsertOctet(byte(rest))
			count++
		}
		b.InsertOctet(0x80 | byte(count)&0x7F)
		sum += count + 1
	}

	leading := byte(t.Class) | byte(t.Construction)
	if t.Number < LOW_TAGNUM_LIMIT {
		b.InsertOctet(leading | byte(t.Number))
		sum++
	} else {
		rest := t.Number
		b.InsertOctet(byte(rest) & 0x7F)
		sum++
		for rest >>= 7; rest != 0; rest >>= 7 {
			b.InsertOctet(0x80 | byte(rest)&0x7F)
			sum++
		}
		b.InsertOctet(leading | 0x1F)
		sum++
	}
	return sum, nil
}

// 8.2 Encoding of a boolean value
// |- 8.2.1 The encoding of a boolean value shall be primitive. The contents octets shall
// |  |  consist of a single octet.
// |- 8.2.2 If the boolean value is FALSE the octet shall be zero. If the boolean value is
// |  |  TRUE the octet shall have any non-zero value, as a sender's option.
// 11.1 Boolean values
// |- If the encoding represents the boolean value TRUE, its single contents octet shall
// |  |  have all eight bits set to one.

func EncodeBoolean(b *asn1buf.Buffer, value bool) int {
	if value {
		b.InsertOctet(0xFF)
	} else {
		b.InsertOctet(0x00)
	}
	return 1
}

// 8.3 Encoding of an integer value
// |- 8.3.1 The encoding of an integer value shall be primitive. The contents octets shall
// |  |  consist of one or more octets.
// |- 8.3.2 If the contents octets of an integer value encoding consist of more than one
// |  |  octet, then the bits of the first octet and bit 8 of the second octet:
// |  |  a) shall not all be ones; and
// |  |  b) shall not all be zero.
// |  |- NOTE - These rules ensure that an integer value is always encoded in the smallest
// |  |  |  possible number of octets.
// |- 8.3.3 The contents octets shall be a two's complement binary number equal to the
// |  |  integer value, and consisting of bits 8 to 1 of the first octet, followed by bits 8
// |  |  to 1 of the second octet, followed by bits 8 to 1 of each octet in turn up to and
// |  |  including the last octet of the contents octets.

func BitsTwosComplementBinaryInteger(value int64) int {
	if value == 0 {
		return 1
	}
	if value > 0 {
		return bits.Len64(uint64(value)) + 1
	}
	// ^value is non-negative for every negative value, MinInt64 included.
	return bits.Len64(uint64(^value)) + 1
}

func OctetsTwosComplementBinaryInteger(value int64) int {
	return (BitsTwosComplementBinaryInteger(value) + 7) >> 3
}

// OctetsUnsignedInteger returns the content length of an INTEGER holding an
// unsigned value: the value's octets plus a leading zero octet whenever the
// top bit would otherwise read as a sign.
func OctetsUnsignedInteger(value uint64) int {
	return bits.Len64(value)/8 + 1
}

// EncodeInteger inserts the minimal two's complement encoding of value.
// Octets are emitted least significant first until only sign bits remain.
func EncodeInteger(b *asn1buf.Buffer, value int64) int {
	var (
		length = 0
		digit  byte
		rest   = value
	)
	for {
		digit = byte(rest)
		b.InsertOctet(digit)
		length++
		rest >>= 8
		if rest == 0 || rest == -1 {
			break
		}
	}
	// The leading octet must carry the sign of value.
	if value > 0 && digit&0x80 == 0x80 {
		b.InsertOctet(0x00)
		length++
	} else if value < 0 && digit&0x80 != 0x80 {
		b.InsertOctet(0xFF)
		length++
	}
	return length
}

// EncodeUnsignedInteger inserts value as a non-negative INTEGER.
func EncodeUnsignedInteger(b *asn1buf.Buffer, value uint64) int {
	var (
		length = 0
		digit  byte
		rest   = value
	)
	for {
		digit = byte(rest)
		b.InsertOctet(digit)
		length++
		rest >>= 8
		if rest == 0 {
			break
		}
	}
	if digit&0x80 == 0x80 {
		b.InsertOctet(0x00)
		length++
	}
	return length
}

// 8.7 Encoding of an octetstring value
// |- 8.7.1 The encoding of an octetstring value shall be either primitive or constructed
// |  |  at the option of the sender.
// |- 8.7.2 The primitive encoding contains zero, one or more contents octets equal in
// |  |  value to the octets in the data value, in the order they appear in the data value,
// |  |  and with the most significant bit of an octet of the data value aligned with the
// |  |  most significant bit of an octet of the contents octets.
// 10.2 String encoding forms
// |- For bitstring, octetstring and restricted character string types, the constructed
// |  |  form of encoding shall not be used.

// EncodeByteString inserts the first length octets of data verbatim.
func EncodeByteString(b *asn1buf.Buffer, data []byte, length int) (int, error) {
	if length > 0 && data == nil {
		return 0, ErrMissingField
	}
	if length > len(data) {
		return 0, fmt.Errorf("%w: length %d exceeds %d available octets",
			ErrInvalidFormat, length, len(data))
	}
	b.InsertOctetString(data[:length])
	return length, nil
}

// 8.6 Encoding of a bitstring value
// |- 8.6.2 The contents octets for the primitive encoding shall contain an initial octet
// |  |  followed by zero, one or more subsequent octets.
// |  |- 8.6.2.2 The initial octet shall encode, as an unsigned binary integer with bit 1 as
// |  |  |  the least significant bit, the number of unused bits in the final subsequent
// |  |  |  octet. The number shall be in the range zero to seven.
// |  |- 8.6.2.3 If the bitstring is empty, there shall be no subsequent octets, and the
// |  |  |  initial octet shall be zero.

// EncodeBitString inserts length whole octets of data preceded by a zero
// unused-bits octet. Partial final octets are not supported.
func EncodeBitString(b *asn1buf.Buffer, data []byte, length int) (int, error) {
	n, err := EncodeByteString(b, data, length)
	if nil != err {
		return 0, err
	}
	b.InsertOctet(0x00)
	return n + 1, nil
}

// 11.7 GeneralizedTime
// |- 11.7.1 The encoding shall terminate with a "Z", as described in the ITU-T X.680 |
// |  |  ISO/IEC 8824-1 clause on GeneralizedTime.
// |- 11.7.2 The seconds element shall always be present.
// |- 11.7.3 The fractional-seconds elements, if present, shall omit all trailing zeros;
// |  |  if the elements correspond to 0, they shall be wholly omitted, and the decimal
// |  |  point element also shall be omitted.

// EncodeGeneralTime inserts value as YYYYMMDDHHMMSSZ in UTC. Fractional
// seconds are dropped. Years outside 0000..9999 fail with ErrBadTime.
func EncodeGeneralTime(b *asn1buf.Buffer, value time.Time) (int, error) {
	var s string
	if value.Unix() == 0 {
		s = "19700101000000Z"
	} else {
		utc := value.UTC()
		if utc.Year() < 0 || utc.Year()-1900 > 8099 {
			return 0, fmt.Errorf("%w: year %d", ErrBadTime, utc.Year())
		}
		s = fmt.Sprintf("%04d%02d%02d%02d%02d%02dZ",
			utc.Year(), int(utc.Month()), utc.Day(),
			utc.Hour(), utc.Minute(), utc.Second())
	}
	if len(s) != GENERALIZED_TIME_LENGTH {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	return EncodeByteString(b, []byte(s), GENERALIZED_TIME_LENGTH)
}
