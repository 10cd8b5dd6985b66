package der

import (
	"fmt"
	"math"

	"github.com/thebagchi/asn1der-go/lib/asn1buf"
)

// ReadTag parses the identifier and length octets at the start of data and
// returns the tag (with its content length) and the number of header octets.
// It accepts the BER forms DER forbids (leading 0x80 tag continuation
// octets, long-form lengths below 128, leading zero length octets) so that
// callers can re-encode such values canonically. Indefinite lengths are
// rejected.
func ReadTag(data []byte) (Tag, int, error) {
	var t Tag
	reader := asn1buf.CreateReader(data)
	defer reader.Release()

	leading, err := reader.ReadOctet()
	if nil != err {
		return t, 0, fmt.Errorf("%w: identifier: %v", ErrInvalidFormat, err)
	}
	t.Class = Class(leading & 0xC0)
	t.Construction = Construction(leading & 0x20)
	t.Number = uint32(leading & 0x1F)

	// 8.1.2.4 high-tag-number form
	if t.Number == 0x1F {
		t.Number = 0
		for {
			o, err := reader.ReadOctet()
			if nil != err {
				return t, 0, fmt.Errorf("%w: tag number: %v", ErrInvalidFormat, err)
			}
			if t.Number > TAGNUM_MAX>>7 {
				return t, 0, fmt.Errorf("%w: tag number exceeds %d", ErrOverflow, TAGNUM_MAX)
			}
			t.Number = t.Number<<7 | uint32(o&0x7F)
			if o&0x80 == 0 {
				break
			}
		}
	}

	// 8.1.3 length octets
	first, err := reader.ReadOctet()
	if nil != err {
		return t, 0, fmt.Errorf("%w: length: %v", ErrInvalidFormat, err)
	}
	switch {
	case first < 0x80:
		t.Length = int(first)
	case first == 0x80:
		return t, 0, fmt.Errorf("%w: indefinite length", ErrInvalidFormat)
	case first == 0xFF:
		return t, 0, fmt.Errorf("%w: reserved length octet", ErrInvalidFormat)
	default:
		count := int(first & 0x7F)
		octets, err := reader.ReadOctetString(count)
		if nil != err {
			return t, 0, fmt.Errorf("%w: length: %v", ErrInvalidFormat, err)
		}
		var length uint64
		for _, o := range octets {
			if length > math.MaxInt>>8 {
				return t, 0, fmt.Errorf("%w: length too large", ErrOverflow)
			}
			length = length<<8 | uint64(o)
		}
		t.Length = int(length)
	}
	return t, len(data) - reader.Remains(), nil
}

// splitDER inserts the content octets of the complete DER value der and
// returns its tag. The header is not copied: the caller regenerates it, which
// also canonicalizes non-minimal headers.
func splitDER(b *asn1buf.Buffer, der []byte) (Tag, error) {
	t, header, err := ReadTag(der)
	if nil != err {
		return Tag{}, err
	}
	if len(der)-header != t.Length {
		return Tag{}, fmt.Errorf("%w: declared length %d, %d content octets present",
			ErrInvalidFormat, t.Length, len(der)-header)
	}
	b.InsertOctetString(der[header:])
	return t, nil
}
