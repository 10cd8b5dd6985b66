package der

import "math"

// Class is the class bits (8 and 7) of an identifier octet.
type Class uint8

// Construction is the primitive/constructed bit (6) of an identifier octet.
type Construction uint8

const (
	UNIVERSAL        Class = 0x00
	APPLICATION      Class = 0x40
	CONTEXT_SPECIFIC Class = 0x80
	PRIVATE          Class = 0xC0

	PRIMITIVE   Construction = 0x00
	CONSTRUCTED Construction = 0x20
)

// Universal class tag numbers (ITU-T X.680 Table 1).
const (
	TAG_BOOLEAN           = 1
	TAG_INTEGER           = 2
	TAG_BIT_STRING        = 3
	TAG_OCTET_STRING      = 4
	TAG_NULL              = 5
	TAG_OBJECT_IDENTIFIER = 6
	TAG_ENUMERATED        = 10
	TAG_UTF8_STRING       = 12
	TAG_SEQUENCE          = 16
	TAG_PRINTABLE_STRING  = 19
	TAG_IA5_STRING        = 22
	TAG_GENERALIZED_TIME  = 24
	TAG_GENERAL_STRING    = 27
)

const (
	// TAGNUM_MAX is the largest tag number the encoder will write or accept
	// when re-parsing a pre-encoded value.
	TAGNUM_MAX = math.MaxInt32

	// LOW_TAGNUM_LIMIT is the first tag number that needs the high-tag-number
	// form. ITU-T X.690 Section 8.1.2.4
	LOW_TAGNUM_LIMIT = 31

	// SHORT_LENGTH_LIMIT is the first length that needs the long form.
	// ITU-T X.690 Section 8.1.3.4 / 8.1.3.5
	SHORT_LENGTH_LIMIT = 128

	// GENERALIZED_TIME_LENGTH is the content length of every GeneralizedTime
	// this encoder produces: YYYYMMDDHHMMSSZ.
	GENERALIZED_TIME_LENGTH = 15
)
