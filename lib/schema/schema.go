// Package schema compiles declarative YAML schema documents into der.Type
// descriptor graphs. Compiled types encode the generic values produced by
// package value: map[string]any for sequences and choices, []any for
// sequence-of, int64/uint64 for integers, string or []byte for strings.
//
// A schema document names its types under a top-level "types" mapping:
//
//	types:
//	  PrincipalName:
//	    kind: sequence
//	    fields:
//	      - name: name-type
//	        tag: 0
//	        kind: int
//	        size: 4
//	      - name: name-string
//	        tag: 1
//	        kind: sequence-of
//	        elem: {kind: string, number: 27}
package schema

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thebagchi/asn1der-go/lib/asn1buf"
	"github.com/thebagchi/asn1der-go/lib/der"
)

// Node kinds.
const (
	KIND_INT         = "int"
	KIND_UINT        = "uint"
	KIND_ENUMERATED  = "enumerated"
	KIND_IMMEDIATE   = "immediate"
	KIND_BOOLEAN     = "boolean"
	KIND_NULL        = "null"
	KIND_TIME        = "time"
	KIND_OID         = "oid"
	KIND_STRING      = "string"
	KIND_BITSTRING   = "bitstring"
	KIND_DER         = "der"
	KIND_SEQUENCE    = "sequence"
	KIND_SEQUENCE_OF = "sequence-of"
	KIND_CHOICE      = "choice"
	KIND_REF         = "ref"
)

var (
	// ErrSchema is returned for documents that cannot be compiled.
	ErrSchema = errors.New("invalid schema")

	// ErrUnknownType is returned by Encode for a name the schema does not
	// define.
	ErrUnknownType = errors.New("unknown type")
)

// Document is a parsed, not yet compiled, schema.
type Document struct {
	Types map[string]*Node `yaml:"types"`
}

// Node describes one type.
type Node struct {
	Kind string `yaml:"kind"`
	Tag  *Tag   `yaml:"tag,omitempty"`

	// int, uint, enumerated
	Size int `yaml:"size,omitempty"`
	// immediate
	Value int64 `yaml:"value,omitempty"`
	// string: universal tag number, OCTET STRING when zero
	Number uint32 `yaml:"number,omitempty"`
	Hex    bool   `yaml:"hex,omitempty"`
	// sequence
	Fields []Field `yaml:"fields,omitempty"`
	// sequence-of
	Elem       *Node `yaml:"elem,omitempty"`
	Terminated bool  `yaml:"terminated,omitempty"`
	NonEmpty   bool  `yaml:"non_empty,omitempty"`
	// choice
	Options []Field `yaml:"options,omitempty"`
	// ref
	Ref string `yaml:"ref,omitempty"`
}

// Field is a named sequence field or choice alternative.
type Field struct {
	Name     string `yaml:"name"`
	Optional bool   `yaml:"optional,omitempty"`
	Node     `yaml:",inline"`
}

// Tag is a tagging applied to a node. In a document it is either a bare
// number (context-specific, explicit) or a mapping with class, number and
// implicit keys.
type Tag struct {
	Class    string `yaml:"class,omitempty"`
	Number   uint32 `yaml:"number"`
	Implicit bool   `yaml:"implicit,omitempty"`
}

// UnmarshalYAML accepts the bare number shorthand.
func (t *Tag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = Tag{}
		return value.Decode(&t.Number)
	}
	type plain Tag
	return value.Decode((*plain)(t))
}

// Parse reads a schema document. Unknown keys are rejected. A bare
// "kind: null" names the null kind.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrSchema)
	}
	if quoteNullKinds(root.Content[0]) {
		quoted, err := yaml.Marshal(&root)
		if nil != err {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		data = quoted
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrSchema)
		}
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if len(doc.Types) == 0 {
		return nil, fmt.Errorf("%w: no types defined", ErrSchema)
	}
	return &doc, nil
}

// quoteNullKinds turns every "kind" value that YAML resolved to null into
// the string "null", walking the types mapping and the nodes nested in
// fields, options and elem. It reports whether anything changed.
func quoteNullKinds(root *yaml.Node) bool {
	types := mappingValue(root, "types")
	if types == nil || types.Kind != yaml.MappingNode {
		return false
	}
	changed := false
	for i := 1; i < len(types.Content); i += 2 {
		if quoteNullKind(types.Content[i]) {
			changed = true
		}
	}
	return changed
}

func quoteNullKind(n *yaml.Node) bool {
	if n == nil || n.Kind != yaml.MappingNode {
		return false
	}
	changed := false
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, item := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "kind":
			if item.Kind == yaml.ScalarNode && item.ShortTag() == "!!null" && item.Value != "" {
				item.Tag = "!!str"
				item.Value = KIND_NULL
				item.Style = yaml.DoubleQuotedStyle
				changed = true
			}
		case "elem":
			if quoteNullKind(item) {
				changed = true
			}
		case "fields", "options":
			if item.Kind != yaml.SequenceNode {
				continue
			}
			for _, child := range item.Content {
				if quoteNullKind(child) {
					changed = true
				}
			}
		}
	}
	return changed
}

func mappingValue(n *yaml.Node, name string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == name {
			return n.Content[i+1]
		}
	}
	return nil
}

// Schema is a compiled document. It is read-only and safe for concurrent
// use.
type Schema struct {
	types map[string]der.Type
	kinds map[string]string
}

// Compile builds the descriptor graph of every type in the document. A nil
// logger disables logging.
func (d *Document) Compile(logger *slog.Logger) (*Schema, error) {
	s := &Schema{
		types: make(map[string]der.Type, len(d.Types)),
		kinds: make(map[string]string, len(d.Types)),
	}
	c := &compiler{doc: d, schema: s}
	if err := d.checkCycles(); nil != err {
		return nil, err
	}

	for _, name := range sortedNames(d.Types) {
		node := d.Types[name]
		if node == nil {
			return nil, fmt.Errorf("%w: type %s is empty", ErrSchema, name)
		}
		t, err := c.compile(node)
		if nil != err {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		s.types[name] = t
		s.kinds[name] = node.Kind
		if logger != nil {
			logger.Debug("compiled type", "name", name, "kind", node.Kind, "tagged", node.Tag != nil)
		}
	}
	return s, nil
}

// Type returns the descriptor of the named type.
func (s *Schema) Type(name string) (der.Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Kind returns the node kind of the named type, or "" when it is undefined.
func (s *Schema) Kind(name string) string {
	return s.kinds[name]
}

// Names returns the defined type names in sorted order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode returns the DER encoding of v as the named type.
func (s *Schema) Encode(name string, v any) ([]byte, error) {
	t, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return der.Encode(v, t)
}

func sortedNames(m map[string]*Node) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type compiler struct {
	doc    *Document
	schema *Schema
}

func (c *compiler) compile(n *Node) (der.Type, error) {
	t, err := c.compileBase(n)
	if nil != err {
		return nil, err
	}
	if n.Tag == nil {
		return t, nil
	}
	class, err := parseClass(n.Tag.Class)
	if nil != err {
		return nil, err
	}
	if n.Tag.Implicit {
		return der.Implicit(class, n.Tag.Number, t), nil
	}
	return der.Explicit(class, n.Tag.Number, t), nil
}

func (c *compiler) compileBase(n *Node) (der.Type, error) {
	switch n.Kind {
	case KIND_INT:
		size, err := integerSize(n.Size)
		if nil != err {
			return nil, err
		}
		return &der.Int{Size: size}, nil

	case KIND_UINT:
		size, err := integerSize(n.Size)
		if nil != err {
			return nil, err
		}
		return &der.Uint{Size: size}, nil

	case KIND_ENUMERATED:
		size, err := integerSize(n.Size)
		if nil != err {
			return nil, err
		}
		return der.Implicit(der.UNIVERSAL, der.TAG_ENUMERATED, &der.Int{Size: size}), nil

	case KIND_IMMEDIATE:
		return &der.Immediate{Value: n.Value}, nil

	case KIND_BOOLEAN:
		return der.Boolean, nil

	case KIND_NULL:
		return der.Null, nil

	case KIND_TIME:
		return der.GeneralizedTime, nil

	case KIND_OID:
		return objectIdentifier, nil

	case KIND_STRING:
		number := n.Number
		if number == 0 {
			number = der.TAG_OCTET_STRING
		}
		if n.Hex {
			return countedString(&der.String{Number: number, Encode: der.EncodeHexOctets}, true), nil
		}
		return countedString(&der.String{Number: number, Encode: der.EncodeOctets}, false), nil

	case KIND_BITSTRING:
		if n.Hex {
			return countedString(&der.String{Number: der.TAG_BIT_STRING, Encode: encodeHexBits}, true), nil
		}
		return countedString(der.BitString, false), nil

	case KIND_DER:
		return rawDER, nil

	case KIND_SEQUENCE:
		return c.compileSequence(n)

	case KIND_SEQUENCE_OF:
		if n.Elem == nil {
			return nil, fmt.Errorf("%w: sequence-of without elem", ErrSchema)
		}
		elem, err := c.compile(n.Elem)
		if nil != err {
			return nil, fmt.Errorf("elem: %w", err)
		}
		if n.Terminated || n.NonEmpty {
			return der.NullTerminated[any](elem, n.NonEmpty), nil
		}
		return der.CountedField(der.CountedSliceOf[any](elem),
			func(s []any) int { return len(s) },
			func(s []any) []any { return s }), nil

	case KIND_CHOICE:
		return c.compileChoice(n)

	case KIND_REF:
		if _, ok := c.doc.Types[n.Ref]; !ok {
			return nil, fmt.Errorf("%w: unknown ref %q", ErrSchema, n.Ref)
		}
		return c.reference(n.Ref), nil

	case "":
		return nil, fmt.Errorf("%w: missing kind", ErrSchema)

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrSchema, n.Kind)
	}
}

func (c *compiler) compileSequence(n *Node) (der.Type, error) {
	var (
		fields   = make([]der.Type, len(n.Fields))
		optional = make(map[int]string)
		seen     = make(map[string]bool, len(n.Fields))
	)
	for i := range n.Fields {
		f := &n.Fields[i]
		if err := checkName(f.Name, seen); nil != err {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		t, err := c.compile(&f.Node)
		if nil != err {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		name := f.Name
		if f.Kind == KIND_IMMEDIATE {
			// Constants are not read from the value.
			fields[i] = der.Field(t, func(m map[string]any) any { return m })
		} else {
			fields[i] = der.Field(t, func(m map[string]any) any { return m[name] })
		}
		if f.Optional {
			optional[i] = name
		}
	}

	seq := &der.Sequence{Fields: fields}
	if len(optional) > 0 {
		seq.Absent = func(v any) der.FieldSet {
			var absent der.FieldSet
			m, _ := v.(map[string]any)
			for i, name := range optional {
				if m[name] == nil {
					absent.Add(i)
				}
			}
			return absent
		}
	}
	return seq, nil
}

func (c *compiler) compileChoice(n *Node) (der.Type, error) {
	if len(n.Options) == 0 {
		return nil, fmt.Errorf("%w: choice without options", ErrSchema)
	}
	var (
		options = make([]der.Type, len(n.Options))
		index   = make(map[string]int, len(n.Options))
		seen    = make(map[string]bool, len(n.Options))
	)
	for i := range n.Options {
		o := &n.Options[i]
		if err := checkName(o.Name, seen); nil != err {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		t, err := c.compile(&o.Node)
		if nil != err {
			return nil, fmt.Errorf("option %s: %w", o.Name, err)
		}
		options[i] = t
		index[o.Name] = i
	}

	// The value is a mapping with a single key naming the alternative.
	// Other shapes report a negative index, which the encoder rejects as
	// malformed; an unknown name reports one past the last alternative.
	return der.CountedField(&der.Choice{Options: options},
		func(v any) int {
			m, ok := v.(map[string]any)
			if !ok || len(m) != 1 {
				return -1
			}
			for name := range m {
				if i, ok := index[name]; ok {
					return i
				}
			}
			return len(options)
		},
		func(v any) any {
			m, _ := v.(map[string]any)
			for _, item := range m {
				return item
			}
			return nil
		}), nil
}

// reference resolves name when it is encoded, so types may refer to
// themselves or to types compiled later.
func (c *compiler) reference(name string) der.Type {
	types := c.schema.types
	return &der.Func{
		Encode: func(b *asn1buf.Buffer, v any) (der.Tag, error) {
			return der.EncodeType(b, v, types[name])
		},
	}
}

// checkCycles rejects types that reach themselves through refs alone. Such
// a chain never consumes any of the value being encoded.
func (d *Document) checkCycles() error {
	for _, name := range sortedNames(d.Types) {
		seen := map[string]bool{name: true}
		for node := d.Types[name]; node != nil && node.Kind == KIND_REF; node = d.Types[node.Ref] {
			if seen[node.Ref] {
				return fmt.Errorf("%w: type %s: reference cycle through %s", ErrSchema, name, node.Ref)
			}
			seen[node.Ref] = true
		}
	}
	return nil
}

func checkName(name string, seen map[string]bool) error {
	if name == "" {
		return fmt.Errorf("%w: missing name", ErrSchema)
	}
	if seen[name] {
		return fmt.Errorf("%w: duplicate name %q", ErrSchema, name)
	}
	seen[name] = true
	return nil
}

func integerSize(size int) (int, error) {
	switch size {
	case 0:
		return 8, nil
	case 1, 2, 4, 8:
		return size, nil
	}
	return 0, fmt.Errorf("%w: integer size %d", ErrSchema, size)
}

func parseClass(class string) (der.Class, error) {
	switch strings.ToLower(class) {
	case "", "context", "context-specific":
		return der.CONTEXT_SPECIFIC, nil
	case "universal":
		return der.UNIVERSAL, nil
	case "application":
		return der.APPLICATION, nil
	case "private":
		return der.PRIVATE, nil
	}
	return 0, fmt.Errorf("%w: tag class %q", ErrSchema, class)
}

// countedString counts the octets of a string or []byte value. Hex strings
// count their decoded octets.
func countedString(base der.CountedType, hexText bool) *der.Counted {
	return der.CountedField(base,
		func(v any) int {
			switch x := v.(type) {
			case string:
				if hexText {
					return len(x) / 2
				}
				return len(x)
			case []byte:
				return len(x)
			}
			return 0
		},
		func(v any) any { return v })
}

func encodeHexBits(b *asn1buf.Buffer, data any, count int) (int, error) {
	if text, ok := data.(string); ok {
		blob, err := hex.DecodeString(text)
		if nil != err {
			return 0, fmt.Errorf("%w: %v", der.ErrInvalidFormat, err)
		}
		data = blob
	}
	return der.EncodeBits(b, data, count)
}

// rawBlob splices a decoded DER blob.
var rawBlob = der.CountedField(der.RawDER,
	func(b []byte) int { return len(b) },
	func(b []byte) []byte { return b })

// rawDER accepts a pre-encoded value as hex text or bytes.
var rawDER = &der.Func{
	Encode: func(b *asn1buf.Buffer, v any) (der.Tag, error) {
		if text, ok := v.(string); ok {
			blob, err := hex.DecodeString(text)
			if nil != err {
				return der.Tag{}, fmt.Errorf("%w: %v", der.ErrInvalidFormat, err)
			}
			v = blob
		}
		return der.EncodeType(b, v, rawBlob)
	},
}

// objectIdentifier also accepts a sequence of integer arcs.
var objectIdentifier = &der.Func{
	Encode: func(b *asn1buf.Buffer, v any) (der.Tag, error) {
		if arcs, ok := v.([]any); ok {
			oid := make([]int, len(arcs))
			for i, arc := range arcs {
				n, ok := arc.(int64)
				if !ok || n < 0 {
					return der.Tag{}, fmt.Errorf("%w: object identifier arc %v", der.ErrInvalidFormat, arc)
				}
				oid[i] = int(n)
			}
			v = oid
		}
		return der.EncodeType(b, v, der.ObjectIdentifier)
	},
}
