package schema

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/thebagchi/asn1der-go/lib/der"
	"github.com/thebagchi/asn1der-go/lib/value"
)

func compileFile(t *testing.T, name string) *Schema {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testing", name))
	if err != nil {
		t.Fatalf("Failed to read schema file: %v", err)
	}
	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	s, err := doc.Compile(nil)
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	return s
}

// ENCODE represents a single schema encode test case from the JSON file
type ENCODE struct {
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value"`
	Output string          `json:"output"`
}

func loadCases(t *testing.T) []ENCODE {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testing", "encode.json"))
	if err != nil {
		t.Fatalf("Failed to read test data file: %v", err)
	}
	var tests []ENCODE
	if err := json.Unmarshal(data, &tests); err != nil {
		t.Fatalf("Failed to parse test data: %v", err)
	}
	return tests
}

func TestEncode(t *testing.T) {
	s := compileFile(t, "kerberos.yaml")

	for _, tc := range loadCases(t) {
		name := strings.ToUpper(strings.ReplaceAll(tc.Name, " ", "_"))
		t.Run(name, func(t *testing.T) {
			v, err := value.Decode(tc.Value, value.FormatJSON)
			if err != nil {
				t.Fatalf("Failed to decode value: %v", err)
			}
			result, err := s.Encode(tc.Type, v)
			if err != nil {
				t.Fatalf("Encode(%s) failed: %v", tc.Type, err)
			}
			if got := hex.EncodeToString(result); got != tc.Output {
				t.Errorf("Encode(%s) = %s, expected %s", tc.Type, got, tc.Output)
			}
		})
	}
}

func TestEncodeConcurrent(t *testing.T) {
	s := compileFile(t, "kerberos.yaml")
	tests := loadCases(t)

	values := make([]any, len(tests))
	for i, tc := range tests {
		v, err := value.Decode(tc.Value, value.FormatJSON)
		if err != nil {
			t.Fatalf("Failed to decode value: %v", err)
		}
		values[i] = v
	}

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 20; round++ {
				for i, tc := range tests {
					result, err := s.Encode(tc.Type, values[i])
					if err != nil || hex.EncodeToString(result) != tc.Output {
						t.Errorf("%s: concurrent encode = %x, %v", tc.Name, result, err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestEncodeYAMLValue(t *testing.T) {
	s := compileFile(t, "kerberos.yaml")
	v, err := value.Decode([]byte(`
realm: EXAMPLE.COM
sname:
  name-type: 1
  name-string: [krbtgt, EXAMPLE.COM]
`), value.FormatYAML)
	if err != nil {
		t.Fatalf("Failed to decode value: %v", err)
	}
	result, err := s.Encode("Ticket", v)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	expected := "3036a003020105a10d1b0b4558414d504c452e434f4da220" +
		"301ea003020101a11730151b066b72627467741b0b4558414d504c452e434f4d"
	if got := hex.EncodeToString(result); got != expected {
		t.Errorf("Encode() = %s, expected %s", got, expected)
	}
}

func TestEncodeErrors(t *testing.T) {
	s := compileFile(t, "kerberos.yaml")

	test := func(typ, input string, expected error) {
		t.Run(typ+"_"+input, func(t *testing.T) {
			v, err := value.Decode([]byte(input), value.FormatJSON)
			if err != nil {
				t.Fatalf("Failed to decode value: %v", err)
			}
			if _, err := s.Encode(typ, v); !errors.Is(err, expected) {
				t.Errorf("Encode(%s, %s) error = %v, expected %v", typ, input, err, expected)
			}
		})
	}
	test("Ticket", `{"realm": "EXAMPLE.COM"}`, der.ErrMissingField)
	test("Ticket", `{"realm": 7, "sname": {"name-type": 1, "name-string": []}}`, der.ErrInvalidFormat)
	test("Ticket", `{"realm": "R", "sname": {"name-type": 1, "name-string": []}, "endtime": 1e300}`, der.ErrInvalidFormat)
	test("PrincipalName", `[1, 2]`, der.ErrInvalidFormat)
	test("PrincipalOrRealm", `{"bogus": "x"}`, der.ErrMissingField)
	test("PrincipalOrRealm", `{"realm": "A", "principal": {}}`, der.ErrInvalidFormat)
	test("PrincipalOrRealm", `"EXAMPLE.COM"`, der.ErrInvalidFormat)
	test("NonEmptyAddresses", `[null]`, der.ErrMissingField)
	test("Blob", `"0201"`, der.ErrInvalidFormat)
	test("Blob", `"zz"`, der.ErrInvalidFormat)
	test("TicketFlags", `"abc"`, der.ErrInvalidFormat)
	test("Algorithm", `[1, -2]`, der.ErrInvalidFormat)
	test("KerberosTime", `"yesterday"`, der.ErrBadTime)
	test("KerberosTime", `253402300800`, der.ErrBadTime)

	if _, err := s.Encode("Missing", int64(1)); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Encode(Missing) error = %v, expected ErrUnknownType", err)
	}
	if _, err := s.Encode("Int32", nil); !errors.Is(err, der.ErrMissingField) {
		t.Errorf("Encode(Int32, nil) error = %v, expected ErrMissingField", err)
	}
}

func TestNames(t *testing.T) {
	s := compileFile(t, "kerberos.yaml")
	names := s.Names()
	if len(names) == 0 || names[0] != "Algorithm" || names[len(names)-1] != "UInt32" {
		t.Errorf("Names() = %v", names)
	}
	if s.Kind("Ticket") != KIND_SEQUENCE || s.Kind("Missing") != "" {
		t.Errorf("Kind() = %q, %q", s.Kind("Ticket"), s.Kind("Missing"))
	}
	if typ, ok := s.Type("Int32"); !ok || typ.Kind() != der.KindInt {
		t.Errorf("Type(Int32) = %v, %v", typ, ok)
	}
	if _, ok := s.Type("Missing"); ok {
		t.Errorf("Type(Missing) found")
	}
}

func TestTagForms(t *testing.T) {
	test := func(document string, input any, expected string) {
		t.Run(expected, func(t *testing.T) {
			doc, err := Parse([]byte(document))
			if err != nil {
				t.Fatalf("Parse() failed: %v", err)
			}
			s, err := doc.Compile(nil)
			if err != nil {
				t.Fatalf("Compile() failed: %v", err)
			}
			result, err := s.Encode("T", input)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			if got := hex.EncodeToString(result); got != expected {
				t.Errorf("Encode() = %s, expected %s", got, expected)
			}
		})
	}
	test("types: {T: {kind: int, tag: 2}}", int64(5), "a203020105")
	test("types: {T: {kind: int, tag: {number: 2, implicit: true}}}", int64(5), "820105")
	test("types: {T: {kind: int, tag: {class: private, number: 31, implicit: true}}}", int64(5), "df1f0105")
	test("types: {T: {kind: int, tag: {class: application, number: 1}}}", int64(5), "6103020105")
	test("types: {T: {kind: int, tag: {class: universal, number: 10, implicit: true}}}", int64(5), "0a0105")
	test("types: {T: {kind: immediate, value: -129}}", "ignored", "0202ff7f")
	test("types: {T: {kind: string}}", "ab", "04026162")
	test("types: {T: {kind: enumerated, size: 1}}", int64(-1), "0a01ff")
	test("types: {T: {kind: enumerated, tag: 3}}", int64(2), "a3030a0102")
}

func TestNullKind(t *testing.T) {
	test := func(description, document string) {
		t.Run(description, func(t *testing.T) {
			doc, err := Parse([]byte(document))
			if err != nil {
				t.Fatalf("Parse() failed: %v", err)
			}
			s, err := doc.Compile(nil)
			if err != nil {
				t.Fatalf("Compile() failed: %v", err)
			}
			if s.Kind("T") != KIND_NULL {
				t.Errorf("Kind(T) = %q, expected %q", s.Kind("T"), KIND_NULL)
			}
			result, err := s.Encode("S", map[string]any{"n": map[string]any{}})
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			if got := hex.EncodeToString(result); got != "3004a0020500" {
				t.Errorf("Encode() = %s, expected 3004a0020500", got)
			}
		})
	}
	test("bare", `
types:
  T:
    kind: null
  S:
    kind: sequence
    fields:
      - {name: n, tag: 0, kind: null}
`)
	test("quoted", `
types:
  T:
    kind: "null"
  S:
    kind: sequence
    fields:
      - {name: n, tag: 0, kind: 'null'}
`)
	test("tilde", "types: {T: {kind: ~}, S: {kind: sequence, fields: [{name: n, tag: 0, kind: Null}]}}")
}

func TestCompileErrors(t *testing.T) {
	test := func(description, document string) {
		t.Run(description, func(t *testing.T) {
			doc, err := Parse([]byte(document))
			if err == nil {
				_, err = doc.Compile(nil)
			}
			if !errors.Is(err, ErrSchema) {
				t.Errorf("error = %v, expected ErrSchema", err)
			}
		})
	}
	test("empty document", "")
	test("no types", "types: {}")
	test("unknown key", "types: {T: {kind: int, width: 4}}")
	test("missing kind", "types: {T: {size: 4}}")
	test("unknown kind", "types: {T: {kind: real}}")
	test("unknown ref", "types: {T: {kind: ref, ref: U}}")
	test("bad size", "types: {T: {kind: int, size: 3}}")
	test("bad class", "types: {T: {kind: int, tag: {class: global, number: 1}}}")
	test("empty choice", "types: {T: {kind: choice}}")
	test("sequence-of without elem", "types: {T: {kind: sequence-of}}")
	test("duplicate field", "types: {T: {kind: sequence, fields: [{name: a, kind: int}, {name: a, kind: int}]}}")
	test("unnamed option", "types: {T: {kind: choice, options: [{kind: int}]}}")
	test("bad nested field", "types: {T: {kind: sequence, fields: [{name: a, kind: uint, size: 16}]}}")
	test("empty type", "types: {T: }")
	test("empty kind", "types: {T: {kind: }}")
	test("ref cycle", "types: {A: {kind: ref, ref: B}, B: {kind: ref, ref: A}}")
	test("self ref", "types: {T: {kind: ref, ref: T}}")
	test("tagged self ref", "types: {T: {kind: ref, ref: T, tag: 1}}")
	test("long ref cycle", "types: {A: {kind: ref, ref: B}, B: {kind: ref, ref: C}, C: {kind: ref, ref: B}}")
	test("bad enumerated size", "types: {T: {kind: enumerated, size: 5}}")
}

func TestRecursiveRef(t *testing.T) {
	doc, err := Parse([]byte(`
types:
  List:
    kind: sequence
    fields:
      - {name: head, kind: int}
      - {name: tail, kind: ref, ref: Next, optional: true}
  Next:
    kind: ref
    ref: List
`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	s, err := doc.Compile(nil)
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	v := map[string]any{"head": int64(1), "tail": map[string]any{"head": int64(2)}}
	result, err := s.Encode("Next", v)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if got := hex.EncodeToString(result); got != "30080201013003020102" {
		t.Errorf("Encode() = %s", got)
	}
}

func TestCompileLogging(t *testing.T) {
	var output bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&output, &slog.HandlerOptions{Level: slog.LevelDebug}))

	doc, err := Parse([]byte("types: {A: {kind: int}, B: {kind: ref, ref: A}}"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if _, err := doc.Compile(logger); err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	if strings.Count(output.String(), "compiled type") != 2 {
		t.Errorf("log output = %q", output.String())
	}
	if !strings.Contains(output.String(), "name=B kind=ref") {
		t.Errorf("log output = %q", output.String())
	}
}
