// Package value reads the documents holding values to encode. A value
// document is YAML, JSON with comments, or CBOR; all three decode to the same
// generic shape so that one schema serves every format:
//
//   - mappings become map[string]any
//   - sequences become []any
//   - integers become int64, or uint64 when above math.MaxInt64
//   - byte strings (CBOR only) stay []byte
//   - booleans, strings, floats and times keep their decoded Go type
package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format names a value document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ErrUnknownFormat is returned for a format name or file extension that does
// not map to a Format.
var ErrUnknownFormat = errors.New("unknown value format")

var decMode cbor.DecMode

func init() {
	var err error
	decMode, err = cbor.DecOptions{
		// Value documents only use string keys; any-typed targets get
		// map[string]any instead of the CBOR default map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("value: CBOR decoder initialization failed: " + err.Error())
	}
}

// ParseFormat returns the Format named by s. The empty string selects YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json", "jsonc":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks a Format from the extension of path.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Load reads and decodes the value document at path.
func Load(path string, format Format) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading value file %s: %w", path, err)
	}
	v, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Decode parses data in format and normalizes the result.
func Decode(data []byte, format Format) (any, error) {
	var v any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parsing YAML value: %w", err)
		}
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.UseNumber()
		if err := decoder.Decode(&v); err != nil {
			return nil, fmt.Errorf("parsing JSON value: %w", err)
		}
	case FormatCBOR:
		if err := decMode.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parsing CBOR value: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return Normalize(v)
}

// Normalize converts a decoded document to the generic shape described in
// the package documentation.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for key, item := range x {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			x[key] = n
		}
		return x, nil

	case map[any]any:
		m := make(map[string]any, len(x))
		for key, item := range x {
			name, ok := key.(string)
			if !ok {
				name = fmt.Sprint(key)
			}
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			m[name] = n
		}
		return m, nil

	case []any:
		for i, item := range x {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			x[i] = n
		}
		return x, nil

	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		if n, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", x, err)
		}
		return f, nil

	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return unsigned(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return unsigned(x), nil
	}
	return v, nil
}

func unsigned(x uint64) any {
	if x > math.MaxInt64 {
		return x
	}
	return int64(x)
}
