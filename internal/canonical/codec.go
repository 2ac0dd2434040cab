// Package canonical implements the deterministic JSON encoding that every
// hashed identifier and manifest digest in this service is built from.
//
// It is the one path to hashed bytes: other packages never sort map keys
// or format numbers themselves, they call Marshal and hash the result.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// EncodingError is returned when a value cannot be canonicalized: it is not
// JSON-representable, or it contains a float in a region that will be
// hashed. It is always a producer bug, never a runtime condition to retry.
type EncodingError struct {
	Path   string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("canonical: %s", e.Reason)
	}
	return fmt.Sprintf("canonical: at %s: %s", e.Path, e.Reason)
}

// Marshal encodes v into canonical bytes: object keys sorted by Unicode
// code-point ascending at every level, arrays keep input order but their
// elements are recursively canonicalized, no insignificant whitespace, no
// floats, no BOM, no trailing newline. Accepts the JSON-compatible subset of
// Go values: nil, bool, string, json.Number/int/int64/float64(integral),
// []interface{}, map[string]interface{}, or any value that round-trips
// through encoding/json into that subset (structs with json tags, etc).
func Marshal(v interface{}) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return encode(norm, "$")
}

// MarshalExcluding canonicalizes v after removing the named top-level keys.
// It is used to compute digests that must be stable across changes to
// purely informational fields (e.g. a manifest's createdAt).
func MarshalExcluding(v interface{}, excludeKeys ...string) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	m, ok := norm.(map[string]interface{})
	if !ok {
		return nil, &EncodingError{Reason: "MarshalExcluding requires an object at the top level"}
	}
	excl := make(map[string]struct{}, len(excludeKeys))
	for _, k := range excludeKeys {
		excl[k] = struct{}{}
	}
	filtered := make(map[string]interface{}, len(m))
	for k, val := range m {
		if _, skip := excl[k]; skip {
			continue
		}
		filtered[k] = val
	}
	return encode(filtered, "$")
}

// normalize round-trips v through encoding/json so that structs, typed
// maps, and friends become the plain interface{} tree writeValue
// already knows how to walk. json.Number is preserved so integers are never
// misread as float64.
func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		v = []byte(raw)
	}
	if b, ok := v.([]byte); ok {
		var out interface{}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, &EncodingError{Reason: fmt.Sprintf("not valid JSON: %v", err)}
		}
		return out, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodingError{Reason: fmt.Sprintf("value is not JSON-representable: %v", err)}
	}
	var out interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, &EncodingError{Reason: fmt.Sprintf("round-trip decode failed: %v", err)}
	}
	return out, nil
}

// encode walks the normalized tree and writes canonical bytes directly,
// rather than handing back off to encoding/json.Marshal (whose map
// iteration order and number formatting we cannot fully control).
func encode(v interface{}, path string) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, path); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v interface{}, path string) error {
	switch vv := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if vv {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		writeString(buf, vv)
		return nil
	case json.Number:
		return writeNumber(buf, vv, path)
	case float64:
		// Reached only if the caller handed us a bare float64 that didn't
		// go through normalize's UseNumber decoder (e.g. nested inside a
		// map built by hand at encode time). Integral floats are accepted
		// as integers; fractional floats are forbidden.
		if vv != float64(int64(vv)) {
			return &EncodingError{Path: path, Reason: "floating-point values are forbidden in hashed regions"}
		}
		buf.WriteString(fmt.Sprintf("%d", int64(vv)))
		return nil
	case map[string]interface{}:
		return writeObject(buf, vv, path)
	case []interface{}:
		return writeArray(buf, vv, path)
	default:
		return &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// writeObject emits every key present in m, sorted, including keys whose
// value is a literal JSON null. "Undefined/missing" is not a value this
// function ever sees: normalize() round-trips through
// encoding/json, so a field a producer wants omitted must never be placed
// in the map (or must carry `json:"...,omitempty"` on its source struct) -
// by the time writeObject walks the tree, every present key is real.
func writeObject(buf *bytes.Buffer, m map[string]interface{}, path string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !utf8.ValidString(k) {
			return &EncodingError{Path: path, Reason: "object key is not valid UTF-8"}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys) // Unicode code-point ascending == byte-wise for valid UTF-8.

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := writeValue(buf, m[k], fmt.Sprintf("%s.%s", path, k)); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr []interface{}, path string) error {
	buf.WriteByte('[')
	for i, el := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, el, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeNumber(buf *bytes.Buffer, n json.Number, path string) error {
	s := n.String()
	if bytes.ContainsAny([]byte(s), ".eE") {
		return &EncodingError{Path: path, Reason: fmt.Sprintf("floating-point value %q is forbidden in hashed regions", s)}
	}
	buf.WriteString(s)
	return nil
}

// writeString emits a JSON string literal using the same escape set the
// standard library's encoder uses (by default encoding/json escapes '<',
// '>' and '&' for HTML safety; we disable that so escaping is byte-stable
// across callers that may or may not be embedding in HTML). U+2028 and
// U+2029 are still escaped, as encoding/json always does.
func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // encoding/json cannot fail on a string
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
}
