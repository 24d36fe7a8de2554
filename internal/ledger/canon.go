package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// CanonicalJSON renders v as canonical JSON: UTF-8, no BOM, map keys sorted
// lexicographically by codepoint (recursively), no insignificant whitespace,
// and NaN/Infinity rejected. Arrays preserve their original order.
//
// v must already be JSON-shaped data — the output of json.Unmarshal into
// map[string]any/[]any/string/float64/bool/nil, or an equivalent tree built
// by hand. Passing a Go struct directly will not canonicalize nested map
// ordering, since structs already have a fixed field order; marshal to
// map[string]any first if the source was a struct.
func CanonicalJSON(v any) ([]byte, error) {
	sorted, err := sortValue(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sorted); err != nil {
		return nil, fmt.Errorf("canon: encode: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; canonical form has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sortValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(val))
		for _, k := range keys {
			sv, err := sortValue(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kv{k, sv})
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			sv, err := sortValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("canon: NaN/Infinity not allowed")
		}
		return val, nil
	default:
		return val, nil
	}
}

// kv is a single canonical-order key/value pair.
type kv struct {
	Key   string
	Value any
}

// orderedMap marshals as a JSON object preserving insertion order, letting
// sortValue emit lexicographically-sorted keys without map re-randomization.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pair := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalNoHTMLEscape(pair.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := marshalNoHTMLEscape(pair.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoHTMLEscape marshals v the way CanonicalJSON's top-level encoder
// does, so nested values reached through orderedMap.MarshalJSON don't pick
// up encoding/json's default HTML-escaping of < > & (which canonical JSON
// forbids: only control characters get \uXXXX escapes).
func marshalNoHTMLEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
