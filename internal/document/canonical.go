package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for a document, following
// RFC 8785 conventions:
//
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Floats use the shortest round-trippable representation
//
// Unlike strict RFC 8785, floats and null are permitted: event data carries
// floating-point readings and metadata values may be absent. Times are
// encoded as RFC 3339 nanosecond strings in UTC.
//
// This is the only serialization used for content hashing, golden trace
// comparison, and broker storage. The output round-trips through
// encoding/json back into the document structs (see Decode).
func MarshalCanonical(doc Document) ([]byte, error) {
	m, err := docMap(doc)
	if err != nil {
		return nil, err
	}
	out, err := marshalValue(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", doc.Kind(), err)
	}
	return out, nil
}

// docMap converts a document to a generic map via explicit per-kind
// traversal. Optional fields are omitted when empty so that canonical
// output matches the struct json tags.
func docMap(doc Document) (map[string]any, error) {
	switch d := doc.(type) {
	case *RunStart:
		m := map[string]any{
			"uid":  d.UID,
			"time": d.Time,
		}
		if len(d.Metadata) > 0 {
			m["metadata"] = d.Metadata
		}
		return m, nil

	case *Descriptor:
		keys := make(map[string]any, len(d.DataKeys))
		for name, dk := range d.DataKeys {
			keys[name] = dataKeyMap(dk)
		}
		return map[string]any{
			"uid":       d.UID,
			"run_id":    d.RunID,
			"name":      d.Name,
			"time":      d.Time,
			"data_keys": keys,
		}, nil

	case *Event:
		ts := make(map[string]any, len(d.Timestamps))
		for name, t := range d.Timestamps {
			ts[name] = t
		}
		data := make(map[string]any, len(d.Data))
		for name, v := range d.Data {
			data[name] = v
		}
		return map[string]any{
			"uid":        d.UID,
			"run_id":     d.RunID,
			"descriptor": d.Descriptor,
			"time":       d.Time,
			"seq_num":    d.SeqNum,
			"data":       data,
			"timestamps": ts,
		}, nil

	case *RunStop:
		m := map[string]any{
			"uid":         d.UID,
			"run_id":      d.RunID,
			"time":        d.Time,
			"exit_status": string(d.ExitStatus),
		}
		if d.Reason != "" {
			m["reason"] = d.Reason
		}
		if len(d.NumEvents) > 0 {
			ne := make(map[string]any, len(d.NumEvents))
			for name, n := range d.NumEvents {
				ne[name] = n
			}
			m["num_events"] = ne
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported document type: %T", doc)
	}
}

func dataKeyMap(dk DataKey) map[string]any {
	m := map[string]any{
		"dtype":  dk.Dtype,
		"source": dk.Source,
	}
	if len(dk.Shape) > 0 {
		shape := make([]any, len(dk.Shape))
		for i, n := range dk.Shape {
			shape[i] = n
		}
		m["shape"] = shape
	}
	return m
}

func marshalValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return marshalString(val)
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case float64:
		return marshalFloat(val)
	case float32:
		return marshalFloat(float64(val))
	case time.Time:
		return marshalString(val.UTC().Format(time.RFC3339Nano))
	case []any:
		return marshalArray(val)
	case map[string]any:
		return marshalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalFloat uses the shortest representation that round-trips, matching
// encoding/json output for finite values. NaN and infinities are rejected
// because they have no JSON encoding.
func marshalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float has no JSON encoding: %v", f)
	}
	return json.Marshal(f)
}

// marshalString produces a canonical JSON string with NFC normalization.
// Only control characters (U+0000-U+001F), backslash, and quote are escaped;
// < > & pass through unescaped.
func marshalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder appends a trailing newline
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

func marshalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sortKeysUTF16(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("object key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortKeysUTF16 sorts keys by their UTF-16 code unit sequence per RFC 8785.
// This differs from byte ordering only for strings containing supplementary
// plane characters, but the difference matters for cross-language stability.
func sortKeysUTF16(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a := utf16.Encode([]rune(keys[i]))
		b := utf16.Encode([]rune(keys[j]))
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}
