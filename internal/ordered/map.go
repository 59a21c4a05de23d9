// Package ordered provides a string-keyed map that remembers insertion order.
//
// Query result rows and report rows are exchanged as JSON objects whose key
// order is meaningful (it is the fallback column order), so they cannot be
// held in a plain Go map.
package ordered

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Map is an insertion-ordered map. The zero value is ready to use.
type Map struct {
	keys   []string
	values map[string]any
}

// New returns an empty map.
func New() *Map {
	return &Map{values: make(map[string]any)}
}

// FromPairs builds a map from alternating key/value arguments.
func FromPairs(kv ...any) *Map {
	m := New()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return m
}

// FromMap copies a plain map in the given key order; keys missing from order
// are appended in unspecified order.
func FromMap(src map[string]any, order ...string) *Map {
	m := New()
	for _, k := range order {
		if v, ok := src[k]; ok {
			m.Set(k, v)
		}
	}
	for k, v := range src {
		if !m.Has(k) {
			m.Set(k, v)
		}
	}
	return m
}

// Set stores v under k. Existing keys keep their position.
func (m *Map) Set(k string, v any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

func (m *Map) Get(k string) (any, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}
	v, ok := m.values[k]
	return v, ok
}

func (m *Map) Has(k string) bool {
	_, ok := m.Get(k)
	return ok
}

func (m *Map) Delete(k string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	for i, key := range m.keys {
		if key == k {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(k string, v any) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy; nested maps and slices are copied too.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := New()
	for _, k := range m.keys {
		out.Set(k, cloneValue(m.values[k]))
	}
	return out
}

// CloneValue deep-copies maps and slices nested in v.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Map:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case []*Map:
		out := make([]*Map, len(val))
		for i := range val {
			out[i] = val[i].Clone()
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// ToMap flattens the map (recursively) into plain Go maps.
func (m *Map) ToMap() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = plain(m.values[k])
	}
	return out
}

func plain(v any) any {
	switch val := v.(type) {
	case *Map:
		return val.ToMap()
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = plain(val[i])
		}
		return out
	case []*Map:
		out := make([]any, len(val))
		for i := range val {
			out[i] = val[i].ToMap()
		}
		return out
	default:
		return v
	}
}

// String returns the value under k formatted for display; missing and nil
// values give "".
func (m *Map) String(k string) string {
	v, ok := m.Get(k)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// MarshalJSON writes the entries in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping key order. Nested objects become
// *Map, arrays []any, and numbers int64 when integral or float64 otherwise.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("ordered: expected object, got %v", tok)
	}
	decoded, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

func decodeObject(dec *json.Decoder) (*Map, error) {
	out := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("ordered: expected key, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("ordered: unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		return t, nil
	}
}
