package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Field is a single decoded form field
type Field struct {
	Key   string
	Value string
}

// Fields is an ordered mapping from field name to value. Setting an existing
// key replaces its value but keeps the position of the first occurrence.
//
// Values read back from a store that are not JSON strings are kept verbatim in
// raw and written out unchanged.
type Fields struct {
	pairs []Field
	raw   map[string]json.RawMessage
}

// NewFields builds Fields from key/value pairs given as alternating strings
func NewFields(kv ...string) Fields {
	var f Fields
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

// Set assigns value to key
func (f *Fields) Set(key, value string) {
	if _, ok := f.raw[key]; ok {
		// Copies of f share the map.
		f.raw = maps.Clone(f.raw)
		delete(f.raw, key)
	}
	f.put(key, value)
}

func (f *Fields) put(key, value string) {
	for i := range f.pairs {
		if f.pairs[i].Key == key {
			f.pairs[i].Value = value
			return
		}
	}
	f.pairs = append(f.pairs, Field{Key: key, Value: value})
}

// Get returns the value stored for key
func (f Fields) Get(key string) (string, bool) {
	for _, p := range f.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Len returns the number of distinct keys
func (f Fields) Len() int {
	return len(f.pairs)
}

// Pairs returns a copy of the fields in insertion order
func (f Fields) Pairs() []Field {
	out := make([]Field, len(f.pairs))
	copy(out, f.pairs)
	return out
}

// Map returns the fields as an unordered map
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f.pairs))
	for _, p := range f.pairs {
		m[p.Key] = p.Value
	}
	return m
}

// MarshalJSON encodes the fields as a JSON object in insertion order
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range f.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := WriteJSONString(&buf, p.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if raw, ok := f.raw[p.Key]; ok {
			buf.Write(raw)
			continue
		}
		if err := WriteJSONString(&buf, p.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. Non-string values are
// preserved as raw JSON and reported by Get and Pairs in their JSON text form.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields must be a JSON object, got %v", tok)
	}

	var out Fields
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}

		if raw[0] == '"' {
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			out.Set(key, value)
			continue
		}

		if out.raw == nil {
			out.raw = make(map[string]json.RawMessage)
		}
		out.raw[key] = raw
		out.put(key, string(raw))
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}

// WriteJSONString writes s as a JSON string literal without escaping HTML
// characters or U+2028/U+2029, so values round-trip to disk as the user typed
// them.
func WriteJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Write(unescapeLineSeparators(bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes that encoding/json
// always emits back into the literal characters.
func unescapeLineSeparators(lit []byte) []byte {
	if !bytes.Contains(lit, []byte(`\u202`)) {
		return lit
	}

	out := make([]byte, 0, len(lit))
	for i := 0; i < len(lit); i++ {
		if lit[i] != '\\' || i+1 >= len(lit) {
			out = append(out, lit[i])
			continue
		}
		if lit[i+1] == 'u' && i+5 < len(lit) && string(lit[i+2:i+5]) == "202" && (lit[i+5] == '8' || lit[i+5] == '9') {
			if lit[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// Any other escape is copied whole so an escaped backslash is never
		// mistaken for the start of a \u sequence.
		out = append(out, lit[i], lit[i+1])
		i++
	}
	return out
}
