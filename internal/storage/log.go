package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skypro1111/form-relay-service/internal/form"
)

// timestampLayout matches the default string form of a local datetime:
// microsecond precision, with the fraction dropped when it is zero.
const (
	timestampLayout      = "2006-01-02 15:04:05.000000"
	timestampLayoutWhole = "2006-01-02 15:04:05"
)

// Entry is one persisted submission keyed by its receive time
type Entry struct {
	Timestamp string
	Fields    form.Fields
}

// NewEntry stamps fields with the given receive time
func NewEntry(at time.Time, fields form.Fields) Entry {
	return Entry{Timestamp: FormatTimestamp(at), Fields: fields}
}

// FormatTimestamp renders t as a store key
func FormatTimestamp(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(timestampLayoutWhole)
	}
	return t.Format(timestampLayout)
}

// Log is the ordered content of a store: timestamp keys in file order
type Log struct {
	entries []Entry
}

// NewLog returns an empty log
func NewLog() *Log {
	return &Log{}
}

// Len returns the number of entries
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the entries in order
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Get returns the fields stored under timestamp
func (l *Log) Get(timestamp string) (form.Fields, bool) {
	for _, e := range l.entries {
		if e.Timestamp == timestamp {
			return e.Fields, true
		}
	}
	return form.Fields{}, false
}

// put replaces the fields of an existing key in place or appends a new one
func (l *Log) put(e Entry) {
	for i := range l.entries {
		if l.entries[i].Timestamp == e.Timestamp {
			l.entries[i].Fields = e.Fields
			return
		}
	}
	l.entries = append(l.entries, e)
}

// Merge builds the log written after a submission: the new entry first, then
// every existing entry laid over it. When the new timestamp already exists the
// existing entry's fields win and the new submission is discarded.
func Merge(entry Entry, existing *Log) *Log {
	merged := &Log{entries: make([]Entry, 0, existing.Len()+1)}
	merged.put(entry)
	for _, e := range existing.entries {
		merged.put(e)
	}
	return merged
}

// MarshalJSON encodes the log as a single JSON object in entry order
func (l *Log) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range l.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := form.WriteJSONString(&buf, e.Timestamp); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		fields, err := e.Fields.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Timestamp, err)
		}
		buf.Write(fields)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of submissions, keeping key order
func (l *Log) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("store must hold a JSON object, got %v", tok)
	}

	out := Log{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		timestamp, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}

		var fields form.Fields
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("entry %s: %w", timestamp, err)
		}
		out.put(Entry{Timestamp: timestamp, Fields: fields})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*l = out
	return nil
}

// Encode renders the log in its on-disk layout: four-space indentation,
// non-ASCII and HTML characters written literally, no trailing newline.
func (l *Log) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(l); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
