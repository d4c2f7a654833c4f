package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/form-relay-service/internal/form"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{
			name: "microseconds",
			at:   time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.Local),
			want: "2024-05-01 10:00:00.123456",
		},
		{
			name: "leading zeros kept",
			at:   time.Date(2024, 5, 1, 10, 0, 0, 1000, time.Local),
			want: "2024-05-01 10:00:00.000001",
		},
		{
			name: "whole second drops fraction",
			at:   time.Date(2024, 4, 30, 9, 15, 42, 0, time.Local),
			want: "2024-04-30 09:15:42",
		},
		{
			name: "sub-microsecond counts as whole",
			at:   time.Date(2024, 4, 30, 9, 15, 42, 999, time.Local),
			want: "2024-04-30 09:15:42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.at))
		})
	}
}

func TestMergePrependsNewEntry(t *testing.T) {
	existing := NewLog()
	existing.put(Entry{Timestamp: "t2", Fields: form.NewFields("b", "2")})
	existing.put(Entry{Timestamp: "t1", Fields: form.NewFields("a", "1")})

	merged := Merge(Entry{Timestamp: "t3", Fields: form.NewFields("c", "3")}, existing)

	require.Equal(t, 3, merged.Len())
	var order []string
	for _, e := range merged.Entries() {
		order = append(order, e.Timestamp)
	}
	assert.Equal(t, []string{"t3", "t2", "t1"}, order)
	assert.Equal(t, 2, existing.Len(), "merge must not modify the existing log")
}

func TestMergeKeepsStoredEntryOnCollision(t *testing.T) {
	existing := NewLog()
	existing.put(Entry{Timestamp: "t1", Fields: form.NewFields("name", "old")})
	existing.put(Entry{Timestamp: "t0", Fields: form.NewFields("name", "older")})

	merged := Merge(Entry{Timestamp: "t1", Fields: form.NewFields("name", "new")}, existing)

	require.Equal(t, 2, merged.Len())
	fields, ok := merged.Get("t1")
	require.True(t, ok)
	name, _ := fields.Get("name")
	assert.Equal(t, "old", name)
	assert.Equal(t, "t1", merged.Entries()[0].Timestamp)
}

func TestLogJSONRoundTripKeepsOrder(t *testing.T) {
	raw := `{"b": {"x": "1"}, "a": {"y": "2", "x": "3"}}`

	var log Log
	require.NoError(t, json.Unmarshal([]byte(raw), &log))

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Timestamp)
	assert.Equal(t, "a", entries[1].Timestamp)
	assert.Equal(t, []form.Field{{Key: "y", Value: "2"}, {Key: "x", Value: "3"}}, entries[1].Fields.Pairs())

	out, err := json.Marshal(&log)
	require.NoError(t, err)
	assert.Equal(t, `{"b":{"x":"1"},"a":{"y":"2","x":"3"}}`, string(out))
}

func TestLogUnmarshalRejectsNonObject(t *testing.T) {
	var log Log
	assert.Error(t, json.Unmarshal([]byte(`[]`), &log))
	assert.Error(t, json.Unmarshal([]byte(`{"t": "not an object"}`), &log))
}

func TestEncodeEmptyLog(t *testing.T) {
	data, err := NewLog().Encode()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}
