// Package jsonx provides JSON serialization using Sonic.
// Every persistence layer (graph document, tracking JSONL, session memory)
// and every model payload goes through this package so the codec lives in
// exactly one place.
package jsonx

import (
	"bytes"

	"github.com/bytedance/sonic"
)

var api = sonic.Config{
	EscapeHTML: false,
	UseInt64:   true,
}.Froze()

// Marshal returns the JSON encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent returns the JSON encoding of v with the given indent.
// Used for the human-inspectable documents (graph file, session memory).
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal parses the JSON-encoded data into the value pointed to by v.
func Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}

// MarshalToString is like Marshal but returns a string, avoiding the
// []byte to string copy on the JSONL write path.
func MarshalToString(v interface{}) (string, error) {
	return api.MarshalToString(v)
}

// UnmarshalFromString parses the JSON string into v.
func UnmarshalFromString(data string, v interface{}) error {
	return api.UnmarshalFromString(data, v)
}

// Valid reports whether data is valid JSON.
func Valid(data []byte) bool {
	return sonic.Valid(data)
}

// AppendLine marshals v and appends it to buf followed by a newline.
// This is the JSONL record encoder.
func AppendLine(buf *bytes.Buffer, v interface{}) error {
	data, err := api.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}
