package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Settings is the ordered-mapping object a section without a type-bearing
// option resolves to: its entries equal the section's options after
// substitution and directive parsing, in option order.
type Settings struct {
	name   string
	keys   []string
	values map[string]any
}

// NewSettings creates an empty settings object for the named section.
func NewSettings(name string) *Settings {
	return &Settings{name: name, values: make(map[string]any)}
}

// Name returns the originating section name.
func (s *Settings) Name() string {
	return s.name
}

// Set adds or overwrites an entry, preserving first-insertion order.
func (s *Settings) Set(key string, value any) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the entry for key.
func (s *Settings) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the entry names in insertion order.
func (s *Settings) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of entries.
func (s *Settings) Len() int {
	return len(s.keys)
}

// AsMap returns a copy of the entries as a plain map.
func (s *Settings) AsMap() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Str returns the entry for key as a string, or the empty string.
func (s *Settings) Str(key string) string {
	if v, ok := s.values[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// Int returns the entry for key as an int, or zero.
func (s *Settings) Int(key string) int {
	switch v := s.values[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Float returns the entry for key as a float64, or zero.
func (s *Settings) Float(key string) float64 {
	switch v := s.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns the entry for key as a bool, or false.
func (s *Settings) Bool(key string) bool {
	v, _ := s.values[key].(bool)
	return v
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (s *Settings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(s.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the settings for diagnostics.
func (s *Settings) String() string {
	b, err := s.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("settings[%s]", s.name)
	}
	return string(b)
}
