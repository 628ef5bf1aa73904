// Package fieldset implements the named field collections a label
// descriptor is built from. Keys keep their declared casing and their
// declaration order; lookups are case-insensitive through a secondary
// index. Declaration order matters: the last search field is the trigger
// for firing a database lookup.
package fieldset

import (
	"strings"
)

type FieldSet struct {
	keys   []string
	values map[string]string
	index  map[string]string // upper-cased name -> declared key
}

// New builds a set with every value initialized to the empty string.
// Duplicate names (case-insensitive) collapse onto the first declaration.
func New(names []string) *FieldSet {
	s := &FieldSet{
		values: make(map[string]string, len(names)),
		index:  make(map[string]string, len(names)),
	}
	for _, name := range names {
		upper := strings.ToUpper(name)
		if _, exists := s.index[upper]; exists {
			continue
		}
		s.keys = append(s.keys, name)
		s.index[upper] = name
		s.values[name] = ""
	}
	return s
}

func (s *FieldSet) Len() int {
	return len(s.keys)
}

// Keys returns the declared field names in declaration order.
func (s *FieldSet) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// First returns the first declared key, or "" for an empty set.
func (s *FieldSet) First() string {
	if len(s.keys) == 0 {
		return ""
	}
	return s.keys[0]
}

// Last returns the last declared key, or "" for an empty set.
func (s *FieldSet) Last() string {
	if len(s.keys) == 0 {
		return ""
	}
	return s.keys[len(s.keys)-1]
}

// Resolve maps a case-insensitive name to its declared key.
func (s *FieldSet) Resolve(name string) (string, bool) {
	key, ok := s.index[strings.ToUpper(name)]
	return key, ok
}

func (s *FieldSet) Has(name string) bool {
	_, ok := s.Resolve(name)
	return ok
}

func (s *FieldSet) Get(name string) (string, bool) {
	key, ok := s.Resolve(name)
	if !ok {
		return "", false
	}
	return s.values[key], true
}

// Set assigns a value by case-insensitive name. Returns false when the
// name is not declared in this set; the caller decides whether that is
// tolerated or a configuration error.
func (s *FieldSet) Set(name, value string) bool {
	key, ok := s.Resolve(name)
	if !ok {
		return false
	}
	s.values[key] = value
	return true
}

// Values returns a copy keyed by declared casing.
func (s *FieldSet) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// SetValues assigns every entry of m that names a declared field and
// silently skips the rest.
func (s *FieldSet) SetValues(m map[string]string) {
	for name, value := range m {
		s.Set(name, value)
	}
}

// AllFilled reports whether every declared field has a non-empty value.
func (s *FieldSet) AllFilled() bool {
	for _, key := range s.keys {
		if s.values[key] == "" {
			return false
		}
	}
	return true
}

// ClearValues resets every value to the empty string without touching
// the declared key set.
func (s *FieldSet) ClearValues() {
	for _, key := range s.keys {
		s.values[key] = ""
	}
}
