package domain

import "strings"

// Attributes is the attribute mapping of a validation response. Values are
// either string or []string, preserving the scalar-vs-list shape the CAS
// server used per key.
type Attributes map[string]any

// Add appends a value under name. The first value for a key is stored as a
// scalar; subsequent values promote the entry to a list.
func (a Attributes) Add(name, value string) {
	switch existing := a[name].(type) {
	case nil:
		a[name] = value
	case string:
		a[name] = []string{existing, value}
	case []string:
		a[name] = append(existing, value)
	}
}

// AddList stores a list value under name, merging with any existing values.
func (a Attributes) AddList(name string, values []string) {
	for _, v := range values {
		a.Add(name, v)
	}
	// A single-element YAML list is still a list on the wire.
	if v, ok := a[name].(string); ok && len(values) == 1 {
		a[name] = []string{v}
	}
}

// Get returns the first value stored under name, or "" if absent.
func (a Attributes) Get(name string) string {
	switch v := a[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Strings returns all values stored under name.
func (a Attributes) Strings(name string) []string {
	switch v := a[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}

// NormalizeAttributes rebuilds an Attributes mapping from generically decoded
// data (e.g. JSON claims), coercing []any values back to []string and
// dropping entries that are neither strings nor string lists.
func NormalizeAttributes(raw map[string]any) Attributes {
	if raw == nil {
		return nil
	}
	attrs := make(Attributes, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			attrs[k] = val
		case []string:
			attrs[k] = val
		case []any:
			list := make([]string, 0, len(val))
			for _, e := range val {
				if s, ok := e.(string); ok {
					list = append(list, s)
				}
			}
			attrs[k] = list
		}
	}
	return attrs
}

// IsValidHeaderName validates HTTP header names for attribute export.
// Valid names must:
//   - Start with "X-" or "x-" (case-insensitive prefix)
//   - Be at least 3 characters long (X- plus at least one character)
//   - Contain only ASCII letters, digits, and hyphens after the prefix
func IsValidHeaderName(name string) bool {
	if len(name) < 3 {
		return false
	}

	// Check X- prefix (case-insensitive)
	prefix := strings.ToUpper(name[:2])
	if prefix != "X-" {
		return false
	}

	// Check remaining characters
	for i := 2; i < len(name); i++ {
		c := name[i]
		valid := (c >= 'A' && c <= 'Z') ||
			(c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') ||
			c == '-'
		if !valid {
			return false
		}
	}

	return true
}
