// Package token substitutes [group:name] placeholders in strings.
package token

import (
	"regexp"
	"strings"
)

// Data holds token values keyed by group, then by name.
type Data map[string]map[string]string

// Set stores a value, creating the group when needed.
func (d Data) Set(group, name, value string) {
	if d[group] == nil {
		d[group] = make(map[string]string)
	}
	d[group][name] = value
}

// Merge copies every value from other into d.
func (d Data) Merge(other Data) {
	for group, values := range other {
		for name, value := range values {
			d.Set(group, name, value)
		}
	}
}

// Replacer resolves tokens in a template. Unknown tokens must not cause an error.
type Replacer interface {
	Replace(template string, data Data) string
}

// UnknownPolicy decides what happens to tokens with no value.
type UnknownPolicy int

const (
	// KeepUnknown leaves unresolved tokens in place.
	KeepUnknown UnknownPolicy = iota
	// ClearUnknown replaces unresolved tokens with "".
	ClearUnknown
)

var tokenPattern = regexp.MustCompile(`\[([A-Za-z0-9_-]+):([^\[\]\s]+)\]`)

// Simple is the default Replacer.
type Simple struct {
	Unknown UnknownPolicy
}

// NewSimple returns a Replacer that keeps unknown tokens.
func NewSimple() *Simple {
	return &Simple{Unknown: KeepUnknown}
}

// Replace substitutes every [group:name] token found in data.
func (s *Simple) Replace(template string, data Data) string {
	if !strings.Contains(template, "[") {
		return template
	}

	return tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		m := tokenPattern.FindStringSubmatch(tok)
		if values, ok := data[m[1]]; ok {
			if v, ok := values[m[2]]; ok {
				return v
			}
		}
		if s.Unknown == ClearUnknown {
			return ""
		}
		return tok
	})
}
