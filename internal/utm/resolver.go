// Package utm resolves the tracking query parameters of a shortlink.
package utm

import (
	"regexp"
	"strings"
	"sync"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/token"
)

// AlterFunc modifies a resolved mapping before token substitution.
// It may add, change or delete entries and returns the mapping to use.
type AlterFunc func(params *Params, set *model.ParameterSet) *Params

var (
	invalidRun  = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	underscores = regexp.MustCompile(`_+`)
)

// Resolver computes the final parameter mapping for a parameter set.
type Resolver struct {
	tokens token.Replacer

	mu    sync.RWMutex
	hooks []AlterFunc
}

// NewResolver creates a Resolver. A nil replacer disables token substitution.
func NewResolver(tokens token.Replacer) *Resolver {
	return &Resolver{tokens: tokens}
}

// Register appends an alter hook. Hooks run in registration order.
func (r *Resolver) Register(fn AlterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Resolve returns the sanitized parameters for set, substituting tokens from data.
func (r *Resolver) Resolve(set *model.ParameterSet, data token.Data) *Params {
	params := NewParams()
	if set == nil {
		return params
	}

	named := []Pair{
		{"utm_source", set.Source},
		{"utm_medium", set.Medium},
		{"utm_campaign", set.Campaign},
		{"utm_term", set.Term},
		{"utm_content", set.Content},
	}
	for _, p := range named {
		if p.Value != "" {
			params.Set(p.Key, p.Value)
		}
	}

	for _, raw := range set.CustomParameters {
		key, value, ok := ParseCustom(raw)
		if !ok {
			continue
		}
		params.Set(key, value)
	}

	r.mu.RLock()
	hooks := append([]AlterFunc(nil), r.hooks...)
	r.mu.RUnlock()
	for _, hook := range hooks {
		if altered := hook(params, set); altered != nil {
			params = altered
		}
	}

	out := NewParams()
	for _, p := range params.Pairs() {
		value := p.Value
		if r.tokens != nil && strings.Contains(value, "[") {
			value = r.tokens.Replace(value, data)
		}
		out.Set(p.Key, Sanitize(value))
	}
	return out
}

// ParseCustom splits a "key:value" entry on its first colon.
// Entries without a colon or with an empty key are rejected.
func ParseCustom(raw string) (key, value string, ok bool) {
	k, v, found := strings.Cut(raw, ":")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(k)
	value = strings.TrimSpace(v)
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

// Sanitize makes value safe for a query string: runs of characters outside
// [A-Za-z0-9_] become one underscore, edge underscores are trimmed and the
// result is lowercased.
func Sanitize(value string) string {
	value = invalidRun.ReplaceAllString(value, "_")
	value = underscores.ReplaceAllString(value, "_")
	value = strings.Trim(value, "_")
	return strings.ToLower(value)
}
