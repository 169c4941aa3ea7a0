package utm

import (
	"net/url"
	"strings"
)

// Pair is a single query parameter.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Params is an insertion-ordered parameter mapping.
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams returns an empty mapping.
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Set stores value under key. An existing key keeps its position.
func (p *Params) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Delete removes key.
func (p *Params) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of parameters.
func (p *Params) Len() int { return len(p.keys) }

// Pairs returns the parameters in order.
func (p *Params) Pairs() []Pair {
	pairs := make([]Pair, 0, len(p.keys))
	for _, k := range p.keys {
		pairs = append(pairs, Pair{Key: k, Value: p.values[k]})
	}
	return pairs
}

// Encode renders the parameters as a query string in order.
func (p *Params) Encode() string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.values[k]))
	}
	return b.String()
}

// MergeInto merges the parameters into an existing raw query.
// Existing keys keep their position and take the new value; new keys are appended.
func (p *Params) MergeInto(rawQuery string) string {
	if p == nil || p.Len() == 0 {
		return rawQuery
	}

	merged := NewParams()
	var extra []Pair
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			key = k
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			value = v
		}
		if _, dup := merged.Get(key); dup {
			if _, replaced := p.values[key]; !replaced {
				extra = append(extra, Pair{Key: key, Value: value})
			}
			continue
		}
		merged.Set(key, value)
	}

	for _, k := range p.keys {
		merged.Set(k, p.values[k])
	}

	out := merged.Encode()
	for _, e := range extra {
		out += "&" + url.QueryEscape(e.Key) + "=" + url.QueryEscape(e.Value)
	}
	return out
}
