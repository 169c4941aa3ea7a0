// Package routing knows which paths the host site already owns.
// Custom shortlink paths must not shadow them and internal destinations must point at them.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/penshort/shortlink/internal/repository"
)

// ReservedRoutes are owned by this service regardless of configuration.
var ReservedRoutes = []string{
	"/api/*",
	"/healthz",
	"/readyz",
}

// Table matches paths against a set of chi route patterns.
type Table struct {
	mux      *chi.Mux
	patterns []string
}

// NewTable builds a Table. Patterns use chi syntax ("/user/{id}", "/admin/*").
func NewTable(patterns []string) (table *Table, err error) {
	mux := chi.NewMux()
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("invalid route pattern: %v", r)
		}
	}()

	seen := make(map[string]struct{})
	var kept []string
	for _, p := range append(append([]string(nil), ReservedRoutes...), patterns...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		mux.Handle(p, noop)
		kept = append(kept, p)
	}

	return &Table{mux: mux, patterns: kept}, nil
}

// Match reports whether any route owns path.
func (t *Table) Match(path string) bool {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.mux.Match(chi.NewRouteContext(), http.MethodGet, path)
}

// Patterns returns the patterns in registration order.
func (t *Table) Patterns() []string {
	return append([]string(nil), t.patterns...)
}

// RoutesFunc returns the current host route patterns.
type RoutesFunc func() []string

// Checker answers path questions against the route table and the alias registry.
type Checker struct {
	routes  RoutesFunc
	aliases repository.AliasStore

	mu    sync.Mutex
	key   string
	table *Table
}

// NewChecker creates a Checker. The route table is rebuilt whenever routes() changes.
func NewChecker(routes RoutesFunc, aliases repository.AliasStore) *Checker {
	return &Checker{routes: routes, aliases: aliases}
}

func (c *Checker) current() (*Table, error) {
	var patterns []string
	if c.routes != nil {
		patterns = c.routes()
	}
	key := strings.Join(patterns, "\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table != nil && c.key == key {
		return c.table, nil
	}
	table, err := NewTable(patterns)
	if err != nil {
		return nil, err
	}
	c.key, c.table = key, table
	return table, nil
}

// RouteConflict reports whether a host route already owns path.
func (c *Checker) RouteConflict(_ context.Context, path string) (bool, error) {
	table, err := c.current()
	if err != nil {
		return false, err
	}
	return table.Match(path), nil
}

// AliasConflict reports whether path is already a host path alias.
func (c *Checker) AliasConflict(ctx context.Context, path string) (bool, error) {
	if c.aliases == nil {
		return false, nil
	}
	_, err := c.aliases.ResolveAlias(ctx, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrAliasNotFound):
		return false, nil
	default:
		return false, err
	}
}

// IsValidPath reports whether an internal path leads somewhere on the host site:
// the front page, a known route, an alias or a registered system path.
func (c *Checker) IsValidPath(ctx context.Context, path string) (bool, error) {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	if path == "" || path == "/" {
		return true, nil
	}

	if ok, err := c.RouteConflict(ctx, path); err != nil || ok {
		return ok, err
	}
	if ok, err := c.AliasConflict(ctx, path); err != nil || ok {
		return ok, err
	}
	if c.aliases == nil {
		return false, nil
	}
	return c.aliases.IsKnownSystemPath(ctx, path)
}
