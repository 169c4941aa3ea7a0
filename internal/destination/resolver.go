// Package destination decides where a shortlink sends its visitors.
package destination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
	"github.com/penshort/shortlink/internal/token"
	"github.com/penshort/shortlink/internal/utm"
)

// ErrDestinationNotFound is returned when a shortlink references a target that no longer exists.
var ErrDestinationNotFound = errors.New("destination not found")

// Resolved is the final redirect location of a shortlink.
type Resolved struct {
	URL      string
	External bool
}

// TargetLookup loads targets from the registry.
type TargetLookup interface {
	GetTarget(ctx context.Context, entityType, entityID string) (*model.Target, error)
}

// ParameterSetLookup loads parameter sets.
type ParameterSetLookup interface {
	GetParameterSet(ctx context.Context, id string) (*model.ParameterSet, error)
}

// Resolver resolves shortlink destinations.
type Resolver struct {
	siteURL *url.URL
	targets TargetLookup
	sets    ParameterSetLookup
	params  *utm.Resolver
	tokens  token.Replacer
	logger  *zap.Logger
}

// NewResolver creates a Resolver. Internal paths are made absolute against siteURL.
func NewResolver(siteURL string, targets TargetLookup, sets ParameterSetLookup, params *utm.Resolver, tokens token.Replacer) (*Resolver, error) {
	base, err := url.Parse(strings.TrimRight(siteURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid site url %q: %w", siteURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("site url %q must be absolute", siteURL)
	}
	if tokens == nil {
		tokens = token.NewSimple()
	}
	if params == nil {
		params = utm.NewResolver(tokens)
	}
	return &Resolver{
		siteURL: base,
		targets: targets,
		sets:    sets,
		params:  params,
		tokens:  tokens,
		logger:  zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for lookups that resolution recovers from.
func (r *Resolver) SetLogger(logger *zap.Logger) {
	r.logger = logger.With(zap.String("component", "destination.resolver"))
}

func (r *Resolver) loadTarget(ctx context.Context, s *model.Shortlink) (*model.Target, error) {
	if r.targets == nil {
		return nil, fmt.Errorf("%w: no target registry", ErrDestinationNotFound)
	}
	t, err := r.targets.GetTarget(ctx, s.TargetEntityType, s.TargetEntityID)
	if errors.Is(err, repository.ErrTargetNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrDestinationNotFound, s.TargetEntityType, s.TargetEntityID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load target: %w", err)
	}
	return t, nil
}

// SiteURL returns the base URL internal destinations resolve against.
func (r *Resolver) SiteURL() string {
	return r.siteURL.String()
}

// Resolve returns the destination of s. The override wins over the target;
// a shortlink with neither goes to the site front page.
func (r *Resolver) Resolve(ctx context.Context, s *model.Shortlink) (Resolved, error) {
	data := TokenData(s, nil)

	// With an override set, the target only feeds tokens.
	var target *model.Target
	if s.HasTarget() {
		t, err := r.loadTarget(ctx, s)
		switch {
		case err == nil:
			target = t
			data = TokenData(s, t)
		case !s.HasOverride():
			return Resolved{}, err
		case !errors.Is(err, ErrDestinationNotFound):
			r.logger.Warn("target lookup failed, resolving override without target tokens",
				zap.Int64("shortlink_id", s.ID),
				zap.Error(err),
			)
		}
	}

	var dest Resolved
	switch {
	case s.HasOverride():
		raw := r.tokens.Replace(strings.TrimSpace(s.DestinationOverride), data)
		d, err := r.classify(raw)
		if err != nil {
			return Resolved{}, err
		}
		dest = d
	case target != nil:
		d, err := r.classify(target.CanonicalURL)
		if err != nil {
			return Resolved{}, err
		}
		dest = d
	default:
		dest = Resolved{URL: r.siteURL.String()}
	}

	if s.ParameterSetID == "" || r.sets == nil {
		return dest, nil
	}

	set, err := r.sets.GetParameterSet(ctx, s.ParameterSetID)
	if err != nil {
		if errors.Is(err, repository.ErrParameterSetNotFound) {
			return dest, nil
		}
		return Resolved{}, fmt.Errorf("failed to load parameter set: %w", err)
	}
	if !set.Enabled {
		return dest, nil
	}

	params := r.params.Resolve(set, data)
	merged, err := mergeQuery(dest.URL, params)
	if err != nil {
		return Resolved{}, err
	}
	dest.URL = merged
	return dest, nil
}

// IsInternal reports whether a raw destination is a site-relative path.
func IsInternal(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//")
}

// classify makes raw absolute. Site-relative paths resolve against the site URL;
// anything else must already be an absolute URI.
func (r *Resolver) classify(raw string) (Resolved, error) {
	if IsInternal(raw) {
		ref, err := url.Parse(raw)
		if err != nil {
			return Resolved{}, fmt.Errorf("invalid internal path %q: %w", raw, err)
		}
		return Resolved{URL: r.siteURL.ResolveReference(ref).String()}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Resolved{}, fmt.Errorf("invalid destination %q: %w", raw, err)
	}
	if !u.IsAbs() {
		return Resolved{}, fmt.Errorf("destination %q is neither a site path nor an absolute url", raw)
	}
	return Resolved{URL: u.String(), External: !sameOrigin(u, r.siteURL)}, nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func mergeQuery(raw string, params *utm.Params) (string, error) {
	if params == nil || params.Len() == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", raw, err)
	}
	u.RawQuery = params.MergeInto(u.RawQuery)
	return u.String(), nil
}

// TokenData builds the token context for a shortlink and its optional target.
func TokenData(s *model.Shortlink, t *model.Target) token.Data {
	data := token.Data{}
	data.Set("shortlink", "id", strconv.FormatInt(s.ID, 10))
	data.Set("shortlink", "slug", s.Slug())
	data.Set("shortlink", "path", s.Path)
	data.Set("shortlink", "label", s.Label)
	if t != nil {
		data.Set("target", "type", t.EntityType)
		data.Set("target", "id", t.EntityID)
		data.Set("target", "bundle", t.Bundle)
		data.Set("target", "label", t.Label)
		data.Set("target", "url", t.CanonicalURL)
	}
	return data
}
