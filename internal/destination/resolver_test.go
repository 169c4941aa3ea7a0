package destination

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
	"github.com/penshort/shortlink/internal/utm"
)

type fakeTargets map[string]*model.Target

func (f fakeTargets) GetTarget(_ context.Context, entityType, entityID string) (*model.Target, error) {
	if t, ok := f[entityType+"/"+entityID]; ok {
		return t, nil
	}
	return nil, repository.ErrTargetNotFound
}

type fakeSets map[string]*model.ParameterSet

func (f fakeSets) GetParameterSet(_ context.Context, id string) (*model.ParameterSet, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, repository.ErrParameterSetNotFound
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	targets := fakeTargets{
		"node/42": {EntityType: "node", EntityID: "42", Label: "Product 42", Published: true, CanonicalURL: "/node/42"},
		"node/7":  {EntityType: "node", EntityID: "7", Label: "Partner", Published: true, CanonicalURL: "https://partner.example.org/landing?ref=site"},
	}
	sets := fakeSets{
		"newsletter": {ID: "newsletter", Enabled: true, Source: "newsletter"},
		"full": {
			ID: "full", Enabled: true, Source: "Newsletter", Medium: "email", Campaign: "[shortlink:slug]",
			CustomParameters: []string{"ref:override"},
		},
		"off": {ID: "off", Enabled: false, Source: "ignored"},
	}
	r, err := NewResolver("https://www.example.com", targets, sets, nil, nil)
	require.NoError(t, err)
	return r
}

func TestNewResolverRejectsRelativeSiteURL(t *testing.T) {
	_, err := NewResolver("/relative", nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name     string
		link     model.Shortlink
		want     string
		external bool
	}{
		{
			name: "internal override with parameter set",
			link: model.Shortlink{ID: 1, Path: "go/aB3-dE", DestinationOverride: "/products/42", ParameterSetID: "newsletter"},
			want: "https://www.example.com/products/42?utm_source=newsletter",
		},
		{
			name:     "external override",
			link:     model.Shortlink{ID: 2, Path: "go/ext", DestinationOverride: "https://other.example.net/page"},
			want:     "https://other.example.net/page",
			external: true,
		},
		{
			name: "override wins over target",
			link: model.Shortlink{
				ID: 3, Path: "go/both", DestinationOverride: "/promo",
				TargetEntityType: "node", TargetEntityID: "42",
			},
			want: "https://www.example.com/promo",
		},
		{
			name: "override tokens",
			link: model.Shortlink{ID: 4, Path: "go/tok123", DestinationOverride: "/campaign/[shortlink:slug]"},
			want: "https://www.example.com/campaign/tok123",
		},
		{
			name: "target canonical path",
			link: model.Shortlink{ID: 5, Path: "go/node42", TargetEntityType: "node", TargetEntityID: "42"},
			want: "https://www.example.com/node/42",
		},
		{
			name:     "external target keeps query and appends parameters",
			link:     model.Shortlink{ID: 6, Path: "go/partner", TargetEntityType: "node", TargetEntityID: "7", ParameterSetID: "full"},
			want:     "https://partner.example.org/landing?ref=override&utm_source=newsletter&utm_medium=email&utm_campaign=partner",
			external: true,
		},
		{
			name: "front page fallback",
			link: model.Shortlink{ID: 7, Path: "go/home"},
			want: "https://www.example.com/",
		},
		{
			name: "disabled parameter set adds nothing",
			link: model.Shortlink{ID: 8, Path: "go/off", DestinationOverride: "/x", ParameterSetID: "off"},
			want: "https://www.example.com/x",
		},
		{
			name: "missing parameter set adds nothing",
			link: model.Shortlink{ID: 9, Path: "go/gone", DestinationOverride: "/x", ParameterSetID: "gone"},
			want: "https://www.example.com/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := tt.link
			got, err := r.Resolve(context.Background(), &link)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.URL)
			assert.Equal(t, tt.external, got.External)
		})
	}
}

func TestResolveMissingTarget(t *testing.T) {
	r := newTestResolver(t)

	link := &model.Shortlink{ID: 1, Path: "go/x", TargetEntityType: "node", TargetEntityID: "404"}
	_, err := r.Resolve(context.Background(), link)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDestinationNotFound))
}

type failingTargets struct{}

func (failingTargets) GetTarget(context.Context, string, string) (*model.Target, error) {
	return nil, errors.New("connection refused")
}

func TestResolveTargetLookupFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r, err := NewResolver("https://www.example.com", failingTargets{}, nil, nil, nil)
	require.NoError(t, err)
	r.SetLogger(zap.New(core))

	t.Run("override still resolves", func(t *testing.T) {
		link := &model.Shortlink{ID: 3, Path: "go/x", TargetEntityType: "node", TargetEntityID: "42", DestinationOverride: "/sale"}
		got, err := r.Resolve(context.Background(), link)
		require.NoError(t, err)
		assert.Equal(t, "https://www.example.com/sale", got.URL)
		assert.Equal(t, 1, logs.FilterMessage("target lookup failed, resolving override without target tokens").Len())
	})

	t.Run("target only fails", func(t *testing.T) {
		link := &model.Shortlink{ID: 4, Path: "go/y", TargetEntityType: "node", TargetEntityID: "42"}
		_, err := r.Resolve(context.Background(), link)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrDestinationNotFound))
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestResolveMissingTargetWithOverride(t *testing.T) {
	r := newTestResolver(t)

	link := &model.Shortlink{ID: 5, Path: "go/z", TargetEntityType: "node", TargetEntityID: "404", DestinationOverride: "https://other.example.net/"}
	got, err := r.Resolve(context.Background(), link)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.net/", got.URL)
	assert.True(t, got.External)
}

func TestResolveAlterHook(t *testing.T) {
	params := utm.NewResolver(nil)
	params.Register(func(p *utm.Params, _ *model.ParameterSet) *utm.Params {
		p.Delete("utm_medium")
		p.Set("channel", "Social Feed")
		return p
	})

	sets := fakeSets{"s": {ID: "s", Enabled: true, Source: "a", Medium: "b"}}
	r, err := NewResolver("https://www.example.com/", nil, sets, params, nil)
	require.NoError(t, err)

	got, err := r.Resolve(context.Background(), &model.Shortlink{Path: "go/h", DestinationOverride: "/p", ParameterSetID: "s"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.com/p?utm_source=a&channel=social_feed", got.URL)
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal("/products/42"))
	assert.True(t, IsInternal("  /x"))
	assert.False(t, IsInternal("//evil.example.com"))
	assert.False(t, IsInternal("https://example.com/"))
	assert.False(t, IsInternal("products"))
}
