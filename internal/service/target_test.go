package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/model"
)

func TestTargetService(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	targets := NewTargetService(repo, zap.NewNop())
	shortlinks := newTestShortlinkService(t, repo, testSettings(nil), nil)

	_, err := targets.Upsert(ctx, &model.Target{EntityType: "node", EntityID: "1", Label: "x"})
	assert.Equal(t, errx.Invalid, errx.KindOf(err))

	target, err := targets.Upsert(ctx, &model.Target{EntityType: "node", EntityID: "1", Label: "Home", Published: true, CanonicalURL: "/node/1"})
	require.NoError(t, err)
	assert.Equal(t, "/node/1", target.CanonicalURL)

	for i := 0; i < 2; i++ {
		_, err := shortlinks.Create(ctx, CreateShortlinkInput{Label: "t", TargetEntityType: "node", TargetEntityID: "1"})
		require.NoError(t, err)
	}

	n, err := targets.Delete(ctx, "node", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = targets.Get(ctx, "node", "1")
	assert.Equal(t, errx.NotFound, errx.KindOf(err))

	// Deleting an unknown target still succeeds.
	n, err = targets.Delete(ctx, "node", "1")
	require.NoError(t, err)
	assert.Zero(t, n)

	alias, err := targets.UpsertAlias(ctx, &model.PathAlias{Alias: "about-us", SystemPath: "node/9"})
	require.NoError(t, err)
	assert.Equal(t, "/about-us", alias.Alias)
	assert.Equal(t, "/node/9", alias.SystemPath)

	resolved, err := repo.ResolveAlias(ctx, "/about-us")
	require.NoError(t, err)
	assert.Equal(t, "/node/9", resolved)

	require.NoError(t, targets.DeleteAlias(ctx, "about-us"))
	assert.Equal(t, errx.NotFound, errx.KindOf(targets.DeleteAlias(ctx, "about-us")))
}
