package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/analytics"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/repository/sqlite"
	"github.com/penshort/shortlink/internal/routing"
)

func newTestStore(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func testSettings(mutate func(*config.Settings)) *config.SettingsStore {
	s := config.DefaultSettings()
	s.AvailableEntityTypes = []string{"node"}
	s.SiteRoutes = []string{"/contact", "/go/reserved"}
	if mutate != nil {
		mutate(&s)
	}
	return config.NewStaticSettings(s)
}

func newTestShortlinkService(t *testing.T, repo *sqlite.Repository, settings *config.SettingsStore, cache NegativeCache) *ShortlinkService {
	t.Helper()
	paths := routing.NewChecker(func() []string { return settings.Current().SiteRoutes }, repo)
	return NewShortlinkService(repo, settings, paths, cache, zap.NewNop(), nil)
}

// fakeNegativeCache mirrors the generation check of *cache.Cache.
type fakeNegativeCache struct {
	mu          sync.Mutex
	missing     map[string]bool
	generations map[string]int64
	cleared     []string
}

func newFakeNegativeCache() *fakeNegativeCache {
	return &fakeNegativeCache{missing: make(map[string]bool), generations: make(map[string]int64)}
}

func (f *fakeNegativeCache) IsNegativelyCached(_ context.Context, path string) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.missing[path], f.generations[path], nil
}

func (f *fakeNegativeCache) SetNegativeCache(_ context.Context, path string, generation int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generations[path] != generation {
		return false, nil
	}
	f.missing[path] = true
	return true, nil
}

func (f *fakeNegativeCache) ClearNegativeCache(_ context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		delete(f.missing, p)
		f.generations[p]++
		f.cleared = append(f.cleared, p)
	}
	return nil
}

type recordedClick struct {
	shortlinkID int64
	meta        analytics.RequestMeta
	at          time.Time
}

type fakeTracker struct {
	mu     sync.Mutex
	clicks []recordedClick
}

func (f *fakeTracker) Record(shortlinkID int64, meta analytics.RequestMeta, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, recordedClick{shortlinkID: shortlinkID, meta: meta, at: now})
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
