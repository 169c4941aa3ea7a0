//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/testutil"
)

func TestIntegrationShortlink_CreateAndGet(t *testing.T) {
	ctx, repo := newTestEnv(t)

	s := testutil.NewTestShortlink(t, testutil.UniquePath("go"))
	if err := repo.CreateShortlink(ctx, s); err != nil {
		t.Fatalf("CreateShortlink failed: %v", err)
	}
	if s.ID == 0 || s.UUID == "" {
		t.Fatalf("expected id and uuid to be assigned, got %d %q", s.ID, s.UUID)
	}

	got, err := repo.GetShortlink(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetShortlink failed: %v", err)
	}
	if got.Path != s.Path {
		t.Errorf("Path mismatch: got %q, want %q", got.Path, s.Path)
	}
	if got.UUID != s.UUID {
		t.Errorf("UUID mismatch: got %q, want %q", got.UUID, s.UUID)
	}
	if got.DestinationOverride != "" {
		t.Errorf("expected empty override, got %q", got.DestinationOverride)
	}
}

func TestIntegrationShortlink_DuplicatePath(t *testing.T) {
	ctx, repo := newTestEnv(t)

	path := testutil.UniquePath("go")
	if err := repo.CreateShortlink(ctx, testutil.NewTestShortlink(t, path)); err != nil {
		t.Fatalf("CreateShortlink (first) failed: %v", err)
	}

	err := repo.CreateShortlink(ctx, testutil.NewTestShortlink(t, path))
	if !errors.Is(err, ErrPathExists) {
		t.Errorf("Expected ErrPathExists, got: %v", err)
	}
}

func TestIntegrationShortlink_ConcurrentSamePath(t *testing.T) {
	ctx, repo := newTestEnv(t)

	path := testutil.UniquePath("go")
	const workers = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.CreateShortlink(ctx, testutil.NewTestShortlink(t, path))
			if err != nil && !errors.Is(err, ErrPathExists) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("expected exactly one create to succeed, got %d", succeeded)
	}
}

func TestIntegrationShortlink_RecordAccessIsAtomic(t *testing.T) {
	ctx, repo := newTestEnv(t)

	s := testutil.NewTestShortlink(t, testutil.UniquePath("go"))
	if err := repo.CreateShortlink(ctx, s); err != nil {
		t.Fatalf("CreateShortlink failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.RecordAccess(ctx, s.ID, time.Now().UTC()); err != nil {
				t.Errorf("RecordAccess failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetShortlink(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetShortlink failed: %v", err)
	}
	if got.ClickCount != 25 {
		t.Errorf("ClickCount = %d, want 25", got.ClickCount)
	}
	if got.LastAccessed == nil {
		t.Error("LastAccessed should be set")
	}
}

func TestIntegrationParameterSet_DeleteDetachesShortlinks(t *testing.T) {
	ctx, repo := newTestEnv(t)

	set := testutil.NewTestParameterSet(t, "newsletter")
	set.CustomParameters = []string{"ref:mail", "cid:[node:nid]"}
	if err := repo.CreateParameterSet(ctx, set); err != nil {
		t.Fatalf("CreateParameterSet failed: %v", err)
	}

	got, err := repo.GetParameterSet(ctx, "newsletter")
	if err != nil {
		t.Fatalf("GetParameterSet failed: %v", err)
	}
	if len(got.CustomParameters) != 2 || got.CustomParameters[1] != "cid:[node:nid]" {
		t.Errorf("CustomParameters mismatch: %v", got.CustomParameters)
	}

	s := testutil.NewTestShortlink(t, testutil.UniquePath("go"))
	s.ParameterSetID = "newsletter"
	if err := repo.CreateShortlink(ctx, s); err != nil {
		t.Fatalf("CreateShortlink failed: %v", err)
	}

	if err := repo.DeleteParameterSet(ctx, "newsletter"); err != nil {
		t.Fatalf("DeleteParameterSet failed: %v", err)
	}

	detached, err := repo.GetShortlink(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetShortlink failed: %v", err)
	}
	if detached.ParameterSetID != "" {
		t.Errorf("expected parameter set to be detached, got %q", detached.ParameterSetID)
	}
}

func TestIntegrationShortlink_ReplaceBrokenFlags(t *testing.T) {
	ctx, repo := newTestEnv(t)

	a := testutil.NewTestShortlink(t, testutil.UniquePath("go"))
	b := testutil.NewTestShortlink(t, testutil.UniquePath("go"))
	for _, s := range []*model.Shortlink{a, b} {
		if err := repo.CreateShortlink(ctx, s); err != nil {
			t.Fatalf("CreateShortlink failed: %v", err)
		}
	}

	if err := repo.ReplaceBrokenFlags(ctx, []int64{a.ID}); err != nil {
		t.Fatalf("ReplaceBrokenFlags failed: %v", err)
	}
	if err := repo.ReplaceBrokenFlags(ctx, []int64{b.ID}); err != nil {
		t.Fatalf("ReplaceBrokenFlags failed: %v", err)
	}

	gotA, _ := repo.GetShortlink(ctx, a.ID)
	gotB, _ := repo.GetShortlink(ctx, b.ID)
	if gotA.HasBrokenDestination {
		t.Error("flag for a should be cleared")
	}
	if !gotB.HasBrokenDestination {
		t.Error("flag for b should be set")
	}
}

func TestIntegrationClicks_BulkInsertIdempotent(t *testing.T) {
	ctx, repo := newTestEnv(t)

	s := testutil.NewTestShortlink(t, testutil.UniquePath("go"))
	if err := repo.CreateShortlink(ctx, s); err != nil {
		t.Fatalf("CreateShortlink failed: %v", err)
	}

	now := time.Now().UTC()
	events := []*model.ClickEvent{
		{ID: testutil.UniqueID("c"), EventID: "1-0", ShortlinkID: s.ID, Timestamp: now},
		{ID: testutil.UniqueID("c"), EventID: "1-1", ShortlinkID: s.ID, Referrer: "https://ref.example", Timestamp: now},
	}
	if err := repo.BulkInsert(ctx, events); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}
	if err := repo.BulkInsert(ctx, events); err != nil {
		t.Fatalf("BulkInsert replay failed: %v", err)
	}

	total, err := repo.TotalClicks(ctx, model.TimeRange{})
	if err != nil {
		t.Fatalf("TotalClicks failed: %v", err)
	}
	if total != 2 {
		t.Errorf("TotalClicks = %d, want 2", total)
	}

	top, err := repo.TopShortlinks(ctx, 5, model.TimeRange{})
	if err != nil {
		t.Fatalf("TopShortlinks failed: %v", err)
	}
	if len(top) != 1 || top[0].Path != s.Path || top[0].Clicks != 2 {
		t.Errorf("unexpected top shortlinks: %+v", top)
	}

	purged, err := repo.PurgeClicksBefore(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("PurgeClicksBefore failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
}

func TestIntegrationTargets_KnownSystemPath(t *testing.T) {
	ctx, repo := newTestEnv(t)

	if err := repo.UpsertTarget(ctx, &model.Target{
		EntityType: "node", EntityID: "7", Label: "About", Published: true, CanonicalURL: "/node/7",
	}); err != nil {
		t.Fatalf("UpsertTarget failed: %v", err)
	}
	if err := repo.UpsertAlias(ctx, &model.PathAlias{Alias: "/about", SystemPath: "/node/7"}); err != nil {
		t.Fatalf("UpsertAlias failed: %v", err)
	}

	systemPath, err := repo.ResolveAlias(ctx, "/about")
	if err != nil || systemPath != "/node/7" {
		t.Fatalf("ResolveAlias = %q, %v", systemPath, err)
	}

	known, err := repo.IsKnownSystemPath(ctx, "/node/7")
	if err != nil || !known {
		t.Errorf("IsKnownSystemPath = %v, %v", known, err)
	}

	if err := repo.DeleteTarget(ctx, "node", "7"); err != nil {
		t.Fatalf("DeleteTarget failed: %v", err)
	}
	if _, err := repo.GetTarget(ctx, "node", "7"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("Expected ErrTargetNotFound, got: %v", err)
	}
}

func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.PostgresURL(t)

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}
