package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, store.Migrate(sqlDB))
	return store.New(sqlDB)
}

func TestOpen_InMemory(t *testing.T) {
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()
	require.NoError(t, sqlDB.Ping())

	var fkEnabled int
	require.NoError(t, sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	require.Equal(t, 1, fkEnabled)
}

func TestMigrate_Idempotent(t *testing.T) {
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	require.NoError(t, store.Migrate(sqlDB))
	require.NoError(t, store.Migrate(sqlDB))
}

func TestThreadMapping_CreateThenBump(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordThreadActivity(ctx, "abcd1234", tk, domain.TransportEmail, nil, now))

	tm, err := s.GetThreadMapping(ctx, "abcd1234")
	require.NoError(t, err)
	require.Equal(t, tk, tm.TenantKey)
	require.EqualValues(t, 1, tm.MessageCount)
	require.Empty(t, tm.LastContext, "no context was forwarded on the first message")

	later := now.Add(time.Hour)
	rawContext := json.RawMessage(`{"messageId":"<abc@mail.example>","headers":{"x-forwarded-for":"mail.example"}}`)
	require.NoError(t, s.RecordThreadActivity(ctx, "abcd1234", tk, domain.TransportEmail, rawContext, later))

	tm2, err := s.GetThreadMapping(ctx, "abcd1234")
	require.NoError(t, err)
	require.EqualValues(t, 2, tm2.MessageCount)
	require.Equal(t, tk, tm2.TenantKey, "tenantKey must never change once set")
	require.WithinDuration(t, later, tm2.LastActivityAt, 0)
	require.JSONEq(t, string(rawContext), string(tm2.LastContext), "stored context round-trips through compression")
}

func TestThreadMapping_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetThreadMapping(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSession_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := domain.SessionRecord{
		SessionID: "sess-1",
		TenantKey: domain.TenantKey{ProjectID: "amelia", UserID: "scott"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.UpsertSession(ctx, rec))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, rec.TenantKey, got.TenantKey)
}

func TestTenantConfig_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry := domain.TenantConfigEntry{
		Identity:  "amelia@example.com",
		TenantKey: domain.TenantKey{ProjectID: "amelia", UserID: "scott"},
		RepoURL:   "https://example.com/amelia.git",
	}
	require.NoError(t, s.UpsertTenantConfig(ctx, entry))

	got, err := s.GetTenantConfig(ctx, "amelia@example.com")
	require.NoError(t, err)
	require.Equal(t, entry.RepoURL, got.RepoURL)

	_, err = s.GetTenantConfig(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueueTriplet_LatestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

	old := domain.QueueTriplet{
		TenantKey: tk, CreatedAt: time.Now().Add(-time.Hour),
		InputURL: "old-in", OutputURL: "old-out", DLQURL: "old-dlq",
	}
	fresh := domain.QueueTriplet{
		TenantKey: tk, CreatedAt: time.Now(),
		InputURL: "new-in", OutputURL: "new-out", DLQURL: "new-dlq",
	}
	require.NoError(t, s.InsertQueueTriplet(ctx, old))
	require.NoError(t, s.InsertQueueTriplet(ctx, fresh))

	got, err := s.GetLatestQueueTriplet(ctx, tk)
	require.NoError(t, err)
	require.Equal(t, "new-in", got.InputURL)

	all, err := s.ListLatestQueueTriplets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "new-in", all[0].InputURL)
}

func TestOwnership_Freshness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

	_, err := s.GetOwnership(ctx, tk)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertOwnership(ctx, domain.OwnershipRecord{
		TenantKey: tk, WorkerID: "worker-1", Status: domain.OwnershipActive, LastHeartbeatAt: time.Now(),
	}))

	rec, err := s.GetOwnership(ctx, tk)
	require.NoError(t, err)
	require.Equal(t, domain.OwnershipActive, rec.Status)

	require.NoError(t, s.MarkOwnershipInactive(ctx, tk))
	rec2, err := s.GetOwnership(ctx, tk)
	require.NoError(t, err)
	require.Equal(t, domain.OwnershipInactive, rec2.Status)
}

func TestOwnership_ListActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertOwnership(ctx, domain.OwnershipRecord{
		TenantKey: domain.TenantKey{ProjectID: "a", UserID: "b"}, WorkerID: "w1",
		Status: domain.OwnershipActive, LastHeartbeatAt: time.Now(),
	}))
	require.NoError(t, s.UpsertOwnership(ctx, domain.OwnershipRecord{
		TenantKey: domain.TenantKey{ProjectID: "c", UserID: "d"}, WorkerID: "w2",
		Status: domain.OwnershipInactive, LastHeartbeatAt: time.Now(),
	}))

	active, err := s.ListActiveOwnership(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "w1", active[0].WorkerID)
}
