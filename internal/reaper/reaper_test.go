package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webordinary/router/internal/awsqueue"
	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/ownership"
	"github.com/webordinary/router/internal/queueregistry"
	"github.com/webordinary/router/internal/reaper"
	"github.com/webordinary/router/internal/store"
)

type env struct {
	reaper *reaper.Reaper
	store  *store.Store
	queues *awsqueue.Fake
	reg    *queueregistry.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	sqlDB, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.Migrate(sqlDB))

	st := store.New(sqlDB)
	fake := awsqueue.NewFake()
	reg := queueregistry.New(fake, st)
	own := ownership.New(st, 5*time.Minute, nil)

	r := reaper.New(st, reg, own, st, nil)
	r.TOrphan = time.Hour
	r.TOwnerHard = 30 * time.Minute
	r.Now = time.Now

	return &env{reaper: r, store: st, queues: fake, reg: reg}
}

func TestRun_DeletesUnownedOldQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

	triplet, err := e.reg.Ensure(ctx, tk)
	require.NoError(t, err)

	// Backdate the triplet beyond TOrphan by replacing it with an
	// equivalent row carrying an old createdAt.
	require.NoError(t, e.store.DeleteQueueTriplets(ctx, tk))
	old := triplet
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, e.store.InsertQueueTriplet(ctx, old))

	res, err := e.reaper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.OrphanedQueuesDeleted)

	_, ok, err := e.reg.Get(ctx, tk)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRun_SkipsOwnedQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

	triplet, err := e.reg.Ensure(ctx, tk)
	require.NoError(t, err)
	require.NoError(t, e.store.DeleteQueueTriplets(ctx, tk))
	old := triplet
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, e.store.InsertQueueTriplet(ctx, old))

	require.NoError(t, e.store.UpsertOwnership(ctx, domain.OwnershipRecord{
		TenantKey: tk, WorkerID: "w1", Status: domain.OwnershipActive, LastHeartbeatAt: time.Now(),
	}))

	res, err := e.reaper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, res.OrphanedQueuesDeleted)
}

func TestRun_SkipsYoungQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

	_, err := e.reg.Ensure(ctx, tk)
	require.NoError(t, err)

	res, err := e.reaper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, res.OrphanedQueuesDeleted)
}

func TestRun_FlipsStaleOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

	require.NoError(t, e.store.UpsertOwnership(ctx, domain.OwnershipRecord{
		TenantKey: tk, WorkerID: "w1", Status: domain.OwnershipActive,
		LastHeartbeatAt: time.Now().Add(-time.Hour),
	}))

	res, err := e.reaper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.StaleOwnershipFlipped)

	rec, err := e.store.GetOwnership(ctx, tk)
	require.NoError(t, err)
	require.Equal(t, domain.OwnershipInactive, rec.Status)
}

func TestRun_ReportsExpiredThreadMappings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tk := domain.TenantKey{ProjectID: "amelia", UserID: "scott"}

	require.NoError(t, e.store.RecordThreadActivity(ctx, "abcd1234", tk, domain.TransportEmail, nil, time.Now().Add(-40*24*time.Hour)))

	res, err := e.reaper.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.ExpiredThreadMappings)
}
