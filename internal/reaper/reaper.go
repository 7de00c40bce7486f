// Package reaper implements §4.7: the scheduled sweep that deletes
// orphaned queues, flips stale ownership records to inactive, and
// reports expired thread mappings.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/webordinary/router/internal/domain"
)

const (
	// DefaultInterval is how often the reaper runs (§4.7: "every 6
	// hours by default").
	DefaultInterval = 6 * time.Hour

	// DefaultTOrphan is the minimum age an unowned queue must reach
	// before it is deleted (§3: "default 24h").
	DefaultTOrphan = 24 * time.Hour

	// DefaultTOwnerHard is the heartbeat staleness threshold past
	// which an active ownership record is flipped to inactive (§4.7:
	// "default 30 min").
	DefaultTOwnerHard = 30 * time.Minute
)

// QueueLister enumerates the persisted queue triplets so the reaper
// can find orphans without calling out to the queue service by name.
type QueueLister interface {
	ListLatestQueueTriplets(ctx context.Context) ([]domain.QueueTriplet, error)
}

// OwnershipChecker exposes the freshness predicate and stale sweep the
// reaper needs from the ownership store.
type OwnershipChecker interface {
	IsOwning(ctx context.Context, tenantKey domain.TenantKey) bool
	SweepStale(ctx context.Context, tOwnerHard time.Duration) (int, error)
}

// ThreadCounter reports how many thread mappings have expired.
type ThreadCounter interface {
	CountExpiredThreadMappings(ctx context.Context, now time.Time) (int64, error)
}

// QueueDropper deletes a tenant's live queues and persisted history.
type QueueDropper interface {
	Drop(ctx context.Context, tenantKey domain.TenantKey) error
}

// Result summarizes one reaper pass.
type Result struct {
	OrphanedQueuesDeleted int
	StaleOwnershipFlipped int
	ExpiredThreadMappings int64
}

// Reaper runs the §4.7 cleanup pass.
type Reaper struct {
	Queues    QueueLister
	Dropper   QueueDropper
	Ownership OwnershipChecker
	Threads   ThreadCounter
	Log       *slog.Logger

	TOrphan    time.Duration
	TOwnerHard time.Duration

	Now func() time.Time
}

func New(queues QueueLister, dropper QueueDropper, own OwnershipChecker, threads ThreadCounter, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		Queues: queues, Dropper: dropper, Ownership: own, Threads: threads, Log: log,
		TOrphan: DefaultTOrphan, TOwnerHard: DefaultTOwnerHard,
		Now: time.Now,
	}
}

// Run executes one full sweep: orphaned queues, stale ownership, and
// an expired-thread-mapping count (report only, per §4.7).
func (r *Reaper) Run(ctx context.Context) (Result, error) {
	var res Result

	triplets, err := r.Queues.ListLatestQueueTriplets(ctx)
	if err != nil {
		return res, err
	}

	now := r.Now()
	for _, t := range triplets {
		if r.Ownership.IsOwning(ctx, t.TenantKey) {
			continue
		}
		if now.Sub(t.CreatedAt) <= r.TOrphan {
			continue
		}
		if err := r.Dropper.Drop(ctx, t.TenantKey); err != nil {
			r.Log.Warn("failed to delete orphaned queue triplet", "tenantKey", t.TenantKey.String(), "error", err)
			continue
		}
		r.Log.Info("deleted orphaned queue triplet", "tenantKey", t.TenantKey.String(), "age", now.Sub(t.CreatedAt))
		res.OrphanedQueuesDeleted++
	}

	flipped, err := r.Ownership.SweepStale(ctx, r.TOwnerHard)
	if err != nil {
		return res, err
	}
	res.StaleOwnershipFlipped = flipped

	expired, err := r.Threads.CountExpiredThreadMappings(ctx, now)
	if err != nil {
		return res, err
	}
	res.ExpiredThreadMappings = expired

	return res, nil
}

// RunOn blocks, invoking Run every interval until ctx is cancelled.
// Errors from a single pass are logged; they do not stop the ticker.
func (r *Reaper) RunOn(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.Log.Error("reaper pass failed", "error", err)
			}
		}
	}
}
