// Package ownership implements §4.5: the read-mostly freshness check
// the router consults to decide whether a tenant already has a worker
// attached, plus the reaper's stale-record sweep.
package ownership

import (
	"context"
	"log/slog"
	"time"

	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/store"
)

// DefaultTOwner is the freshness window a heartbeat must fall within
// for its tenant to be considered owned (§3: "default T_owner = 5 min").
const DefaultTOwner = 5 * time.Minute

// RecordStore is the persistence side of the ownership store.
type RecordStore interface {
	GetOwnership(ctx context.Context, tenantKey domain.TenantKey) (domain.OwnershipRecord, error)
	ListActiveOwnership(ctx context.Context) ([]domain.OwnershipRecord, error)
	MarkOwnershipInactive(ctx context.Context, tenantKey domain.TenantKey) error
}

// Store checks and sweeps ownership records. The core only ever
// reads; workers are the sole writers of the underlying records.
type Store struct {
	records RecordStore
	tOwner  time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func New(records RecordStore, tOwner time.Duration, log *slog.Logger) *Store {
	if tOwner <= 0 {
		tOwner = DefaultTOwner
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{records: records, tOwner: tOwner, now: time.Now, log: log}
}

// IsOwning reports whether a fresh active worker currently claims
// tenantKey. Any error reaching the store fails open to false: §4.5
// prefers announcing on the unclaimed queue over silently blocking
// work behind a store outage.
func (s *Store) IsOwning(ctx context.Context, tenantKey domain.TenantKey) bool {
	rec, err := s.records.GetOwnership(ctx, tenantKey)
	if err == store.ErrNotFound {
		return false
	}
	if err != nil {
		s.log.Warn("ownership lookup failed, failing open to unowned", "tenantKey", tenantKey.String(), "error", err)
		return false
	}
	if rec.Status != domain.OwnershipActive {
		return false
	}
	return s.now().Sub(rec.LastHeartbeatAt) <= s.tOwner
}

// SweepStale flips every active record whose heartbeat is older than
// tOwnerHard to inactive, returning the count changed. Used by the
// reaper (§4.7); tOwnerHard is intentionally a separate, looser
// threshold than IsOwning's tOwner so a worker mid-heartbeat-gap is
// not both "not owning" for routing purposes and "reaped" at once.
func (s *Store) SweepStale(ctx context.Context, tOwnerHard time.Duration) (int, error) {
	active, err := s.records.ListActiveOwnership(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	now := s.now()
	for _, rec := range active {
		if now.Sub(rec.LastHeartbeatAt) > tOwnerHard {
			if err := s.records.MarkOwnershipInactive(ctx, rec.TenantKey); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
