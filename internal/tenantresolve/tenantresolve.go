// Package tenantresolve implements §4.2: mapping an inbound message to
// the tenant it belongs to, consulting the session index, the thread
// mapping, and the static tenant-config table in that order.
package tenantresolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/store"
)

// SessionLookup resolves a sessionId to its bound tenant.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
}

// ThreadLookup resolves an already-hashed threadId to its tenant.
type ThreadLookup interface {
	GetThreadMapping(ctx context.Context, threadID string) (domain.ThreadMapping, error)
}

// ConfigLookup resolves a sender identity to its static tenant/repo
// binding (the operator-maintained tenant-config table).
type ConfigLookup interface {
	GetTenantConfig(ctx context.Context, identity string) (domain.TenantConfigEntry, error)
}

// ErrNotFound is the sentinel the three lookups return on a miss.
var ErrNotFound = store.ErrNotFound

// Result is the resolver's output. Unresolved is set when resolution
// fell all the way through to the reserved default tenant. Missing
// config is set when a tenant was found but no repoUrl is configured
// for it.
type Result struct {
	TenantKey     domain.TenantKey
	RepoURL       string
	Unresolved    bool
	MissingConfig bool
}

// Resolver implements §4.2's resolution order.
type Resolver struct {
	Sessions SessionLookup
	Threads  ThreadLookup
	Config   ConfigLookup
}

func New(sessions SessionLookup, threads ThreadLookup, config ConfigLookup) *Resolver {
	return &Resolver{Sessions: sessions, Threads: threads, Config: config}
}

// Resolve applies the four-step lookup order and then, independently,
// looks up repoUrl via the tenant-config table keyed by sender
// identity, regardless of which step resolved the tenant.
func (r *Resolver) Resolve(ctx context.Context, ingress domain.IngressMsg, threadID string) (Result, error) {
	tenantKey, unresolved, err := r.resolveTenant(ctx, ingress, threadID)
	if err != nil {
		return Result{}, err
	}

	res := Result{TenantKey: tenantKey, Unresolved: unresolved}

	if ingress.SenderIdentity != "" {
		entry, err := r.Config.GetTenantConfig(ctx, ingress.SenderIdentity)
		switch {
		case err == nil:
			res.RepoURL = entry.RepoURL
		case errors.Is(err, ErrNotFound):
			res.MissingConfig = true
		default:
			return Result{}, fmt.Errorf("tenant config lookup: %w", err)
		}
	} else {
		res.MissingConfig = true
	}

	return res, nil
}

func (r *Resolver) resolveTenant(ctx context.Context, ingress domain.IngressMsg, threadID string) (domain.TenantKey, bool, error) {
	if ingress.SessionID != "" {
		sess, err := r.Sessions.GetSession(ctx, ingress.SessionID)
		switch {
		case err == nil:
			return sess.TenantKey, false, nil
		case !errors.Is(err, ErrNotFound):
			return domain.TenantKey{}, false, fmt.Errorf("session lookup: %w", err)
		}
	}

	if threadID != "" {
		tm, err := r.Threads.GetThreadMapping(ctx, threadID)
		switch {
		case err == nil:
			return tm.TenantKey, false, nil
		case !errors.Is(err, ErrNotFound):
			return domain.TenantKey{}, false, fmt.Errorf("thread mapping lookup: %w", err)
		}
	}

	if ingress.SenderIdentity != "" {
		entry, err := r.Config.GetTenantConfig(ctx, ingress.SenderIdentity)
		switch {
		case err == nil:
			return entry.TenantKey, false, nil
		case !errors.Is(err, ErrNotFound):
			return domain.TenantKey{}, false, fmt.Errorf("tenant config lookup: %w", err)
		}
	}

	return domain.DefaultUnknownTenant, true, nil
}
