// Package queueregistry implements §4.3: the authoritative, persisted
// mapping from tenant key to its SQS-style input/output/DLQ triplet.
package queueregistry

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/store"
	"github.com/webordinary/router/internal/validate"
)

// UnclaimedQueueName is the singleton shared queue workers watch to
// pick up tenants nobody currently owns.
const UnclaimedQueueName = "webordinary-unclaimed"

const maxReceiveCount = 3

// QueueClient is the subset of SQS operations the registry drives.
type QueueClient interface {
	CreateQueue(ctx context.Context, name string, tags map[string]string) (string, error)
	GetQueueURL(ctx context.Context, name string) (string, error)
	DeleteQueue(ctx context.Context, url string) error
	SetRedrivePolicy(ctx context.Context, inputURL, dlqArn string, maxReceiveCount int) error
	QueueARN(ctx context.Context, url string) (string, error)
	TagQueue(ctx context.Context, url string, tags map[string]string) error
}

// TripletStore is the persistence side of the registry.
type TripletStore interface {
	GetLatestQueueTriplet(ctx context.Context, tenantKey domain.TenantKey) (domain.QueueTriplet, error)
	InsertQueueTriplet(ctx context.Context, t domain.QueueTriplet) error
	DeleteQueueTriplets(ctx context.Context, tenantKey domain.TenantKey) error
}

// Registry ensures, looks up, and drops per-tenant queue triplets.
type Registry struct {
	Client QueueClient
	Store  TripletStore

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func New(client QueueClient, store TripletStore) *Registry {
	return &Registry{Client: client, Store: store, Now: time.Now}
}

// Names returns the three queue names a tenant's triplet is known by.
func Names(tenantKey domain.TenantKey) (input, output, dlq string) {
	p := validate.SanitizeQueueNameComponent(tenantKey.ProjectID)
	u := validate.SanitizeQueueNameComponent(tenantKey.UserID)
	return "webordinary-input-" + p + "-" + u,
		"webordinary-output-" + p + "-" + u,
		"webordinary-dlq-" + p + "-" + u
}

// Get returns the persisted triplet for a tenant, if one exists.
func (r *Registry) Get(ctx context.Context, tenantKey domain.TenantKey) (domain.QueueTriplet, bool, error) {
	t, err := r.Store.GetLatestQueueTriplet(ctx, tenantKey)
	if err == store.ErrNotFound {
		return domain.QueueTriplet{}, false, nil
	}
	if err != nil {
		return domain.QueueTriplet{}, false, fmt.Errorf("get triplet: %w", err)
	}
	return t, true, nil
}

// Ensure returns the tenant's queue triplet, creating it if necessary.
// Idempotent: a persisted triplet, or one discoverable by name in the
// queue service, is returned without creating anything.
func (r *Registry) Ensure(ctx context.Context, tenantKey domain.TenantKey) (domain.QueueTriplet, error) {
	if t, ok, err := r.Get(ctx, tenantKey); err != nil {
		return domain.QueueTriplet{}, err
	} else if ok {
		return t, nil
	}

	inputName, outputName, dlqName := Names(tenantKey)

	tags := map[string]string{
		"project":   tenantKey.ProjectID,
		"tenant":    tenantKey.String(),
		"managedBy": "webordinary-router",
	}

	if urls, ok, err := r.discoverByName(ctx, inputName, outputName, dlqName); err != nil {
		return domain.QueueTriplet{}, err
	} else if ok {
		// Queues that exist but were never persisted (e.g. a store
		// restored from an older backup) may predate the current
		// tagging convention; re-tag them rather than trust whatever
		// tags they were created with.
		for _, url := range urls {
			if err := r.Client.TagQueue(ctx, url, tags); err != nil {
				return domain.QueueTriplet{}, fmt.Errorf("tag discovered queue %s: %w", url, err)
			}
		}
		t := domain.QueueTriplet{TenantKey: tenantKey, InputURL: urls[0], OutputURL: urls[1], DLQURL: urls[2], CreatedAt: r.Now()}
		if err := r.Store.InsertQueueTriplet(ctx, t); err != nil {
			return domain.QueueTriplet{}, fmt.Errorf("persist discovered triplet: %w", err)
		}
		return t, nil
	}

	urls := make([]string, 3)
	names := [3]string{inputName, outputName, dlqName}
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			url, err := r.Client.CreateQueue(gctx, name, tags)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.rollback(context.WithoutCancel(ctx), urls)
		return domain.QueueTriplet{}, fmt.Errorf("create queue triplet for %s: %w", tenantKey, err)
	}

	dlqArn, err := r.Client.QueueARN(ctx, urls[2])
	if err != nil {
		r.rollback(context.WithoutCancel(ctx), urls)
		return domain.QueueTriplet{}, fmt.Errorf("resolve dlq arn for %s: %w", tenantKey, err)
	}
	if err := r.Client.SetRedrivePolicy(ctx, urls[0], dlqArn, maxReceiveCount); err != nil {
		r.rollback(context.WithoutCancel(ctx), urls)
		return domain.QueueTriplet{}, fmt.Errorf("set redrive policy for %s: %w", tenantKey, err)
	}

	t := domain.QueueTriplet{TenantKey: tenantKey, InputURL: urls[0], OutputURL: urls[1], DLQURL: urls[2], CreatedAt: r.Now()}
	if !t.Valid() {
		r.rollback(context.WithoutCancel(ctx), urls)
		return domain.QueueTriplet{}, fmt.Errorf("created triplet for %s failed the atomicity invariant", tenantKey)
	}

	if err := r.Store.InsertQueueTriplet(ctx, t); err != nil {
		return domain.QueueTriplet{}, fmt.Errorf("persist triplet for %s: %w", tenantKey, err)
	}
	return t, nil
}

// EnsureUnclaimed creates the singleton shared unclaimed queue if it
// does not already exist, returning its URL.
func (r *Registry) EnsureUnclaimed(ctx context.Context) (string, error) {
	if url, err := r.Client.GetQueueURL(ctx, UnclaimedQueueName); err != nil {
		return "", fmt.Errorf("lookup unclaimed queue: %w", err)
	} else if url != "" {
		return url, nil
	}
	url, err := r.Client.CreateQueue(ctx, UnclaimedQueueName, map[string]string{"managedBy": "webordinary-router"})
	if err != nil {
		return "", fmt.Errorf("create unclaimed queue: %w", err)
	}
	return url, nil
}

// Drop deletes a tenant's live queues and its persisted history.
func (r *Registry) Drop(ctx context.Context, tenantKey domain.TenantKey) error {
	t, ok, err := r.Get(ctx, tenantKey)
	if err != nil {
		return err
	}
	if ok {
		for _, url := range []string{t.InputURL, t.OutputURL, t.DLQURL} {
			if err := r.Client.DeleteQueue(ctx, url); err != nil {
				return fmt.Errorf("delete queue %s: %w", url, err)
			}
		}
	}
	return r.Store.DeleteQueueTriplets(ctx, tenantKey)
}

func (r *Registry) discoverByName(ctx context.Context, names ...string) ([]string, bool, error) {
	urls := make([]string, len(names))
	for i, name := range names {
		url, err := r.Client.GetQueueURL(ctx, name)
		if err != nil {
			return nil, false, fmt.Errorf("discover queue %s: %w", name, err)
		}
		if url == "" {
			return nil, false, nil
		}
		urls[i] = url
	}
	return urls, true, nil
}

// rollback best-effort deletes any queues that were created before a
// later step failed, so a partial triplet never persists (§4.3
// Failure semantics). Errors are swallowed: there is nothing more
// useful to do with a rollback failure than leave the orphan for the
// reaper.
func (r *Registry) rollback(ctx context.Context, urls []string) {
	for _, url := range urls {
		if url == "" {
			continue
		}
		_ = r.Client.DeleteQueue(ctx, url)
	}
}
