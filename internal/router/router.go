// Package router implements §4.4: the orchestration of thread
// extraction, tenant resolution, queue provisioning, and ownership
// checking into a single routing decision per inbound message.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/webordinary/router/internal/correlator"
	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/tenantresolve"
	"github.com/webordinary/router/internal/threading"
	"github.com/webordinary/router/internal/util/sanitize"
	"github.com/webordinary/router/internal/util/timefmt"
	"github.com/webordinary/router/internal/validate"
)

// logInstructionMaxLen bounds how much of an untrusted instruction
// body is echoed into a log line (§7 logging).
const logInstructionMaxLen = 200

// TenantResolver resolves an ingress message to a tenant and repoUrl.
type TenantResolver interface {
	Resolve(ctx context.Context, ingress domain.IngressMsg, threadID string) (tenantresolve.Result, error)
}

// QueueRegistry provisions and looks up per-tenant queue triplets.
type QueueRegistry interface {
	Ensure(ctx context.Context, tenantKey domain.TenantKey) (domain.QueueTriplet, error)
	EnsureUnclaimed(ctx context.Context) (string, error)
}

// OwnershipChecker reports whether a tenant currently has an active
// worker attached.
type OwnershipChecker interface {
	IsOwning(ctx context.Context, tenantKey domain.TenantKey) bool
}

// QueueSender is the narrow send-only surface the router needs.
type QueueSender interface {
	SendMessage(ctx context.Context, url, body string, attrs map[string]string) error
}

// ActivityRecorder records thread activity once a message has been
// successfully routed, so future messages on the same thread resolve
// without needing a sessionId.
type ActivityRecorder interface {
	RecordThreadActivity(ctx context.Context, threadID string, tenantKey domain.TenantKey, transport domain.Transport, rawContext json.RawMessage, now time.Time) error
}

// RoutingDecision is the router's output (§4.4 Contract).
type RoutingDecision struct {
	TenantKey      domain.TenantKey
	InputURL       string
	OutputURL      string
	NeedsUnclaimed bool
	CommandID      string
	ThreadID       string
}

// Router ties together the thread extractor, tenant resolver, queue
// registry, and ownership store into the §4.4 pipeline.
type Router struct {
	Resolver  TenantResolver
	Registry  QueueRegistry
	Ownership OwnershipChecker
	Sender    QueueSender
	Activity  ActivityRecorder
	Log       *slog.Logger

	// Correlator, if set, is consulted on every Route call to enforce
	// interrupt-before-new-work ordering for a tenant with an
	// outstanding pending command (§4.6, invariant I5), and each routed
	// command is submitted to it as pending. nil disables both.
	Correlator *correlator.Correlator

	// Now and NewCommandID are overridable for deterministic tests.
	Now          func() time.Time
	NewCommandID func() string

	locks sync.Map // domain.TenantKey.String() -> *sync.Mutex
}

func New(resolver TenantResolver, registry QueueRegistry, ownership OwnershipChecker, sender QueueSender, activity ActivityRecorder, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		Resolver: resolver, Registry: registry, Ownership: ownership, Sender: sender, Activity: activity, Log: log,
		Now:          time.Now,
		NewCommandID: func() string { return uuid.NewString() },
	}
}

// Route executes the full §4.4 pipeline for one inbound message.
func (r *Router) Route(ctx context.Context, ingress domain.IngressMsg) (RoutingDecision, error) {
	threadID := ingress.ThreadIDRaw
	if threadID == "" {
		threadID = threading.Extract(ingress)
	}

	resolved, err := r.Resolver.Resolve(ctx, ingress, threadID)
	if err != nil {
		return RoutingDecision{}, fmt.Errorf("resolve tenant: %w", err)
	}
	tenantKey := resolved.TenantKey

	// A message that carries no sessionId is keyed to its thread.
	sessionID := ingress.SessionID
	if sessionID == "" {
		sessionID = threadID
	}

	triplet, err := r.Registry.Ensure(ctx, tenantKey)
	if err != nil {
		return RoutingDecision{}, fmt.Errorf("ensure queue triplet: %w", err)
	}

	msg := domain.WorkMessage{
		Type:        domain.MessageTypeWork,
		CommandID:   r.NewCommandID(),
		SessionID:   sessionID,
		TenantKey:   tenantKey,
		ProjectID:   tenantKey.ProjectID,
		UserID:      tenantKey.UserID,
		ThreadID:    threadID,
		Instruction: ingress.Instruction,
		RepoURL:     resolved.RepoURL,
		Source:      ingress.Source,
		Timestamp:   r.Now(),
		Context:     ingress.Raw,
	}

	if err := validate.WorkMessage(msg); err != nil {
		return RoutingDecision{}, fmt.Errorf("reject message for %s: %w", tenantKey, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return RoutingDecision{}, fmt.Errorf("marshal work message: %w", err)
	}

	if r.Correlator != nil && r.Correlator.HasPending(tenantKey) {
		if err := r.Correlator.Interrupt(ctx, triplet, "newer command "+msg.CommandID+" arrived"); err != nil {
			r.Log.Warn("interrupt of prior pending command failed, proceeding with new work",
				"tenantKey", tenantKey.String(), "instruction", sanitize.ForLog(ingress.Instruction, logInstructionMaxLen), "error", err)
		}
	}
	if r.Correlator != nil {
		r.Correlator.Submit(ctx, triplet, msg.CommandID, threadID, 0)
	}

	attrs := map[string]string{
		"projectId": tenantKey.ProjectID,
		"userId":    tenantKey.UserID,
		"source":    string(msg.Source),
		"timestamp": timefmt.Format(msg.Timestamp),
	}
	sendErr := r.sendOrdered(ctx, tenantKey, triplet.InputURL, body, attrs)

	owned := r.Ownership.IsOwning(ctx, tenantKey)

	var claimErr error
	if !owned {
		claimErr = r.announceUnclaimed(ctx, tenantKey, msg.CommandID)
	}

	if sendErr != nil && claimErr != nil {
		return RoutingDecision{}, fmt.Errorf("route %s: both work send and claim announce failed: work=%v claim=%v", tenantKey, sendErr, claimErr)
	}
	if sendErr != nil {
		return RoutingDecision{}, fmt.Errorf("send work message for %s: %w", tenantKey, sendErr)
	}
	if claimErr != nil {
		r.Log.Warn("claim announce failed, work message still delivered",
			"tenantKey", tenantKey.String(), "instruction", sanitize.ForLog(ingress.Instruction, logInstructionMaxLen), "error", claimErr)
	}

	if r.Activity != nil {
		if err := r.Activity.RecordThreadActivity(ctx, threadID, tenantKey, ingress.Source, ingress.Raw, r.Now()); err != nil {
			r.Log.Warn("failed to record thread activity", "threadId", threadID, "error", err)
		}
	}

	return RoutingDecision{
		TenantKey:      tenantKey,
		InputURL:       triplet.InputURL,
		OutputURL:      triplet.OutputURL,
		NeedsUnclaimed: !owned,
		CommandID:      msg.CommandID,
		ThreadID:       threadID,
	}, nil
}

func (r *Router) announceUnclaimed(ctx context.Context, tenantKey domain.TenantKey, commandID string) error {
	unclaimedURL, err := r.Registry.EnsureUnclaimed(ctx)
	if err != nil {
		return fmt.Errorf("ensure unclaimed queue: %w", err)
	}
	claim := domain.ClaimRequest{
		Type:      domain.MessageTypeClaimRequest,
		TenantKey: tenantKey,
		ProjectID: tenantKey.ProjectID,
		UserID:    tenantKey.UserID,
		CommandID: commandID,
		Timestamp: r.Now(),
	}
	body, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("marshal claim request: %w", err)
	}
	return r.retrySend(ctx, unclaimedURL, string(body), nil)
}

// sendOrdered serializes sends for a single tenant behind a per-tenant
// mutex so concurrent Route calls for the same tenant cannot reorder
// the input queue (§5 Ordering guarantees).
func (r *Router) sendOrdered(ctx context.Context, tenantKey domain.TenantKey, url string, body []byte, attrs map[string]string) error {
	mu := r.tenantLock(tenantKey)
	mu.Lock()
	defer mu.Unlock()
	return r.retrySend(ctx, url, string(body), attrs)
}

func (r *Router) tenantLock(tenantKey domain.TenantKey) *sync.Mutex {
	v, _ := r.locks.LoadOrStore(tenantKey.String(), &sync.Mutex{})
	return v.(*sync.Mutex)
}

// retrySend retries a transient send failure once with a short
// exponential backoff (§4.4/§7).
func (r *Router) retrySend(ctx context.Context, url, body string, attrs map[string]string) error {
	op := func() (struct{}, error) {
		return struct{}{}, r.Sender.SendMessage(ctx, url, body, attrs)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(2),
	)
	return err
}
