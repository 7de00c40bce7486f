// Package correlator implements §4.6: matching asynchronous worker
// responses back to the command that produced them, with timeout,
// interrupt, and cancellation semantics. One long-poll loop runs per
// tenant with at least one pending command.
package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webordinary/router/internal/awsqueue"
	"github.com/webordinary/router/internal/domain"
)

const (
	// DefaultTimeout is the default deadline for a pending command
	// (§4.6: "default 300s").
	DefaultTimeout = 300 * time.Second

	// deadlineCheckInterval bounds how long the per-tenant loop can go
	// between checking pending deadlines (§4.6: "at least every 2s").
	deadlineCheckInterval = 2 * time.Second

	pollWaitSeconds  = 5
	pollBatchSize    = 10
	interruptAttrKey = "priority"
	interruptAttrVal = "interrupt"
)

// QueuePoller is the subset of SQS operations the correlator needs
// against a tenant's output (and input, for interrupts) queue.
type QueuePoller interface {
	SendMessage(ctx context.Context, url, body string, attrs map[string]string) error
	ReceiveMessages(ctx context.Context, url string, waitSeconds, maxMessages int32) ([]awsqueue.Message, error)
	DeleteMessage(ctx context.Context, url, receiptHandle string) error
}

// pending is one outstanding command awaiting a response.
type pending struct {
	commandID string
	tenantKey domain.TenantKey
	threadID  string
	deadline  time.Time
	done      chan domain.ResponseMessage
	once      sync.Once
}

func (p *pending) resolve(resp domain.ResponseMessage) {
	p.once.Do(func() { p.done <- resp })
}

// tenantLoop is the per-tenant poll-loop state.
type tenantLoop struct {
	tenantKey domain.TenantKey
	outputURL string
	cancel    context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pending // commandId -> pending
}

// Correlator registers pending commands and resolves them as
// responses, timeouts, interrupts, or cancellations arrive.
type Correlator struct {
	Poller QueuePoller
	Log    *slog.Logger
	Now    func() time.Time

	mu    sync.Mutex
	loops map[string]*tenantLoop // tenantKey.String() -> loop
}

func New(poller QueuePoller, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{
		Poller: poller,
		Log:    log,
		Now:    time.Now,
		loops:  make(map[string]*tenantLoop),
	}
}

// Submit registers a pending entry for commandId and ensures the
// tenant's output-queue poll loop is running. It does not place the
// work message itself; callers (typically the router) have already
// done that by the time Submit is called, matching §4.6's "via the
// router path" option. Interrupt-before-new-work ordering (§4.6,
// property I5) is the caller's responsibility: router.Router checks
// HasPending and calls Interrupt for the tenant before calling Submit
// for the new command (see router.Route).
func (c *Correlator) Submit(ctx context.Context, triplet domain.QueueTriplet, commandID, threadID string, timeout time.Duration) <-chan domain.ResponseMessage {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	loop := c.loopFor(triplet)

	p := &pending{
		commandID: commandID,
		tenantKey: triplet.TenantKey,
		threadID:  threadID,
		deadline:  c.Now().Add(timeout),
		done:      make(chan domain.ResponseMessage, 1),
	}

	loop.mu.Lock()
	loop.pending[commandID] = p
	loop.mu.Unlock()

	return p.done
}

// HasPending reports whether tenantKey has any outstanding pending
// command, so a caller can decide whether an interrupt is needed
// before routing new work for that tenant (§4.6, invariant I5).
func (c *Correlator) HasPending(tenantKey domain.TenantKey) bool {
	c.mu.Lock()
	loop, ok := c.loops[tenantKey.String()]
	c.mu.Unlock()
	if !ok {
		return false
	}
	loop.mu.Lock()
	defer loop.mu.Unlock()
	return len(loop.pending) > 0
}

// Interrupt resolves every pending entry for tenantKey with
// interrupted=true, and enqueues a high-priority type="interrupt" work
// message so the worker drops what it is doing (§4.6).
func (c *Correlator) Interrupt(ctx context.Context, triplet domain.QueueTriplet, reason string) error {
	c.mu.Lock()
	loop, ok := c.loops[triplet.TenantKey.String()]
	c.mu.Unlock()

	if ok {
		loop.mu.Lock()
		for commandID, p := range loop.pending {
			p.resolve(domain.ResponseMessage{
				CommandID:     commandID,
				Interrupted:   true,
				Summary:       "Interrupted: " + reason,
				InterruptedBy: reason,
				CompletedAt:   c.Now(),
			})
			delete(loop.pending, commandID)
		}
		loop.mu.Unlock()
	}

	interrupt := domain.WorkMessage{
		Type:          domain.MessageTypeInterrupt,
		SessionID:     triplet.TenantKey.String(),
		TenantKey:     triplet.TenantKey,
		ProjectID:     triplet.TenantKey.ProjectID,
		UserID:        triplet.TenantKey.UserID,
		Timestamp:     c.Now(),
		InterruptedBy: reason,
	}
	body, err := json.Marshal(interrupt)
	if err != nil {
		return fmt.Errorf("marshal interrupt message: %w", err)
	}
	return c.Poller.SendMessage(ctx, triplet.InputURL, string(body), map[string]string{interruptAttrKey: interruptAttrVal})
}

// Cancel removes a single pending entry and resolves it with a
// cancellation. Safe to race against an arriving response: whichever
// call reaches the pending entry first wins via sync.Once, the other
// is a silent no-op (§4.6 Cancellation).
func (c *Correlator) Cancel(commandID string) bool {
	c.mu.Lock()
	loops := make([]*tenantLoop, 0, len(c.loops))
	for _, l := range c.loops {
		loops = append(loops, l)
	}
	c.mu.Unlock()

	for _, loop := range loops {
		loop.mu.Lock()
		p, ok := loop.pending[commandID]
		if ok {
			delete(loop.pending, commandID)
		}
		loop.mu.Unlock()
		if ok {
			p.resolve(domain.ResponseMessage{CommandID: commandID, Error: "cancelled"})
			return true
		}
	}
	return false
}

func (c *Correlator) loopFor(triplet domain.QueueTriplet) *tenantLoop {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := triplet.TenantKey.String()
	if loop, ok := c.loops[key]; ok {
		return loop
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := &tenantLoop{
		tenantKey: triplet.TenantKey,
		outputURL: triplet.OutputURL,
		cancel:    cancel,
		pending:   make(map[string]*pending),
	}
	c.loops[key] = loop
	go c.runLoop(ctx, loop)
	return loop
}

// runLoop long-polls a tenant's output queue, resolving matched
// commandIds and expiring deadlines, until ctx is cancelled.
func (c *Correlator) runLoop(ctx context.Context, loop *tenantLoop) {
	ticker := time.NewTicker(deadlineCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.expireDeadlines(loop)
		default:
		}

		msgs, err := c.Poller.ReceiveMessages(ctx, loop.outputURL, pollWaitSeconds, pollBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.Log.Warn("poll output queue failed, retrying after backoff", "tenantKey", loop.tenantKey.String(), "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			c.handleMessage(ctx, loop, m)
		}

		c.expireDeadlines(loop)

		if len(msgs) == 0 {
			// A real SQS ReceiveMessage call already blocks for
			// pollWaitSeconds; an in-memory poller (tests) returns
			// immediately, so pace the loop by hand to avoid spinning.
			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}
}

func (c *Correlator) handleMessage(ctx context.Context, loop *tenantLoop, m awsqueue.Message) {
	var resp domain.ResponseMessage
	if err := json.Unmarshal([]byte(m.Body), &resp); err != nil {
		c.Log.Warn("dropping unparseable response", "tenantKey", loop.tenantKey.String(), "error", err)
		_ = c.Poller.DeleteMessage(ctx, loop.outputURL, m.ReceiptHandle)
		return
	}

	loop.mu.Lock()
	p, ok := loop.pending[resp.CommandID]
	if ok {
		delete(loop.pending, resp.CommandID)
	}
	loop.mu.Unlock()

	if !ok {
		// Unknown commandId: belongs to a future that already timed
		// out. Acknowledge it so it does not redeliver forever.
		_ = c.Poller.DeleteMessage(ctx, loop.outputURL, m.ReceiptHandle)
		return
	}

	// Delete before resolve: accepts losing a response on a crash
	// between delete and resolve (the timeout handles it) rather than
	// risking redelivering an already-resolved response.
	if err := c.Poller.DeleteMessage(ctx, loop.outputURL, m.ReceiptHandle); err != nil {
		c.Log.Warn("failed to delete correlated response", "commandId", resp.CommandID, "error", err)
	}
	p.resolve(resp)
}

func (c *Correlator) expireDeadlines(loop *tenantLoop) {
	now := c.Now()
	loop.mu.Lock()
	var expired []*pending
	for commandID, p := range loop.pending {
		if now.After(p.deadline) {
			expired = append(expired, p)
			delete(loop.pending, commandID)
		}
	}
	loop.mu.Unlock()

	for _, p := range expired {
		p.resolve(domain.ResponseMessage{CommandID: p.commandID, Error: "timeout"})
	}
}

// Stop tears down every tenant poll loop, first resolving every
// outstanding pending with a cancellation error so no caller blocks
// forever on a future that will never arrive (§6 Exit behavior).
func (c *Correlator) Stop() {
	c.mu.Lock()
	loops := make([]*tenantLoop, 0, len(c.loops))
	for _, loop := range c.loops {
		loops = append(loops, loop)
	}
	c.mu.Unlock()

	for _, loop := range loops {
		loop.mu.Lock()
		pendings := make([]*pending, 0, len(loop.pending))
		for commandID, p := range loop.pending {
			pendings = append(pendings, p)
			delete(loop.pending, commandID)
		}
		loop.mu.Unlock()

		for _, p := range pendings {
			p.resolve(domain.ResponseMessage{CommandID: p.commandID, Error: "shutdown"})
		}
		loop.cancel()
	}
}
