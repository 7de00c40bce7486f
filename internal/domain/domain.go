// Package domain holds the entities shared by every routing and
// correlation component: tenant keys, thread mappings, queue triplets,
// ownership records, and the wire messages exchanged over the queues.
package domain

import (
	"encoding/json"
	"time"
)

// Transport identifies the ingress channel a message arrived on.
type Transport string

const (
	TransportEmail Transport = "email"
	TransportSMS   Transport = "sms"
	TransportChat  Transport = "chat"
)

// TenantKey identifies the unit of ownership, queue allocation, and git
// branch family: a (projectId, userId) pair.
type TenantKey struct {
	ProjectID string
	UserID    string
}

// String returns the canonical "projectId#userId" form.
func (k TenantKey) String() string {
	return k.ProjectID + "#" + k.UserID
}

// IsZero reports whether the key carries no identity.
func (k TenantKey) IsZero() bool {
	return k.ProjectID == "" && k.UserID == ""
}

// DefaultUnknownTenant is the reserved fallback used when resolution
// finds no session, thread mapping, or tenant-config entry.
var DefaultUnknownTenant = TenantKey{ProjectID: "default", UserID: "unknown"}

// ThreadMapping is the durable record tying a threadId to the tenant
// it belongs to for the lifetime of the conversation.
type ThreadMapping struct {
	ThreadID       string
	TenantKey      TenantKey
	FirstSeenAt    time.Time
	LastActivityAt time.Time
	MessageCount   int64
	LastTransport  Transport

	// LastContext is the most recent raw envelope payload forwarded on
	// this thread (original mail headers, SMS provider metadata, chat
	// attachment metadata), always decompressed: it is stored
	// zstd-compressed at rest, but this field carries the plain
	// json.RawMessage form regardless of how it was stored.
	LastContext json.RawMessage
}

// QueueTriplet is the set of SQS-style queues backing one tenant.
type QueueTriplet struct {
	TenantKey TenantKey
	InputURL  string
	OutputURL string
	DLQURL    string
	CreatedAt time.Time
}

// Valid reports the triplet invariant: either all three URLs are
// present, or none are.
func (t QueueTriplet) Valid() bool {
	n := 0
	if t.InputURL != "" {
		n++
	}
	if t.OutputURL != "" {
		n++
	}
	if t.DLQURL != "" {
		n++
	}
	return n == 0 || n == 3
}

// OwnershipStatus is the lifecycle state a worker reports for a tenant.
type OwnershipStatus string

const (
	OwnershipActive   OwnershipStatus = "active"
	OwnershipInactive OwnershipStatus = "inactive"
)

// OwnershipRecord is the worker-written claim of exclusive handling for
// a tenant key. The core only ever reads this record.
type OwnershipRecord struct {
	TenantKey       TenantKey
	WorkerID        string
	Status          OwnershipStatus
	LastHeartbeatAt time.Time
}

// SessionRecord backs the SessionIndex table: a session's tenant
// binding, read-only to the core.
type SessionRecord struct {
	SessionID string
	TenantKey TenantKey
	CreatedAt time.Time
}

// TenantConfigEntry is one row of the operator-maintained sender
// identity → tenant table.
type TenantConfigEntry struct {
	Identity  string
	TenantKey TenantKey
	RepoURL   string
}

// MessageType discriminates the three queue wire payloads.
type MessageType string

const (
	MessageTypeWork         MessageType = "work"
	MessageTypeClaimRequest MessageType = "claim_request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeInterrupt    MessageType = "interrupt"
)

// WorkMessage is the payload delivered to a tenant's input queue.
type WorkMessage struct {
	Type        MessageType     `json:"type"`
	CommandID   string          `json:"commandId"`
	SessionID   string          `json:"sessionId"`
	TenantKey   TenantKey       `json:"-"`
	ProjectID   string          `json:"projectId"`
	UserID      string          `json:"userId"`
	ThreadID    string          `json:"threadId"`
	Instruction string          `json:"instruction"`
	RepoURL     string          `json:"repoUrl"`
	UserEmail   string          `json:"userEmail,omitempty"`
	Source      Transport       `json:"source"`
	Timestamp   time.Time       `json:"timestamp"`
	Context     json.RawMessage `json:"context,omitempty"`
	// InterruptedBy is set only on the synthetic type="interrupt"
	// message the correlator enqueues ahead of new work (§4.6).
	InterruptedBy string `json:"interruptedBy,omitempty"`
}

// ClaimRequest is the payload delivered to the shared unclaimed queue.
type ClaimRequest struct {
	Type      MessageType `json:"type"`
	TenantKey TenantKey   `json:"-"`
	ProjectID string      `json:"projectId"`
	UserID    string      `json:"userId"`
	CommandID string      `json:"commandId"`
	Timestamp time.Time   `json:"timestamp"`
}

// ResponseMessage is the payload a worker writes to a tenant's output
// queue. Correlation is by CommandID alone.
type ResponseMessage struct {
	CommandID     string    `json:"commandId"`
	SessionID     string    `json:"sessionId"`
	Success       bool      `json:"success"`
	Summary       string    `json:"summary,omitempty"`
	FilesChanged  []string  `json:"filesChanged,omitempty"`
	Error         string    `json:"error,omitempty"`
	Interrupted   bool      `json:"interrupted,omitempty"`
	InterruptedBy string    `json:"interruptedBy,omitempty"`
	CompletedAt   time.Time `json:"completedAt,omitempty"`
}

// IngressMsg is the tagged variant the core consumes from any
// transport adapter. TransportThreadToken is interpreted according to
// Source.
type IngressMsg struct {
	Source    Transport
	SessionID string

	// SenderIdentity is the email address, phone number, or chat user
	// ID the message came from — used by the tenant resolver's static
	// lookup (§4.2 step 3).
	SenderIdentity string

	Instruction string

	// TransportThreadToken is the transport-native continuity token:
	// the email References/In-Reply-To/Message-ID value, the SMS
	// conversation ID (or empty, to fall back to from/to pairing), or
	// the chat thread/message ID.
	TransportThreadToken string

	// ThreadIDRaw, when set, is a threadId the caller has already
	// computed (e.g. a client replaying a known conversation). The
	// resolver's step 2 consults ThreadMapping with this value.
	ThreadIDRaw string

	// From/To support the SMS from/to canonicalization rule
	// and are reused as generic "from/to" fields by chat adapters that
	// have a symmetric pairing concept.
	From string
	To   string

	// Raw is the forward-only opaque envelope copied verbatim into
	// WorkMessage.Context.
	Raw json.RawMessage
}
