package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/webordinary/router/internal/contentcodec"
	"github.com/webordinary/router/internal/domain"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// ThreadMappingTTL is the window after which an untouched thread
// mapping becomes eligible for expiry (§3 ThreadMapping).
const ThreadMappingTTL = 30 * 24 * time.Hour

// Store is the hand-written query layer over the SQLite schema. Every
// method takes a context and is safe for concurrent use; SQLite
// serializes writers internally via the single-connection pool set up
// in Open.
type Store struct {
	db *sql.DB
}

// New wraps an already-open, already-migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetThreadMapping looks up a thread mapping by its threadId.
func (s *Store) GetThreadMapping(ctx context.Context, threadID string) (domain.ThreadMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, project_id, user_id, first_seen_at, last_activity_at, message_count, last_transport,
		       last_context, last_context_compression
		FROM thread_mappings WHERE thread_id = ?`, threadID)

	var tm domain.ThreadMapping
	var transport, compression string
	var blob []byte
	err := row.Scan(&tm.ThreadID, &tm.TenantKey.ProjectID, &tm.TenantKey.UserID,
		&tm.FirstSeenAt, &tm.LastActivityAt, &tm.MessageCount, &transport, &blob, &compression)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ThreadMapping{}, ErrNotFound
	}
	if err != nil {
		return domain.ThreadMapping{}, fmt.Errorf("get thread mapping: %w", err)
	}
	tm.LastTransport = domain.Transport(transport)
	if len(blob) > 0 {
		raw, err := contentcodec.Decompress(blob, contentcodec.Compression(compression))
		if err != nil {
			return domain.ThreadMapping{}, fmt.Errorf("decompress thread mapping context: %w", err)
		}
		tm.LastContext = json.RawMessage(raw)
	}
	return tm, nil
}

// RecordThreadActivity inserts a new thread mapping on first sight of
// threadID, or bumps messageCount/lastActivityAt on an existing one.
// The tenantKey of an existing mapping is never modified (§3 invariant:
// a threadId maps to exactly one tenantKey for its life). rawContext is
// the forwarded envelope payload for this message, stored
// zstd-compressed at rest (§3 Envelope compression); it is optional and
// left untouched when empty.
func (s *Store) RecordThreadActivity(ctx context.Context, threadID string, tenantKey domain.TenantKey, transport domain.Transport, rawContext json.RawMessage, now time.Time) error {
	var blob []byte
	compression := contentcodec.CompressionNone
	if len(rawContext) > 0 {
		blob, compression = contentcodec.Compress(rawContext)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE thread_mappings
		SET last_activity_at = ?, message_count = message_count + 1, last_transport = ?, expires_at = ?,
		    last_context = CASE WHEN ? > 0 THEN ? ELSE last_context END,
		    last_context_compression = CASE WHEN ? > 0 THEN ? ELSE last_context_compression END
		WHERE thread_id = ?`,
		now, string(transport), now.Add(ThreadMappingTTL),
		len(blob), blob, len(blob), string(compression), threadID)
	if err != nil {
		return fmt.Errorf("update thread mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_mappings
			(thread_id, project_id, user_id, first_seen_at, last_activity_at, message_count, last_transport, expires_at,
			 last_context, last_context_compression)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		threadID, tenantKey.ProjectID, tenantKey.UserID, now, now, string(transport), now.Add(ThreadMappingTTL),
		blob, string(compression))
	if err != nil {
		return fmt.Errorf("insert thread mapping: %w", err)
	}
	return nil
}

// CountExpiredThreadMappings reports how many mappings have passed
// their TTL as of now, for the reaper's report-only obligation (§4.7).
func (s *Store) CountExpiredThreadMappings(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM thread_mappings WHERE expires_at <= ?`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired thread mappings: %w", err)
	}
	return n, nil
}

// GetSession looks up the tenant a sessionId is bound to.
func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, project_id, user_id, created_at FROM session_index WHERE session_id = ?`, sessionID)
	var rec domain.SessionRecord
	err := row.Scan(&rec.SessionID, &rec.TenantKey.ProjectID, &rec.TenantKey.UserID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// UpsertSession binds a sessionId to a tenant. On conflict the first
// createdAt is kept and the tenant binding is replaced.
func (s *Store) UpsertSession(ctx context.Context, rec domain.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_index (session_id, project_id, user_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET project_id = excluded.project_id, user_id = excluded.user_id`,
		rec.SessionID, rec.TenantKey.ProjectID, rec.TenantKey.UserID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetTenantConfig looks up the static identity → tenant/repo binding.
func (s *Store) GetTenantConfig(ctx context.Context, identity string) (domain.TenantConfigEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, project_id, user_id, repo_url FROM tenant_config WHERE identity = ?`, identity)
	var entry domain.TenantConfigEntry
	err := row.Scan(&entry.Identity, &entry.TenantKey.ProjectID, &entry.TenantKey.UserID, &entry.RepoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TenantConfigEntry{}, ErrNotFound
	}
	if err != nil {
		return domain.TenantConfigEntry{}, fmt.Errorf("get tenant config: %w", err)
	}
	return entry, nil
}

// UpsertTenantConfig seeds or replaces one row of the operator-
// maintained tenant-config table (normally loaded from the YAML
// config file at startup, see internal/config).
func (s *Store) UpsertTenantConfig(ctx context.Context, entry domain.TenantConfigEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_config (identity, project_id, user_id, repo_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET project_id = excluded.project_id, user_id = excluded.user_id, repo_url = excluded.repo_url`,
		entry.Identity, entry.TenantKey.ProjectID, entry.TenantKey.UserID, entry.RepoURL)
	if err != nil {
		return fmt.Errorf("upsert tenant config: %w", err)
	}
	return nil
}

// GetLatestQueueTriplet returns the newest persisted triplet for a
// tenant, if any (§4.3: "the registry always reads the newest").
func (s *Store) GetLatestQueueTriplet(ctx context.Context, tenantKey domain.TenantKey) (domain.QueueTriplet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, user_id, created_at, input_url, output_url, dlq_url
		FROM queue_registry WHERE project_id = ? AND user_id = ?
		ORDER BY created_at DESC LIMIT 1`, tenantKey.ProjectID, tenantKey.UserID)
	var t domain.QueueTriplet
	err := row.Scan(&t.TenantKey.ProjectID, &t.TenantKey.UserID, &t.CreatedAt, &t.InputURL, &t.OutputURL, &t.DLQURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QueueTriplet{}, ErrNotFound
	}
	if err != nil {
		return domain.QueueTriplet{}, fmt.Errorf("get latest queue triplet: %w", err)
	}
	return t, nil
}

// InsertQueueTriplet appends a new triplet record. Existing rows for
// the tenant are left in place as an audit trail (§4.3 Persistence).
func (s *Store) InsertQueueTriplet(ctx context.Context, t domain.QueueTriplet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_registry (project_id, user_id, created_at, input_url, output_url, dlq_url)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.TenantKey.ProjectID, t.TenantKey.UserID, t.CreatedAt, t.InputURL, t.OutputURL, t.DLQURL)
	if err != nil {
		return fmt.Errorf("insert queue triplet: %w", err)
	}
	return nil
}

// ListLatestQueueTriplets returns the newest triplet row for every
// tenant the registry has ever created queues for, for the reaper's
// orphan sweep (§4.7).
func (s *Store) ListLatestQueueTriplets(ctx context.Context) ([]domain.QueueTriplet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, user_id, created_at, input_url, output_url, dlq_url
		FROM queue_registry qr
		WHERE created_at = (
			SELECT max(created_at) FROM queue_registry
			WHERE project_id = qr.project_id AND user_id = qr.user_id
		)`)
	if err != nil {
		return nil, fmt.Errorf("list queue triplets: %w", err)
	}
	defer rows.Close()

	var out []domain.QueueTriplet
	for rows.Next() {
		var t domain.QueueTriplet
		if err := rows.Scan(&t.TenantKey.ProjectID, &t.TenantKey.UserID, &t.CreatedAt, &t.InputURL, &t.OutputURL, &t.DLQURL); err != nil {
			return nil, fmt.Errorf("scan queue triplet: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteQueueTriplets removes every persisted row for a tenant,
// invoked by the reaper after deleting the queues themselves.
func (s *Store) DeleteQueueTriplets(ctx context.Context, tenantKey domain.TenantKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue_registry WHERE project_id = ? AND user_id = ?`,
		tenantKey.ProjectID, tenantKey.UserID)
	if err != nil {
		return fmt.Errorf("delete queue triplets: %w", err)
	}
	return nil
}

// GetOwnership looks up the current ownership record for a tenant.
func (s *Store) GetOwnership(ctx context.Context, tenantKey domain.TenantKey) (domain.OwnershipRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, user_id, worker_id, status, last_heartbeat_at
		FROM ownership_records WHERE project_id = ? AND user_id = ?`, tenantKey.ProjectID, tenantKey.UserID)
	var rec domain.OwnershipRecord
	var status string
	err := row.Scan(&rec.TenantKey.ProjectID, &rec.TenantKey.UserID, &rec.WorkerID, &status, &rec.LastHeartbeatAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OwnershipRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.OwnershipRecord{}, fmt.Errorf("get ownership: %w", err)
	}
	rec.Status = domain.OwnershipStatus(status)
	return rec, nil
}

// UpsertOwnership writes a worker's claim or heartbeat. Per §3 the
// core never calls this in production; it exists for workers (via a
// future worker-facing surface) and for seeding fixtures in tests.
func (s *Store) UpsertOwnership(ctx context.Context, rec domain.OwnershipRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ownership_records (project_id, user_id, worker_id, status, last_heartbeat_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET
			worker_id = excluded.worker_id, status = excluded.status, last_heartbeat_at = excluded.last_heartbeat_at`,
		rec.TenantKey.ProjectID, rec.TenantKey.UserID, rec.WorkerID, string(rec.Status), rec.LastHeartbeatAt)
	if err != nil {
		return fmt.Errorf("upsert ownership: %w", err)
	}
	return nil
}

// ListActiveOwnership returns every record currently marked active,
// for the reaper's stale-heartbeat sweep (§4.7).
func (s *Store) ListActiveOwnership(ctx context.Context) ([]domain.OwnershipRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, user_id, worker_id, status, last_heartbeat_at
		FROM ownership_records WHERE status = ?`, string(domain.OwnershipActive))
	if err != nil {
		return nil, fmt.Errorf("list active ownership: %w", err)
	}
	defer rows.Close()

	var out []domain.OwnershipRecord
	for rows.Next() {
		var rec domain.OwnershipRecord
		var status string
		if err := rows.Scan(&rec.TenantKey.ProjectID, &rec.TenantKey.UserID, &rec.WorkerID, &status, &rec.LastHeartbeatAt); err != nil {
			return nil, fmt.Errorf("scan ownership: %w", err)
		}
		rec.Status = domain.OwnershipStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkOwnershipInactive flips an active record to inactive, used by
// the reaper's stale-ownership sweep.
func (s *Store) MarkOwnershipInactive(ctx context.Context, tenantKey domain.TenantKey) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ownership_records SET status = ? WHERE project_id = ? AND user_id = ?`,
		string(domain.OwnershipInactive), tenantKey.ProjectID, tenantKey.UserID)
	if err != nil {
		return fmt.Errorf("mark ownership inactive: %w", err)
	}
	return nil
}
