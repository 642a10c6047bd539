package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/syndicate/internal/workflow"
)

// IsSynced reports whether sourceID has an active ledger entry. Deleted
// entries are tombstones and do not count as synced.
func (s *Store) IsSynced(ctx context.Context, sourceID string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM ledger_entries WHERE source_id = ?`, sourceID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("is synced", err)
	}
	return workflow.LedgerStatus(status) == workflow.LedgerActive, nil
}

// RecordSynced upserts the ledger entry for sourceID and appends one audit
// line.
//
// Idempotent: repeated calls with the same arguments preserve the original
// synced_at and only refresh updated_at. A previously tombstoned entry is
// revived as active without losing its history.
func (s *Store) RecordSynced(ctx context.Context, sourceID, destinationID string) error {
	now := encodeTime(s.now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (source_id, destination_id, status, synced_at, updated_at)
		VALUES (?, ?, 'active', ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			destination_id = excluded.destination_id,
			status = 'active',
			updated_at = excluded.updated_at
	`, sourceID, destinationID, now, now)
	if err != nil {
		return storageErr("record synced", err)
	}

	return s.appendAudit(ctx, sourceID, "synced",
		fmt.Sprintf("destination_id=%s", destinationID))
}

// MarkDeleted tombstones the entry for sourceID. The entry stays in the
// table for history; only its status flips. Unknown ids are a no-op.
func (s *Store) MarkDeleted(ctx context.Context, sourceID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries SET status = 'deleted', updated_at = ?
		WHERE source_id = ?
	`, encodeTime(s.now()), sourceID)
	if err != nil {
		return storageErr("mark deleted", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return s.appendAudit(ctx, sourceID, "deleted", "")
	}
	return nil
}

// Entry returns the ledger entry for sourceID, or nil if none exists.
func (s *Store) Entry(ctx context.Context, sourceID string) (*workflow.LedgerEntry, error) {
	var e workflow.LedgerEntry
	var syncedAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT source_id, destination_id, status, synced_at, updated_at
		FROM ledger_entries WHERE source_id = ?
	`, sourceID).Scan(&e.SourceID, &e.DestinationID, &e.Status, &syncedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read entry", err)
	}
	e.SyncedAt = decodeTime(syncedAt)
	e.UpdatedAt = decodeTime(updatedAt)
	return &e, nil
}

// Entries lists every ledger entry ordered by source id.
func (s *Store) Entries(ctx context.Context) ([]workflow.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, destination_id, status, synced_at, updated_at
		FROM ledger_entries ORDER BY source_id
	`)
	if err != nil {
		return nil, storageErr("list entries", err)
	}
	defer rows.Close()

	var out []workflow.LedgerEntry
	for rows.Next() {
		var e workflow.LedgerEntry
		var syncedAt, updatedAt string
		if err := rows.Scan(&e.SourceID, &e.DestinationID, &e.Status, &syncedAt, &updatedAt); err != nil {
			return nil, storageErr("scan entry", err)
		}
		e.SyncedAt = decodeTime(syncedAt)
		e.UpdatedAt = decodeTime(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AuditLine is one line of the bounded audit log.
type AuditLine struct {
	At       time.Time
	SourceID string
	Action   string
	Detail   string
}

// appendAudit writes one audit line and trims the log to capacity,
// dropping the oldest lines beyond it.
func (s *Store) appendAudit(ctx context.Context, sourceID, action, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (at, source_id, action, detail) VALUES (?, ?, ?, ?)
	`, encodeTime(s.now()), sourceID, action, detail)
	if err != nil {
		return storageErr("append audit", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM audit_log WHERE id NOT IN (
			SELECT id FROM audit_log ORDER BY id DESC LIMIT ?
		)
	`, s.auditCap)
	return storageErr("trim audit", err)
}

// AuditLog returns the retained audit lines, oldest first.
func (s *Store) AuditLog(ctx context.Context) ([]AuditLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, source_id, action, detail FROM audit_log ORDER BY id
	`)
	if err != nil {
		return nil, storageErr("read audit", err)
	}
	defer rows.Close()

	var out []AuditLine
	for rows.Next() {
		var l AuditLine
		var at string
		if err := rows.Scan(&at, &l.SourceID, &l.Action, &l.Detail); err != nil {
			return nil, storageErr("scan audit", err)
		}
		l.At = decodeTime(at)
		out = append(out, l)
	}
	return out, rows.Err()
}
