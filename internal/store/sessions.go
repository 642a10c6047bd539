package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/syndicate/internal/workflow"
)

// SaveSession persists a session and its ordered results in one
// transaction. Saving the same session twice replaces its results, so the
// engine can persist on cooperative stop and again at normal end.
func (s *Store) SaveSession(ctx context.Context, sess *workflow.SyncSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("save session: begin", err)
	}
	defer tx.Rollback() // no-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, start_time, end_time, total_records, posted, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			total_records = excluded.total_records,
			posted = excluded.posted,
			skipped = excluded.skipped,
			failed = excluded.failed
	`, sess.ID, encodeTime(sess.StartTime), encodeTime(sess.EndTime),
		sess.TotalRecords, sess.Posted, sess.Skipped, sess.Failed)
	if err != nil {
		return storageErr("save session", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_results WHERE session_id = ?`, sess.ID); err != nil {
		return storageErr("save session: clear results", err)
	}

	for i, r := range sess.Results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_results
			(session_id, ord, source_id, label, status, message, timestamp, destination_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, i, r.SourceID, r.Label, string(r.Status), r.Message,
			encodeTime(r.Timestamp), r.DestinationID)
		if err != nil {
			return storageErr("save session: result", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("save session: commit", err)
	}
	return nil
}

// Session loads one session with its results in original record order.
// Returns nil if the id is unknown.
func (s *Store) Session(ctx context.Context, id string) (*workflow.SyncSession, error) {
	var sess workflow.SyncSession
	var start, end string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, start_time, end_time, total_records, posted, skipped, failed
		FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &start, &end, &sess.TotalRecords,
		&sess.Posted, &sess.Skipped, &sess.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read session", err)
	}
	sess.StartTime = decodeTime(start)
	sess.EndTime = decodeTime(end)

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, label, status, message, timestamp, destination_id
		FROM session_results WHERE session_id = ? ORDER BY ord
	`, id)
	if err != nil {
		return nil, storageErr("read session results", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r workflow.SyncResult
		var ts string
		if err := rows.Scan(&r.SourceID, &r.Label, &r.Status, &r.Message, &ts, &r.DestinationID); err != nil {
			return nil, storageErr("scan session result", err)
		}
		r.Timestamp = decodeTime(ts)
		sess.Results = append(sess.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read session results", err)
	}
	return &sess, nil
}

// Sessions lists all sessions, most recent first, without results.
func (s *Store) Sessions(ctx context.Context) ([]workflow.SyncSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, total_records, posted, skipped, failed
		FROM sessions ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	var out []workflow.SyncSession
	for rows.Next() {
		var sess workflow.SyncSession
		var start, end string
		if err := rows.Scan(&sess.ID, &start, &end, &sess.TotalRecords,
			&sess.Posted, &sess.Skipped, &sess.Failed); err != nil {
			return nil, storageErr("scan session", err)
		}
		sess.StartTime = decodeTime(start)
		sess.EndTime = decodeTime(end)
		out = append(out, sess)
	}
	return out, rows.Err()
}
