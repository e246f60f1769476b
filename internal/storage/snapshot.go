package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"agentcore/internal/filecore"
)

// SnapshotRow is a persisted pre-mutation copy of a file; it is exactly
// filecore.SnapshotRecord, aliased here so this file reads naturally as the
// owner of the "row" while filecore keeps a storage-agnostic name for the
// interface it depends on.
type SnapshotRow = filecore.SnapshotRecord

// SnapshotStore aliases filecore.SnapshotStore so server.go's capability
// bundle can name the dependency without importing filecore directly.
// *DB implements it.
type SnapshotStore = filecore.SnapshotStore

// InsertSnapshot stores content as a new snapshot for path and returns the
// stored row. Snapshots are content-addressed by (path, created_at); the
// most recent row for a path is what Undo restores.
func (db *DB) InsertSnapshot(path string, content []byte, existed bool) (*SnapshotRow, error) {
	now := time.Now()
	hash := sha256.Sum256(content)
	row := &SnapshotRow{
		ID:          uuid.New().String(),
		Path:        path,
		Content:     content,
		ContentHash: hex.EncodeToString(hash[:]),
		Existed:     existed,
		CreatedAt:   now,
	}

	_, err := db.Exec(
		"INSERT INTO snapshots (id, path, content, content_hash, existed, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		row.ID, row.Path, row.Content, row.ContentHash, row.Existed, row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// LatestSnapshot returns the most recently inserted snapshot for path.
func (db *DB) LatestSnapshot(path string) (*SnapshotRow, error) {
	var row SnapshotRow
	err := db.QueryRow(
		"SELECT id, path, content, content_hash, existed, created_at FROM snapshots WHERE path = ? ORDER BY created_at DESC LIMIT 1",
		path,
	).Scan(&row.ID, &row.Path, &row.Content, &row.ContentHash, &row.Existed, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// PopLatestSnapshot returns and deletes the most recent snapshot for path —
// the primitive undo(path) is built on, since restoring a snapshot consumes
// it (the next undo call should restore the one before it).
func (db *DB) PopLatestSnapshot(path string) (*SnapshotRow, error) {
	row, err := db.LatestSnapshot(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("DELETE FROM snapshots WHERE id = ?", row.ID); err != nil {
		return nil, err
	}
	return row, nil
}

// CountSnapshots returns how many snapshot rows exist for path, oldest
// first, used by the retention sweep in filecore.
func (db *DB) CountSnapshots(path string) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM snapshots WHERE path = ?", path).Scan(&n)
	return n, err
}

// EvictOldestSnapshots deletes the oldest snapshots for path beyond the
// first keep rows (most recent keep survive).
func (db *DB) EvictOldestSnapshots(path string, keep int) error {
	_, err := db.Exec(`
		DELETE FROM snapshots
		WHERE path = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE path = ? ORDER BY created_at DESC LIMIT ?
		)`, path, path, keep)
	return err
}

// UpsertFileMetrics records the latest per-file mutation metrics for a
// session, overwriting any prior row for the same (session, path).
func (db *DB) UpsertFileMetrics(sessionID, path string, linesAdded, linesRemoved int, contentHash string) error {
	_, err := db.Exec(`
		INSERT INTO file_metrics (session_id, path, lines_added, lines_removed, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, path) DO UPDATE SET
			lines_added = excluded.lines_added,
			lines_removed = excluded.lines_removed,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		sessionID, path, linesAdded, linesRemoved, contentHash, time.Now(),
	)
	return err
}

// FileMetric is one session's latest recorded mutation against a path.
type FileMetric struct {
	Path         string
	LinesAdded   int
	LinesRemoved int
	ContentHash  string
}

// ListFileMetrics returns every path mutated during sessionID, most
// recently updated first, for use in session-end summaries.
func (db *DB) ListFileMetrics(sessionID string) ([]FileMetric, error) {
	rows, err := db.Query(`
		SELECT path, lines_added, lines_removed, content_hash
		FROM file_metrics
		WHERE session_id = ?
		ORDER BY updated_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []FileMetric
	for rows.Next() {
		var m FileMetric
		if err := rows.Scan(&m.Path, &m.LinesAdded, &m.LinesRemoved, &m.ContentHash); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
