package filecore

import (
	"fmt"
	"time"

	"agentcore/internal/domain"
)

// SnapshotStore is the persistence boundary the patch engine and FsUndo
// tool depend on. internal/storage.DB implements it directly (its
// SnapshotRow is an alias of SnapshotRecord below); tests use an in-memory
// fake.
type SnapshotStore interface {
	InsertSnapshot(path string, content []byte, existed bool) (*SnapshotRecord, error)
	PopLatestSnapshot(path string) (*SnapshotRecord, error)
	CountSnapshots(path string) (int, error)
	EvictOldestSnapshots(path string, keep int) error
}

// SnapshotRecord mirrors storage.SnapshotRow without this package needing
// to import internal/storage directly (keeps filecore storage-agnostic:
// tool services depend only on the narrow infra interface they need, not
// the concrete sqlite package).
//
// Existed distinguishes "path had no content before this mutation" (a
// fresh file created by Write) from "path existed and is now empty" —
// Undo needs this to decide between removing the file and restoring an
// empty one.
type SnapshotRecord struct {
	ID          string
	Path        string
	Content     []byte
	ContentHash string
	Existed     bool
	CreatedAt   time.Time
}

// MaxSnapshotsPerPath bounds snapshot retention per file so undo history
// doesn't grow unbounded across a long session.
const MaxSnapshotsPerPath = 20

// ErrNoSnapshot is returned by Undo when a path has no snapshot to
// restore. It wraps domain.ErrNotFound: the dispatch loop surfaces it to
// the caller rather than feeding it back to the model.
var ErrNoSnapshot = fmt.Errorf("no snapshot to restore: %w", domain.ErrNotFound)
