package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"browsernerd/internal/dom"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	url TEXT NOT NULL,
	title TEXT,
	frame_id TEXT,
	html TEXT NOT NULL,
	elements_json TEXT NOT NULL,
	meta_json TEXT NOT NULL,
	UNIQUE(session_id, id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, created_at);
`

const selectColumns = `id, session_id, created_at, url, title, frame_id, html, elements_json, meta_json`

// SQLiteStore persists snapshots so they survive across CLI invocations.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	max    int
	logger *zap.Logger
}

// NewSQLiteStore opens or creates the database at path. ":memory:" keeps
// everything in process.
func NewSQLiteStore(path string, max int, logger *zap.Logger) (*SQLiteStore, error) {
	if max <= 0 {
		max = DefaultMaxPerSession
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("opened snapshot database", zap.String("path", path))
	return &SQLiteStore{db: db, path: path, max: max, logger: logger}, nil
}

// Store inserts snap and evicts older snapshots of the session in one transaction.
func (s *SQLiteStore) Store(ctx context.Context, snap *Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	elements, err := json.Marshal(snap.Elements)
	if err != nil {
		return fmt.Errorf("marshal elements: %w", err)
	}
	meta, err := json.Marshal(snap.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (session_id, id, created_at, url, title, frame_id, html, elements_json, meta_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.ID, snap.CreatedAt.UnixNano(), snap.URL, snap.Title, snap.FrameID,
		snap.HTML, string(elements), string(meta),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE session_id = ? AND seq NOT IN (
			SELECT seq FROM snapshots WHERE session_id = ?
			ORDER BY created_at DESC, seq DESC LIMIT ?
		)`,
		snap.SessionID, snap.SessionID, s.max,
	)
	if err != nil {
		return fmt.Errorf("evict snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	evicted, _ := res.RowsAffected()
	s.logger.Info("stored snapshot",
		zap.String("session", snap.SessionID),
		zap.String("snapshot_id", snap.ID),
		zap.Int("elements", len(snap.Elements)),
		zap.Int64("expired", evicted))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snap              Snapshot
		createdAt         int64
		title, frameID    sql.NullString
		elements, metaRaw string
	)
	if err := row.Scan(&snap.ID, &snap.SessionID, &createdAt, &snap.URL, &title, &frameID,
		&snap.HTML, &elements, &metaRaw); err != nil {
		return nil, err
	}
	snap.CreatedAt = time.Unix(0, createdAt)
	snap.Title = title.String
	snap.FrameID = frameID.String
	if err := json.Unmarshal([]byte(elements), &snap.Elements); err != nil {
		return nil, fmt.Errorf("unmarshal elements of %s: %w", snap.ID, err)
	}
	if err := json.Unmarshal([]byte(metaRaw), &snap.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta of %s: %w", snap.ID, err)
	}
	return &snap, nil
}

// Get returns the snapshot or nil.
func (s *SQLiteStore) Get(ctx context.Context, sessionID, snapshotID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM snapshots WHERE session_id = ? AND id = ?`,
		sessionID, snapshotID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("snapshot not found",
			zap.String("session", sessionID),
			zap.String("snapshot_id", snapshotID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// GetElement returns one element of a snapshot or nil.
func (s *SQLiteStore) GetElement(ctx context.Context, sessionID, snapshotID, snapID string) (*dom.Element, error) {
	snap, err := s.Get(ctx, sessionID, snapshotID)
	if err != nil || snap == nil {
		return nil, err
	}
	el := snap.Element(snapID)
	if el == nil {
		s.logger.Warn("element not found in snapshot",
			zap.String("snapshot_id", snapshotID),
			zap.String("snap_id", snapID))
	}
	return el, nil
}

// Latest returns the newest snapshot of the session or nil.
func (s *SQLiteStore) Latest(ctx context.Context, sessionID string) (*Snapshot, error) {
	list, err := s.List(ctx, sessionID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// List returns the session's snapshots, newest first.
func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM snapshots WHERE session_id = ? ORDER BY created_at DESC, seq DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Clear removes every snapshot of the session.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("clearing snapshots", zap.String("session", sessionID), zap.Int64("count", n))
	return nil
}

// Stats counts sessions and snapshots.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_id), COUNT(*) FROM snapshots`).Scan(&st.Sessions, &st.Snapshots)
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot stats: %w", err)
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
