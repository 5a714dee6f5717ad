// Package sqlite provides the SQLite-backed snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/emberclash/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/emberclash/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store provides a SQLite-backed snapshot store.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a SQLite snapshot store at the provided path and applies
// embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	root, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, root); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all
// startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveSnapshot upserts the snapshot for its battle id.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	battleID := strings.TrimSpace(snapshot.Context.BattleID)
	if battleID == "" {
		return fmt.Errorf("battle id is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO battle_snapshots (battle_id, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (battle_id) DO UPDATE SET
    payload = excluded.payload,
    updated_at = excluded.updated_at`,
		battleID, string(payload), s.clock().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the snapshot for a battle id, or
// storage.ErrNotFound when none is persisted.
func (s *Store) LoadSnapshot(ctx context.Context, battleID string) (storage.Snapshot, error) {
	if strings.TrimSpace(battleID) == "" {
		return storage.Snapshot{}, fmt.Errorf("battle id is required")
	}

	var payload string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT payload FROM battle_snapshots WHERE battle_id = ?", battleID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var snapshot storage.Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return storage.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

// ClearSnapshot removes the snapshot for a battle id.
func (s *Store) ClearSnapshot(ctx context.Context, battleID string) error {
	if strings.TrimSpace(battleID) == "" {
		return fmt.Errorf("battle id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM battle_snapshots WHERE battle_id = ?", battleID); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// ListBattleIDs returns the ids of every persisted snapshot, oldest
// write first.
func (s *Store) ListBattleIDs(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT battle_id FROM battle_snapshots ORDER BY updated_at, battle_id")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan snapshot id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot ids: %w", err)
	}
	return ids, nil
}
