// Package registry persists mount sessions in a local SQLite database so
// the CLI can list live and historical mounts across restarts.
// It uses the pure-Go modernc.org/sqlite driver and needs no CGO.
package registry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Session is one recorded mount.
type Session struct {
	Token       string
	MountID     int
	SourcePath  string
	TargetPath  string
	MountedAt   time.Time
	UnmountedAt *time.Time
}

// Registry wraps the backing database.
type Registry struct {
	db *sql.DB
}

// Open creates or opens the registry at path. ":memory:" works for
// tests.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return r, nil
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		mount_id INTEGER NOT NULL,
		source_path TEXT NOT NULL,
		target_path TEXT NOT NULL,
		mounted_at INTEGER NOT NULL,
		unmounted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_active
		ON sessions (unmounted_at) WHERE unmounted_at IS NULL;
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("registry: schema: %w", err)
	}
	return nil
}

// RecordMount inserts a new session row.
func (r *Registry) RecordMount(mountID int, sourcePath, targetPath string) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (token, mount_id, source_path, target_path, mounted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), mountID, sourcePath, targetPath, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("registry: record mount: %w", err)
	}
	return nil
}

// RecordUnmount closes the open session row for a mount id.
func (r *Registry) RecordUnmount(mountID int) error {
	_, err := r.db.Exec(
		`UPDATE sessions SET unmounted_at = ? WHERE mount_id = ? AND unmounted_at IS NULL`,
		time.Now().Unix(), mountID,
	)
	if err != nil {
		return fmt.Errorf("registry: record unmount: %w", err)
	}
	return nil
}

// Active lists sessions without an unmount timestamp.
func (r *Registry) Active() ([]Session, error) {
	return r.query(`SELECT token, mount_id, source_path, target_path, mounted_at, unmounted_at
		FROM sessions WHERE unmounted_at IS NULL ORDER BY mounted_at`)
}

// History lists every recorded session, newest first.
func (r *Registry) History() ([]Session, error) {
	return r.query(`SELECT token, mount_id, source_path, target_path, mounted_at, unmounted_at
		FROM sessions ORDER BY mounted_at DESC`)
}

func (r *Registry) query(stmt string) ([]Session, error) {
	rows, err := r.db.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var mountedAt int64
		var unmountedAt sql.NullInt64

		if err := rows.Scan(&s.Token, &s.MountID, &s.SourcePath, &s.TargetPath, &mountedAt, &unmountedAt); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}

		s.MountedAt = time.Unix(mountedAt, 0)
		if unmountedAt.Valid {
			t := time.Unix(unmountedAt.Int64, 0)
			s.UnmountedAt = &t
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// Close releases the database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}
