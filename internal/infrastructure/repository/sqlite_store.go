// Package repository persists installed modules, the version cache and the
// install history in SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS local_modules (
	id TEXT PRIMARY KEY,
	name TEXT,
	version TEXT,
	version_code INTEGER,
	author TEXT,
	description TEXT,
	update_json TEXT,
	state TEXT,
	has_webui INTEGER,
	has_action INTEGER,
	size INTEGER,
	updated_at TEXT
);
CREATE TABLE IF NOT EXISTS versions (
	repo_url TEXT NOT NULL,
	module_id TEXT NOT NULL,
	version TEXT,
	version_code INTEGER NOT NULL,
	zip_url TEXT,
	changelog TEXT,
	timestamp INTEGER,
	PRIMARY KEY (repo_url, module_id, version_code)
);
CREATE TABLE IF NOT EXISTS installs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	handle TEXT,
	module_id TEXT,
	version TEXT,
	backend TEXT,
	success INTEGER,
	error TEXT,
	digest TEXT,
	duration_ms INTEGER,
	timestamp TEXT
);`

// SQLiteStore persists module state in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates (or opens) the database at path.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writers; one connection keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertLocal upserts an installed module record.
func (s *SQLiteStore) InsertLocal(ctx context.Context, m domain.ModuleDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO local_modules
		(id, name, version, version_code, author, description, update_json, state, has_webui, has_action, size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Version, m.VersionCode, m.Author, m.Description, m.UpdateJSON,
		string(m.State), boolToInt(m.HasWebUI), boolToInt(m.HasActionScript), m.Size,
		time.Now().UTC().Format(domain.TimestampFormat),
	)
	if err != nil {
		return fmt.Errorf("insert local module %s: %w", m.ID, err)
	}
	return nil
}

const localColumns = `id, name, version, version_code, author, description, update_json, state, has_webui, has_action, size`

// GetLocal returns the stored record for id.
func (s *SQLiteStore) GetLocal(ctx context.Context, id string) (domain.ModuleDescriptor, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+localColumns+` FROM local_modules WHERE id = ?`, id)
	m, err := scanLocal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ModuleDescriptor{}, false, nil
	}
	if err != nil {
		return domain.ModuleDescriptor{}, false, fmt.Errorf("get local module %s: %w", id, err)
	}
	return m, true, nil
}

// ListLocal returns all stored modules ordered by id.
func (s *SQLiteStore) ListLocal(ctx context.Context) ([]domain.ModuleDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+localColumns+` FROM local_modules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list local modules: %w", err)
	}
	defer rows.Close()

	var modules []domain.ModuleDescriptor
	for rows.Next() {
		m, err := scanLocal(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// DeleteLocal removes a module record.
func (s *SQLiteStore) DeleteLocal(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM local_modules WHERE id = ?`, id)
	return err
}

// ReplaceLocal swaps the whole table for a fresh listing.
func (s *SQLiteStore) ReplaceLocal(ctx context.Context, modules []domain.ModuleDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM local_modules`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(domain.TimestampFormat)
	for _, m := range modules {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO local_modules
			(id, name, version, version_code, author, description, update_json, state, has_webui, has_action, size, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.Version, m.VersionCode, m.Author, m.Description, m.UpdateJSON,
			string(m.State), boolToInt(m.HasWebUI), boolToInt(m.HasActionScript), m.Size, now,
		); err != nil {
			return fmt.Errorf("insert local module %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLocal(row scanner) (domain.ModuleDescriptor, error) {
	var (
		m                   domain.ModuleDescriptor
		state               string
		hasWebUI, hasAction int
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Version, &m.VersionCode, &m.Author, &m.Description,
		&m.UpdateJSON, &state, &hasWebUI, &hasAction, &m.Size); err != nil {
		return domain.ModuleDescriptor{}, err
	}
	m.State = domain.ModuleState(state)
	m.HasWebUI = hasWebUI == 1
	m.HasActionScript = hasAction == 1
	return m, nil
}

// InsertVersions upserts cache rows; conflicts replace the existing row.
func (s *SQLiteStore) InsertVersions(ctx context.Context, items []domain.VersionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, v := range items {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO versions
			(repo_url, module_id, version, version_code, zip_url, changelog, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			v.RepoURL, v.ModuleID, v.Version, v.VersionCode, v.ZipURL, v.Changelog, v.Timestamp,
		); err != nil {
			return fmt.Errorf("insert version %s@%d: %w", v.ModuleID, v.VersionCode, err)
		}
	}
	return tx.Commit()
}

// DeleteVersionsByURL drops every cached row of a repository.
func (s *SQLiteStore) DeleteVersionsByURL(ctx context.Context, repoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM versions WHERE repo_url = ?`, repoURL)
	return err
}

// Versions lists cached rows, newest version first. Empty filters match all.
func (s *SQLiteStore) Versions(ctx context.Context, repoURL, moduleID string) ([]domain.VersionItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT repo_url, module_id, version, version_code, zip_url, changelog, timestamp
		FROM versions
		WHERE (? = '' OR repo_url = ?) AND (? = '' OR module_id = ?)
		ORDER BY module_id, version_code DESC`,
		repoURL, repoURL, moduleID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var items []domain.VersionItem
	for rows.Next() {
		var v domain.VersionItem
		if err := rows.Scan(&v.RepoURL, &v.ModuleID, &v.Version, &v.VersionCode, &v.ZipURL, &v.Changelog, &v.Timestamp); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// SaveInstall inserts a history record.
func (s *SQLiteStore) SaveInstall(ctx context.Context, r domain.InstallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO installs
		(run_id, handle, module_id, version, backend, success, error, digest, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Handle, r.ModuleID, r.Version, r.Backend, boolToInt(r.Success), r.Error, r.Digest,
		r.DurationMS, r.Timestamp.UTC().Format(domain.TimestampFormat),
	)
	if err != nil {
		return fmt.Errorf("save install record: %w", err)
	}
	return nil
}

// Installs returns history entries, newest first (limit optional).
func (s *SQLiteStore) Installs(ctx context.Context, limit int) ([]domain.InstallRecord, error) {
	query := `SELECT id, run_id, handle, module_id, version, backend, success, error, digest, duration_ms, timestamp
		FROM installs ORDER BY id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list installs: %w", err)
	}
	defer rows.Close()

	var records []domain.InstallRecord
	for rows.Next() {
		var (
			rec     domain.InstallRecord
			success int
			ts      string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Handle, &rec.ModuleID, &rec.Version, &rec.Backend,
			&success, &rec.Error, &rec.Digest, &rec.DurationMS, &ts); err != nil {
			return nil, err
		}
		rec.Success = success == 1
		if t, err := time.Parse(domain.TimestampFormat, ts); err == nil {
			rec.Timestamp = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ClearInstalls deletes all history entries.
func (s *SQLiteStore) ClearInstalls(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM installs`)
	return err
}

// ExportJSON writes the install history to a jsonl file.
func (s *SQLiteStore) ExportJSON(ctx context.Context, dest string) error {
	records, err := s.Installs(ctx, 0)
	if err != nil {
		return err
	}
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := file.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ ports.LocalRepository   = (*SQLiteStore)(nil)
	_ ports.VersionRepository = (*SQLiteStore)(nil)
	_ ports.InstallHistory    = (*SQLiteStore)(nil)
)
