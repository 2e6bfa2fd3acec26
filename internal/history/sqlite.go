package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the ledger in the scan_history table of a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scan_history (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id        TEXT NOT NULL DEFAULT '',
		timestamp      TEXT NOT NULL,
		security_score INTEGER NOT NULL,
		risk_level     TEXT NOT NULL,
		findings_count INTEGER NOT NULL DEFAULT 0,
		attacks_count  INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns all rows in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT scan_id, timestamp, security_score, risk_level, findings_count, attacks_count
		 FROM scan_history ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query scan_history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ScanID, &e.Timestamp, &e.SecurityScore, &e.RiskLevel, &e.FindingsCount, &e.AttacksCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Save replaces the table contents with entries in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_history`); err != nil {
		return fmt.Errorf("clear scan_history: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scan_history (scan_id, timestamp, security_score, risk_level, findings_count, attacks_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.ScanID, e.Timestamp, e.SecurityScore, e.RiskLevel, e.FindingsCount, e.AttacksCount,
		); err != nil {
			return fmt.Errorf("insert scan_history: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
