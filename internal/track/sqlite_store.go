package track

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore keeps the snapshot in an SQLite database, one row per item.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection avoids "database is locked" between save and load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	store := &SQLiteStore{db: db, path: path, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		path TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		hash BLOB,
		mod_time INTEGER
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save replaces the stored snapshot with snap in a single transaction.
func (s *SQLiteStore) Save(snap Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save snapshot to %s: %w", s.path, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM items"); err != nil {
		return fmt.Errorf("save snapshot to %s: %w", s.path, err)
	}

	stmt, err := tx.Prepare("INSERT INTO items (path, type, hash, mod_time) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save snapshot to %s: %w", s.path, err)
	}
	defer stmt.Close()

	for _, rec := range toRecords(snap) {
		var modTime sql.NullInt64
		if !rec.ModTime.IsZero() {
			modTime = sql.NullInt64{Int64: rec.ModTime.UnixNano(), Valid: true}
		}
		if _, err := stmt.Exec(rec.Path, string(rec.Type), rec.Hash, modTime); err != nil {
			return fmt.Errorf("save snapshot to %s: item %q: %w", s.path, rec.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot to %s: %w", s.path, err)
	}
	s.logger.Debug("snapshot saved", zap.String("database", s.path), zap.Int("items", len(snap)))
	return nil
}

// Load reads the stored snapshot. Query failures yield an empty snapshot.
func (s *SQLiteStore) Load() Snapshot {
	rows, err := s.db.Query("SELECT path, type, hash, mod_time FROM items ORDER BY path")
	if err != nil {
		s.logger.Warn("snapshot unreadable, starting cold", zap.String("database", s.path), zap.Error(err))
		return Snapshot{}
	}
	defer rows.Close()

	var records []record
	for rows.Next() {
		var (
			rec      record
			itemType string
			modTime  sql.NullInt64
		)
		if err := rows.Scan(&rec.Path, &itemType, &rec.Hash, &modTime); err != nil {
			s.logger.Warn("snapshot row unreadable, starting cold", zap.String("database", s.path), zap.Error(err))
			return Snapshot{}
		}
		rec.Type = ItemType(itemType)
		if modTime.Valid {
			rec.ModTime = time.Unix(0, modTime.Int64)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("snapshot unreadable, starting cold", zap.String("database", s.path), zap.Error(err))
		return Snapshot{}
	}
	return fromRecords(records)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
