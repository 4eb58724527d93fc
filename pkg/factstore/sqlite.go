package factstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/routerconfig/pkg/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS device_facts(
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	address TEXT,
	version TEXT,
	serial TEXT,
	info TEXT,
	octet0 TEXT,
	octet1 TEXT,
	octet2 TEXT,
	octet3 TEXT,
	collected_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_device_facts_name ON device_facts(name, collected_at);`

// fixed width so collected_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps a local history of facts across runs.
type SQLiteStore struct{ db *sql.DB }

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection: writers serialize and an in-memory database stays shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, f models.Facts) error {
	var o models.OctetFamily
	if f.Octets != nil {
		o = *f.Octets
	}
	collected := f.CollectedAt
	if collected.IsZero() {
		collected = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO device_facts(id,run_id,name,address,version,serial,info,octet0,octet1,octet2,octet3,collected_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		docID(f), f.RunID.String(), f.Name, f.Address, f.Version, f.Serial, f.Info,
		o.Octet0, o.Octet1, o.Octet2, o.Octet3, collected.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save facts for %s: %w", f.Name, err)
	}
	return nil
}

// Latest returns the most recently collected facts for a device.
func (s *SQLiteStore) Latest(ctx context.Context, name string) (models.Facts, error) {
	row := s.db.QueryRowContext(ctx, `SELECT run_id,name,address,version,serial,info,octet0,octet1,octet2,octet3,collected_at
        FROM device_facts WHERE name=? ORDER BY collected_at DESC LIMIT 1`, name)

	var (
		f                models.Facts
		runID, collected string
		o0, o1, o2, o3   string
	)
	err := row.Scan(&runID, &f.Name, &f.Address, &f.Version, &f.Serial, &f.Info, &o0, &o1, &o2, &o3, &collected)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Facts{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return models.Facts{}, err
	}
	if f.RunID, err = uuid.Parse(runID); err != nil {
		return models.Facts{}, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	if f.CollectedAt, err = time.Parse(timeLayout, collected); err != nil {
		return models.Facts{}, fmt.Errorf("parse collected_at %q: %w", collected, err)
	}
	if o0 != "" {
		f.Octets = &models.OctetFamily{Octet0: o0, Octet1: o1, Octet2: o2, Octet3: o3}
	}
	return f, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
