package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enabled BOOLEAN NOT NULL,
		on_demand_enabled BOOLEAN NOT NULL,
		on_demand_rules TEXT NOT NULL,
		protocol TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
`

// SQLiteStore keeps profiles in an SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create tables: %v", ErrStoreUnavailable, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadAll returns every stored profile.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, on_demand_enabled, on_demand_rules, protocol, updated_at
		FROM profiles
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return profiles, nil
}

// Create returns an empty, unsaved profile.
func (s *SQLiteStore) Create() *Profile {
	return New()
}

// Save inserts or replaces p by ID.
func (s *SQLiteStore) Save(ctx context.Context, p *Profile) error {
	if p == nil {
		return &SaveError{Reason: errors.New("nil profile")}
	}

	rules, err := json.Marshal(p.OnDemandRules)
	if err != nil {
		return &SaveError{Reason: err}
	}
	protocol, err := json.Marshal(p.Protocol)
	if err != nil {
		return &SaveError{Reason: err}
	}

	// ON CONFLICT keeps the rowid, so LoadAll order stays stable across saves.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (
			id, name, enabled, on_demand_enabled, on_demand_rules, protocol, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			on_demand_enabled = excluded.on_demand_enabled,
			on_demand_rules = excluded.on_demand_rules,
			protocol = excluded.protocol,
			updated_at = excluded.updated_at
	`,
		p.ID, p.Name, p.Enabled, p.OnDemandEnabled,
		string(rules), string(protocol), time.Now().Unix())
	if err != nil {
		return &SaveError{Reason: err}
	}
	return nil
}

// Reload returns the stored copy of p.
func (s *SQLiteStore) Reload(ctx context.Context, p *Profile) (*Profile, error) {
	if p == nil {
		return nil, &LoadError{Reason: ErrNotFound}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, enabled, on_demand_enabled, on_demand_rules, protocol, updated_at
		FROM profiles
		WHERE id = ?
	`, p.ID)

	stored, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &LoadError{Reason: ErrNotFound}
		}
		return nil, &LoadError{Reason: err}
	}
	return stored, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	var (
		p         Profile
		rules     string
		protocol  string
		updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Enabled, &p.OnDemandEnabled, &rules, &protocol, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rules), &p.OnDemandRules); err != nil {
		return nil, fmt.Errorf("invalid on-demand rules for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(protocol), &p.Protocol); err != nil {
		return nil, fmt.Errorf("invalid protocol for %s: %w", p.ID, err)
	}
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}
