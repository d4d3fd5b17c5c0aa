package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	integrator      TEXT NOT NULL,
	tolerance       REAL NOT NULL,
	duration        REAL NOT NULL,
	bodies          TEXT NOT NULL,
	steps           INTEGER NOT NULL,
	rectifications  INTEGER NOT NULL,
	energy_drift    REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS run_metrics (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name   TEXT NOT NULL,
	value  REAL NOT NULL,
	PRIMARY KEY (run_id, name)
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at);
`

// Catalog indexes saved runs and their metrics in SQLite.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if needed) the catalog database at path.
// ":memory:" gives a private in-memory catalog.
func OpenCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Record inserts or replaces a run with its metrics.
func (c *Catalog) Record(meta RunMetadata) (err error) {
	bodies, err := json.Marshal(meta.Bodies)
	if err != nil {
		return err
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM run_metrics WHERE run_id = ?`, meta.ID); err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(id, name, created_at, integrator, tolerance, duration, bodies, steps, rectifications, energy_drift)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Name, meta.Timestamp.UTC().UnixNano(), meta.Integrator, meta.Tolerance,
		meta.Duration, string(bodies), meta.Steps, meta.Rectifications, meta.EnergyDrift)
	if err != nil {
		return err
	}
	for name, value := range meta.Metrics {
		if _, err = tx.Exec(`INSERT INTO run_metrics (run_id, name, value) VALUES (?, ?, ?)`, meta.ID, name, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns every recorded run, newest first.
func (c *Catalog) List() ([]RunMetadata, error) {
	rows, err := c.db.Query(`SELECT id, name, created_at, integrator, tolerance, duration, bodies,
		steps, rectifications, energy_drift FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			meta    RunMetadata
			created int64
			bodies  string
		)
		if err := rows.Scan(&meta.ID, &meta.Name, &created, &meta.Integrator, &meta.Tolerance,
			&meta.Duration, &bodies, &meta.Steps, &meta.Rectifications, &meta.EnergyDrift); err != nil {
			return nil, err
		}
		meta.Timestamp = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(bodies), &meta.Bodies); err != nil {
			return nil, fmt.Errorf("run %s bodies: %w", meta.ID, err)
		}
		meta.Metrics = make(map[string]float64)
		index[meta.ID] = len(runs)
		runs = append(runs, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := c.db.Query(`SELECT run_id, name, value FROM run_metrics`)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var (
			id, name string
			value    float64
		)
		if err := mrows.Scan(&id, &name, &value); err != nil {
			return nil, err
		}
		if k, ok := index[id]; ok {
			runs[k].Metrics[name] = value
		}
	}
	return runs, mrows.Err()
}

// Best returns the run with the smallest value of metric, or nil when no
// run recorded it.
func (c *Catalog) Best(metric string) (*RunMetadata, error) {
	var id string
	err := c.db.QueryRow(`SELECT run_id FROM run_metrics WHERE name = ? ORDER BY value ASC LIMIT 1`, metric).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	runs, err := c.List()
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].ID == id {
			return &runs[i], nil
		}
	}
	return nil, nil
}
