package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// schema file names: 001_initial.sql and 001_initial.down.sql
var schemaFileRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+?)(\.down)?\.sql$`)

// Migration is one numbered schema change with its optional reversal
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// migrations returns the embedded schema changes ordered by version.
// Files not matching the naming scheme are ignored.
func migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(schemaFS, "schema")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		m := schemaFileRe.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		version, _ := strconv.Atoi(m[1])

		body, err := fs.ReadFile(schemaFS, "schema/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: m[2]}
			byVersion[version] = mig
		}
		if m[3] != "" {
			mig.Down = string(body)
		} else {
			mig.Up = string(body)
		}
	}

	list := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" {
			return nil, fmt.Errorf("migration %03d_%s has no up script", mig.Version, mig.Name)
		}
		list = append(list, *mig)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list, nil
}

func (db *DB) runMigrations() error {
	_, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	list, err := migrations()
	if err != nil {
		return err
	}
	current, err := db.Version()
	if err != nil {
		return err
	}

	for _, mig := range list {
		if mig.Version <= current {
			continue
		}
		err := db.withTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(mig.Up); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				mig.Version, mig.Name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Version returns the newest applied migration, or 0 for an empty database
func (db *DB) Version() (int, error) {
	var version int
	if err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Rollback reverts the newest applied migration
func (db *DB) Rollback() error {
	current, err := db.Version()
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to roll back")
	}

	list, err := migrations()
	if err != nil {
		return err
	}
	idx := sort.Search(len(list), func(i int) bool { return list[i].Version >= current })
	if idx == len(list) || list[idx].Version != current {
		return fmt.Errorf("migration %d not found", current)
	}
	mig := list[idx]
	if mig.Down == "" {
		return fmt.Errorf("migration %03d_%s cannot be rolled back", mig.Version, mig.Name)
	}

	err = db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.Down); err != nil {
			return err
		}
		_, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", mig.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration %03d_%s: %w", mig.Version, mig.Name, err)
	}
	return nil
}
