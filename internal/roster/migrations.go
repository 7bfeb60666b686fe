package roster

import (
	"database/sql"

	"github.com/fleetbridge/fleetbridge/pkg/plugin"
)

// migrations returns the roster module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create roster tables (devices, master key, credentials)",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE roster_devices (
						id         TEXT PRIMARY KEY,
						name       TEXT NOT NULL DEFAULT '',
						category   TEXT NOT NULL DEFAULT 'edge_computer',
						host       TEXT NOT NULL,
						port       INTEGER NOT NULL DEFAULT 22,
						username   TEXT NOT NULL DEFAULT '',
						notes      TEXT NOT NULL DEFAULT '',
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX idx_roster_devices_category ON roster_devices(category)`,
					`CREATE TABLE roster_master (
						id                INTEGER PRIMARY KEY CHECK (id = 1),
						salt              BLOB NOT NULL,
						verification_blob BLOB NOT NULL,
						created_at        DATETIME NOT NULL,
						updated_at        DATETIME NOT NULL
					)`,
					`CREATE TABLE roster_credentials (
						device_id   TEXT PRIMARY KEY REFERENCES roster_devices(id) ON DELETE CASCADE,
						kind        TEXT NOT NULL,
						blob        BLOB NOT NULL,
						wrapped_key BLOB NOT NULL,
						created_at  DATETIME NOT NULL,
						updated_at  DATETIME NOT NULL
					)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "add capabilities column to roster_devices",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`ALTER TABLE roster_devices ADD COLUMN capabilities TEXT NOT NULL DEFAULT '[]'`)
				return err
			},
		},
	}
}
