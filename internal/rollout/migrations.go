package rollout

import (
	"database/sql"

	"github.com/fleetbridge/fleetbridge/pkg/plugin"
)

// migrations returns the rollout module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create rollout tables (deployments, log lines)",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE rollout_deployments (
						id           TEXT PRIMARY KEY,
						device_id    TEXT NOT NULL,
						artifact_ref TEXT NOT NULL,
						state        TEXT NOT NULL DEFAULT 'queued',
						error        TEXT NOT NULL DEFAULT '',
						steps_json   TEXT NOT NULL DEFAULT '[]',
						created_at   DATETIME NOT NULL,
						started_at   DATETIME,
						finished_at  DATETIME
					)`,
					`CREATE INDEX idx_rollout_deployments_device ON rollout_deployments(device_id)`,
					`CREATE INDEX idx_rollout_deployments_state ON rollout_deployments(state)`,
					`CREATE TABLE rollout_log_lines (
						deployment_id TEXT NOT NULL REFERENCES rollout_deployments(id) ON DELETE CASCADE,
						seq           INTEGER NOT NULL,
						step          TEXT NOT NULL,
						line          TEXT NOT NULL,
						ts            DATETIME NOT NULL,
						PRIMARY KEY (deployment_id, seq)
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
	}
}
