package rollout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// RolloutStore provides database access for the rollout module. The runner
// is the only writer for a given deployment, so updates carry no version
// checks.
type RolloutStore struct {
	db *sql.DB
}

// NewRolloutStore creates a RolloutStore wrapping the given database
// connection.
func NewRolloutStore(db *sql.DB) *RolloutStore {
	return &RolloutStore{db: db}
}

// CreateDeployment inserts a new deployment row in state Queued.
func (s *RolloutStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	steps, err := json.Marshal(d.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rollout_deployments (id, device_id, artifact_ref, state, error, steps_json, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeviceID, d.ArtifactRef, string(d.State), d.Error,
		string(steps), d.CreatedAt, nullTime(d.StartedAt), nullTime(d.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create deployment: %w", err)
	}
	return nil
}

// MarkStarted transitions a deployment to InProgress.
func (s *RolloutStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rollout_deployments SET state = ?, started_at = ? WHERE id = ?`,
		string(StateInProgress), at, id,
	)
	if err != nil {
		return fmt.Errorf("mark started: %w", err)
	}
	return nil
}

// MarkFinished records the terminal state, error, and step results.
func (s *RolloutStore) MarkFinished(ctx context.Context, d *Deployment) error {
	steps, err := json.Marshal(d.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE rollout_deployments SET state = ?, error = ?, steps_json = ?, finished_at = ? WHERE id = ?`,
		string(d.State), d.Error, string(steps), nullTime(d.FinishedAt), d.ID,
	)
	if err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}
	return nil
}

// MarkInterrupted fails every queued or in-progress deployment left over
// from a previous process. Returns the number of rows touched.
func (s *RolloutStore) MarkInterrupted(ctx context.Context, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rollout_deployments SET state = ?, error = ?, finished_at = ?
		WHERE state IN (?, ?)`,
		string(StateFailed), reason, time.Now().UTC(),
		string(StateQueued), string(StateInProgress),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// AppendLogLine persists one log line for a deployment.
func (s *RolloutStore) AppendLogLine(ctx context.Context, deploymentID string, line LogLine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollout_log_lines (deployment_id, seq, step, line, ts)
		VALUES (?, ?, ?, ?, ?)`,
		deploymentID, line.Seq, string(line.Step), line.Line, line.Time,
	)
	if err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

// GetDeployment returns a deployment with its log lines, or nil if the id
// is unknown.
func (s *RolloutStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	var d Deployment
	var stepsJSON string
	var startedAt, finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, artifact_ref, state, error, steps_json, created_at, started_at, finished_at
		FROM rollout_deployments WHERE id = ?`, id,
	).Scan(
		&d.ID, &d.DeviceID, &d.ArtifactRef, &d.State, &d.Error,
		&stepsJSON, &d.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &d.Steps); err != nil {
		d.Steps = nil
	}
	if startedAt.Valid {
		d.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		d.FinishedAt = &finishedAt.Time
	}

	lines, err := s.LogLines(ctx, id)
	if err != nil {
		return nil, err
	}
	d.LogLines = lines
	return &d, nil
}

// LogLines returns a deployment's log lines in append order.
func (s *RolloutStore) LogLines(ctx context.Context, deploymentID string) ([]LogLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, step, line, ts FROM rollout_log_lines
		WHERE deployment_id = ? ORDER BY seq`, deploymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list log lines: %w", err)
	}
	defer rows.Close()

	var lines []LogLine
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.Seq, &l.Step, &l.Line, &l.Time); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListDeployments returns deployment summaries newest first, optionally
// filtered by device.
func (s *RolloutStore) ListDeployments(ctx context.Context, deviceID string, limit int) ([]Summary, error) {
	query := `
		SELECT id, device_id, artifact_ref, state, error, created_at, finished_at
		FROM rollout_deployments`
	args := []any{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var finishedAt sql.NullTime
		if err := rows.Scan(&sm.ID, &sm.DeviceID, &sm.ArtifactRef, &sm.State, &sm.Error, &sm.CreatedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}
		if finishedAt.Valid {
			sm.FinishedAt = &finishedAt.Time
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// PruneHistory deletes the oldest finished deployments beyond limit. Log
// lines go with them via cascade.
func (s *RolloutStore) PruneHistory(ctx context.Context, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM rollout_deployments WHERE id IN (
			SELECT id FROM rollout_deployments
			WHERE state IN (?, ?)
			ORDER BY created_at DESC, id DESC
			LIMIT -1 OFFSET ?
		)`,
		string(StateSucceeded), string(StateFailed), limit,
	)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// nullTime converts a *time.Time to sql.NullTime for database writes.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
