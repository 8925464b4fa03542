package storage

import (
	"context"
	"fmt"

	"github.com/sentra-ai/sna/internal/model"
)

// InsertExecution appends one execution record and sets its insertion
// sequence ID. Command and output must already be sanitized by the caller;
// a reused external_id returns ErrDuplicate.
func (db *DB) InsertExecution(ctx context.Context, e *model.ExecutionEntry) error {
	err := db.pool.QueryRow(ctx, `
		INSERT INTO execution_log (
			external_id, timestamp, tool_name, device_target, command_sent,
			output, success, duration_seconds, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.ExternalID, e.Timestamp, e.ToolName, e.DeviceTarget, e.CommandSent,
		e.Output, e.Success, e.DurationSeconds, e.Error,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage: insert execution %s: %w", e.ExternalID, ErrDuplicate)
		}
		return fmt.Errorf("storage: insert execution: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent execution records for a tool,
// newest first. An empty toolName matches all tools.
func (db *DB) ListExecutions(ctx context.Context, toolName string, limit int) ([]model.ExecutionEntry, error) {
	if limit <= 0 || limit > model.MaxPageSize {
		limit = model.DefaultPageSize
	}

	query := `
		SELECT id, external_id, timestamp, tool_name, device_target, command_sent,
			output, success, duration_seconds, error
		FROM execution_log`
	args := []any{limit}
	if toolName != "" {
		query += ` WHERE tool_name = $2`
		args = append(args, toolName)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT $1`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	defer rows.Close()

	var entries []model.ExecutionEntry
	for rows.Next() {
		var e model.ExecutionEntry
		if err := rows.Scan(
			&e.ID, &e.ExternalID, &e.Timestamp, &e.ToolName, &e.DeviceTarget,
			&e.CommandSent, &e.Output, &e.Success, &e.DurationSeconds, &e.Error,
		); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	return entries, nil
}
