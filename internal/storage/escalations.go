package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentra-ai/sna/internal/model"
)

const escalationColumns = `id, created_at, state, approver, reason, context, updated_at`

// CreateEscalation inserts a new escalation record.
func (db *DB) CreateEscalation(ctx context.Context, rec *model.EscalationRecord) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO escalation (id, created_at, state, approver, reason, context, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.CreatedAt, rec.State, rec.Approver, rec.Reason, rec.Context, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage: create escalation %s: %w", rec.ID, ErrDuplicate)
		}
		return fmt.Errorf("storage: create escalation: %w", err)
	}
	return nil
}

// GetEscalation returns one escalation by ID, or ErrNotFound.
func (db *DB) GetEscalation(ctx context.Context, id uuid.UUID) (model.EscalationRecord, error) {
	rec, err := scanEscalation(db.pool.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM escalation WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.EscalationRecord{}, fmt.Errorf("storage: escalation %s: %w", id, ErrNotFound)
		}
		return model.EscalationRecord{}, fmt.Errorf("storage: get escalation: %w", err)
	}
	return rec, nil
}

// ListEscalations returns escalations newest first, optionally filtered by
// state. An empty state matches all.
func (db *DB) ListEscalations(ctx context.Context, state model.EscalationState, limit int) ([]model.EscalationRecord, error) {
	if limit <= 0 || limit > model.MaxPageSize {
		limit = model.DefaultPageSize
	}

	query := `SELECT ` + escalationColumns + ` FROM escalation`
	args := []any{limit}
	if state != "" {
		query += ` WHERE state = $2`
		args = append(args, state)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list escalations: %w", err)
	}
	defer rows.Close()

	var recs []model.EscalationRecord
	for rows.Next() {
		rec, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan escalation: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list escalations: %w", err)
	}
	return recs, nil
}

// TransitionEscalation moves an escalation from one state to another with a
// compare-and-set on the current state. If the record exists but is not in
// the expected state the transition fails with ErrConflict and the stored
// record is left untouched.
func (db *DB) TransitionEscalation(ctx context.Context, id uuid.UUID, from, to model.EscalationState, approver *string, now time.Time) (model.EscalationRecord, error) {
	rec, err := scanEscalation(db.pool.QueryRow(ctx, `
		UPDATE escalation
		SET state = $1, approver = COALESCE($2, approver), updated_at = $3
		WHERE id = $4 AND state = $5
		RETURNING `+escalationColumns,
		to, approver, now, id, from,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.EscalationRecord{}, fmt.Errorf("storage: transition escalation: %w", err)
	}

	// No row matched; distinguish a missing record from a state conflict.
	current, getErr := db.GetEscalation(ctx, id)
	if getErr != nil {
		return model.EscalationRecord{}, getErr
	}
	return model.EscalationRecord{}, fmt.Errorf(
		"storage: escalation %s is %s, expected %s: %w", id, current.State, from, ErrConflict)
}

// ExpireEscalations transitions every PENDING escalation created at or
// before the cutoff to EXPIRED. Returns the number of rows expired. The
// bulk update can deadlock against concurrent CAS transitions, so it
// retries on transient conflicts.
func (db *DB) ExpireEscalations(ctx context.Context, cutoff, now time.Time) (int, error) {
	var expired int
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		tag, err := db.pool.Exec(ctx, `
			UPDATE escalation
			SET state = $1, updated_at = $2
			WHERE state = $3 AND created_at <= $4`,
			model.EscalationExpired, now, model.EscalationPending, cutoff,
		)
		if err != nil {
			return err
		}
		expired = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: expire escalations: %w", err)
	}
	return expired, nil
}

// CountPendingEscalations returns the number of escalations in PENDING state.
func (db *DB) CountPendingEscalations(ctx context.Context) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM escalation WHERE state = $1`, model.EscalationPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count pending escalations: %w", err)
	}
	return n, nil
}

func scanEscalation(row pgx.Row) (model.EscalationRecord, error) {
	var rec model.EscalationRecord
	err := row.Scan(
		&rec.ID, &rec.CreatedAt, &rec.State, &rec.Approver,
		&rec.Reason, &rec.Context, &rec.UpdatedAt,
	)
	return rec, err
}
