package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sentra-ai/sna/internal/model"
)

const auditColumns = `id, external_id, timestamp, verdict, risk_tier, tool_name, reason,
	confidence_score, confidence_threshold, device_count, requires_audit,
	requires_senior_approval, escalation_id, policy_version, eas, correlation_id`

// AppendAudit inserts one audit entry and sets its insertion sequence ID.
// A reused external_id returns ErrDuplicate; entries are never updated or
// deleted after this call.
func (db *DB) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	err := db.pool.QueryRow(ctx, `
		INSERT INTO audit_log (
			external_id, timestamp, verdict, risk_tier, tool_name, reason,
			confidence_score, confidence_threshold, device_count, requires_audit,
			requires_senior_approval, escalation_id, policy_version, eas, correlation_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		e.ExternalID, e.Timestamp, e.Verdict, e.RiskTier, e.ToolName, e.Reason,
		e.ConfidenceScore, e.ConfidenceThreshold, e.DeviceCount, e.RequiresAudit,
		e.RequiresSeniorApproval, e.EscalationID, e.PolicyVersion, e.EAS, e.CorrelationID,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage: append audit %s: %w", e.ExternalID, ErrDuplicate)
		}
		return fmt.Errorf("storage: append audit: %w", err)
	}
	return nil
}

// QueryAudit returns one page of audit entries matching the filter, newest
// first. Entries with equal timestamps are ordered by descending insertion
// sequence. Pages are 1-indexed; pageSize is clamped to [1, MaxPageSize]
// with zero meaning DefaultPageSize.
func (db *DB) QueryAudit(ctx context.Context, f model.AuditFilter, page, pageSize int) (model.AuditPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	if pageSize > model.MaxPageSize {
		pageSize = model.MaxPageSize
	}

	where, args := buildAuditFilter(f)

	total, err := db.countAudit(ctx, where, args)
	if err != nil {
		return model.AuditPage{}, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log` + where +
		fmt.Sprintf(` ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return model.AuditPage{}, fmt.Errorf("storage: query audit: %w", err)
	}
	defer rows.Close()

	items := make([]model.AuditEntry, 0, pageSize)
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return model.AuditPage{}, fmt.Errorf("storage: scan audit entry: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return model.AuditPage{}, fmt.Errorf("storage: query audit: %w", err)
	}

	return model.AuditPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasNext:  page*pageSize < total,
		HasPrev:  page > 1,
	}, nil
}

// CountAudit returns the number of audit entries matching the filter.
func (db *DB) CountAudit(ctx context.Context, f model.AuditFilter) (int, error) {
	where, args := buildAuditFilter(f)
	return db.countAudit(ctx, where, args)
}

func (db *DB) countAudit(ctx context.Context, where string, args []any) (int, error) {
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("storage: count audit: %w", err)
	}
	return total, nil
}

// CountByVerdictSince returns per-verdict entry counts for entries at or
// after the given time. Verdicts with no entries are absent from the map.
func (db *DB) CountByVerdictSince(ctx context.Context, since time.Time) (map[model.Verdict]int, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT verdict, COUNT(*) FROM audit_log
		WHERE timestamp >= $1
		GROUP BY verdict`, since)
	if err != nil {
		return nil, fmt.Errorf("storage: count by verdict: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Verdict]int)
	for rows.Next() {
		var v model.Verdict
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, fmt.Errorf("storage: scan verdict count: %w", err)
		}
		counts[v] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: count by verdict: %w", err)
	}
	return counts, nil
}

// buildAuditFilter renders the filter as a WHERE clause with positional args.
func buildAuditFilter(f model.AuditFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Verdict != "" {
		add("verdict = $%d", f.Verdict)
	}
	if f.RiskTier != "" {
		add("risk_tier = $%d", f.RiskTier)
	}
	if f.ToolName != "" {
		add("tool_name = $%d", f.ToolName)
	}
	if !f.Since.IsZero() {
		add("timestamp >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("timestamp <= $%d", f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAuditEntry(row pgx.Row) (model.AuditEntry, error) {
	var e model.AuditEntry
	err := row.Scan(
		&e.ID, &e.ExternalID, &e.Timestamp, &e.Verdict, &e.RiskTier, &e.ToolName,
		&e.Reason, &e.ConfidenceScore, &e.ConfidenceThreshold, &e.DeviceCount,
		&e.RequiresAudit, &e.RequiresSeniorApproval, &e.EscalationID,
		&e.PolicyVersion, &e.EAS, &e.CorrelationID,
	)
	return e, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
