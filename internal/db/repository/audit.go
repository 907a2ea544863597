package repository

import (
	"context"
	"database/sql"
	"time"

	"delegated-groups/internal/domain"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	details := e.Details
	if details == "" {
		details = "{}"
	}
	var groupID sql.NullInt64
	if e.GroupID != nil {
		groupID = sql.NullInt64{Int64: *e.GroupID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (created_at, actor_username, actor_email, action, status, system, group_id, group_name, details, request_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), e.ActorUsername, emptyNull(e.ActorEmail), e.Action, e.Status,
		emptyNull(string(e.System)), groupID, emptyNull(e.GroupName), details, emptyNull(e.RequestID))
	return err
}

func (r *AuditRepo) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := `SELECT id, created_at, actor_username, actor_email, action, status, system, group_id, group_name, details, request_id
	          FROM audit_log WHERE 1=1`
	var args []any
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.System != "" {
		query += " AND system = ?"
		args = append(args, string(f.System))
	}
	query += " ORDER BY created_at DESC, id DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var actorEmail, system, groupName, requestID sql.NullString
		var groupID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.ActorUsername, &actorEmail, &e.Action, &e.Status,
			&system, &groupID, &groupName, &e.Details, &requestID); err != nil {
			return nil, err
		}
		e.ActorEmail = actorEmail.String
		e.System = domain.System(system.String)
		if groupID.Valid {
			id := groupID.Int64
			e.GroupID = &id
		}
		e.GroupName = groupName.String
		e.RequestID = requestID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
