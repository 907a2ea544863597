package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"delegated-groups/internal/domain"
)

type GroupRepo struct {
	db *sql.DB
}

func NewGroupRepo(db *sql.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = "id, system, name, lower_name, created_at"

func scanGroup(row interface{ Scan(...any) error }) (*domain.DelegatedGroup, error) {
	var g domain.DelegatedGroup
	if err := row.Scan(&g.ID, &g.System, &g.Name, &g.LowerName, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepo) Create(ctx context.Context, g *domain.DelegatedGroup) (*domain.DelegatedGroup, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO delegated_group (system, name, lower_name, created_at) VALUES (?, ?, ?, ?)",
		string(g.System), g.Name, g.LowerName, now)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := *g
	created.ID = id
	created.CreatedAt = now
	return &created, nil
}

// CreateWithOwnership creates the group together with its initial direct
// grants and owning-group rules in one transaction, so a mid-write failure
// cannot leave a half-created group behind. GroupID on the supplied rules is
// ignored; the new group's ID is used.
func (r *GroupRepo) CreateWithOwnership(ctx context.Context, g *domain.DelegatedGroup, ownerPersonIDs []int64, rules []*domain.OwningGroupRule) (*domain.DelegatedGroup, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO delegated_group (system, name, lower_name, created_at) VALUES (?, ?, ?, ?)",
		string(g.System), g.Name, g.LowerName, now)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	for _, personID := range ownerPersonIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ownership_grant (group_id, person_id, kind, via_group, lower_via_group, created_at)
			 VALUES (?, ?, 'direct', NULL, NULL, ?)`,
			id, personID, now); err != nil {
			return nil, mapDBError(err)
		}
	}
	for _, rule := range rules {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO owning_group_rule (group_id, owning_group, lower_owning_group, created_at)
			 VALUES (?, ?, ?, ?)`,
			id, rule.OwningGroup, rule.LowerOwningGroup, now); err != nil {
			return nil, mapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit group create: %w", err)
	}
	created := *g
	created.ID = id
	created.CreatedAt = now
	return &created, nil
}

// CreateBatch inserts several groups in one transaction, reporting per group
// whether a new row was created (false: the name already existed). Either
// every missing group is created or none is.
func (r *GroupRepo) CreateBatch(ctx context.Context, groups []*domain.DelegatedGroup) ([]bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	created := make([]bool, len(groups))
	for i, g := range groups {
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO delegated_group (system, name, lower_name, created_at) VALUES (?, ?, ?, ?)",
			string(g.System), g.Name, g.LowerName, now)
		if err != nil {
			return nil, mapDBError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		created[i] = n > 0
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit group batch: %w", err)
	}
	return created, nil
}

func (r *GroupRepo) GetByName(ctx context.Context, system domain.System, lowerName string) (*domain.DelegatedGroup, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+groupColumns+" FROM delegated_group WHERE system = ? AND lower_name = ?",
		string(system), lowerName)
	g, err := scanGroup(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return g, nil
}

func (r *GroupRepo) List(ctx context.Context) ([]domain.DelegatedGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+groupColumns+" FROM delegated_group ORDER BY system, lower_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGroups(rows)
}

func (r *GroupRepo) ListBySystem(ctx context.Context, system domain.System) ([]domain.DelegatedGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+groupColumns+" FROM delegated_group WHERE system = ? ORDER BY lower_name",
		string(system))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGroups(rows)
}

func collectGroups(rows *sql.Rows) ([]domain.DelegatedGroup, error) {
	var out []domain.DelegatedGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// Delete removes the group and, through ON DELETE CASCADE, all of its grants
// and owning-group rules in one transaction. The returned counts are taken
// before the delete so callers can report what the cascade removed.
func (r *GroupRepo) Delete(ctx context.Context, id int64) (*domain.GroupDeletion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var name string
	if err := tx.QueryRowContext(ctx,
		"SELECT name FROM delegated_group WHERE id = ?", id).Scan(&name); err != nil {
		return nil, mapDBError(err)
	}

	del := &domain.GroupDeletion{GroupID: id, GroupName: name}
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ownership_grant WHERE group_id = ?", id).Scan(&del.GrantsDeleted); err != nil {
		return nil, err
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM owning_group_rule WHERE group_id = ?", id).Scan(&del.RulesDeleted); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM delegated_group WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, domain.ErrNotFound("delegated group %d not found", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit group delete: %w", err)
	}
	return del, nil
}
