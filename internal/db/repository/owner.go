package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"delegated-groups/internal/domain"
)

// OwnerRepo persists ownership grants and owning-group rules.
type OwnerRepo struct {
	db *sql.DB
}

func NewOwnerRepo(db *sql.DB) *OwnerRepo {
	return &OwnerRepo{db: db}
}

func (r *OwnerRepo) AddDirectGrant(ctx context.Context, groupID, personID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ownership_grant (group_id, person_id, kind, via_group, lower_via_group, created_at)
		 VALUES (?, ?, 'direct', NULL, NULL, ?)`,
		groupID, personID, time.Now().UTC())
	if err != nil {
		return false, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddDerivedGrant inserts one derived grant directly. Only the CSV importer
// uses this; runtime derived grants go through ReconcileDerivedGrants.
func (r *OwnerRepo) AddDerivedGrant(ctx context.Context, groupID, personID int64, owningGroup string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ownership_grant (group_id, person_id, kind, via_group, lower_via_group, created_at)
		 VALUES (?, ?, 'derived', ?, ?, ?)`,
		groupID, personID, owningGroup, strings.ToLower(owningGroup), time.Now().UTC())
	if err != nil {
		return false, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *OwnerRepo) RemoveDirectGrant(ctx context.Context, groupID, personID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM ownership_grant WHERE group_id = ? AND person_id = ? AND kind = 'direct'",
		groupID, personID)
	if err != nil {
		return 0, mapDBError(err)
	}
	return res.RowsAffected()
}

func (r *OwnerRepo) AddRule(ctx context.Context, rule *domain.OwningGroupRule) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO owning_group_rule (group_id, owning_group, lower_owning_group, created_at)
		 VALUES (?, ?, ?, ?)`,
		rule.GroupID, rule.OwningGroup, rule.LowerOwningGroup, time.Now().UTC())
	if err != nil {
		return false, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveRuleWithGrants deletes the rule and every derived grant expanded from
// it in one transaction, so a reader never observes the rule without its
// grants or the grants without the rule.
func (r *OwnerRepo) RemoveRuleWithGrants(ctx context.Context, groupID int64, lowerOwningGroup string) (*domain.RuleRemoval, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	removal := &domain.RuleRemoval{}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM ownership_grant WHERE group_id = ? AND kind = 'derived' AND lower_via_group = ?",
		groupID, lowerOwningGroup)
	if err != nil {
		return nil, err
	}
	if removal.GrantsDeleted, err = res.RowsAffected(); err != nil {
		return nil, err
	}

	res, err = tx.ExecContext(ctx,
		"DELETE FROM owning_group_rule WHERE group_id = ? AND lower_owning_group = ?",
		groupID, lowerOwningGroup)
	if err != nil {
		return nil, err
	}
	if removal.RulesDeleted, err = res.RowsAffected(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rule removal: %w", err)
	}
	return removal, nil
}

func (r *OwnerRepo) ListRules(ctx context.Context, groupID int64) ([]domain.OwningGroupRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, owning_group, lower_owning_group, created_at
		 FROM owning_group_rule WHERE group_id = ? ORDER BY lower_owning_group`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OwningGroupRule
	for rows.Next() {
		var rule domain.OwningGroupRule
		if err := rows.Scan(&rule.ID, &rule.GroupID, &rule.OwningGroup, &rule.LowerOwningGroup, &rule.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *OwnerRepo) ListRuleTriples(ctx context.Context) ([]domain.RuleTriple, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.system, g.id, g.name, r.owning_group
		 FROM owning_group_rule r
		 JOIN delegated_group g ON g.id = r.group_id
		 ORDER BY g.system, g.lower_name, r.lower_owning_group`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RuleTriple
	for rows.Next() {
		var t domain.RuleTriple
		if err := rows.Scan(&t.System, &t.GroupID, &t.GroupName, &t.OwningGroup); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReconcileDerivedGrants makes the derived grants for (groupID, owningGroup)
// match desiredPersonIDs exactly. Existing rows are left untouched so their
// created_at survives; the load, diff, and writes share one transaction.
func (r *OwnerRepo) ReconcileDerivedGrants(ctx context.Context, groupID int64, owningGroup string, desiredPersonIDs []int64) (added, removed int64, err error) {
	lowerOwning := strings.ToLower(owningGroup)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT person_id FROM ownership_grant WHERE group_id = ? AND kind = 'derived' AND lower_via_group = ?",
		groupID, lowerOwning)
	if err != nil {
		return 0, 0, err
	}
	existing := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, err
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, err
	}
	rows.Close()

	desired := make(map[int64]bool, len(desiredPersonIDs))
	for _, id := range desiredPersonIDs {
		desired[id] = true
	}

	now := time.Now().UTC()
	for id := range desired {
		if existing[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ownership_grant (group_id, person_id, kind, via_group, lower_via_group, created_at)
			 VALUES (?, ?, 'derived', ?, ?, ?)`,
			groupID, id, owningGroup, lowerOwning, now); err != nil {
			return 0, 0, mapDBError(err)
		}
		added++
	}
	for id := range existing {
		if desired[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM ownership_grant WHERE group_id = ? AND person_id = ? AND kind = 'derived' AND lower_via_group = ?",
			groupID, id, lowerOwning); err != nil {
			return 0, 0, err
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit derived-grant reconcile: %w", err)
	}
	return added, removed, nil
}

func (r *OwnerRepo) ListEffectiveOwners(ctx context.Context, groupID int64) ([]domain.EffectiveOwner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.username, p.email, p.lower_username, p.lower_email, p.created_at,
		        og.kind, og.via_group, og.created_at
		 FROM ownership_grant og
		 JOIN person p ON p.id = og.person_id
		 WHERE og.group_id = ?
		 ORDER BY CASE og.kind WHEN 'direct' THEN 0 ELSE 1 END, p.lower_username, og.lower_via_group`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EffectiveOwner
	for rows.Next() {
		var o domain.EffectiveOwner
		var email, lowerEmail, viaGroup sql.NullString
		if err := rows.Scan(
			&o.Person.ID, &o.Person.Username, &email, &o.Person.LowerUsername, &lowerEmail, &o.Person.CreatedAt,
			&o.Kind, &viaGroup, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Person.Email = email.String
		if lowerEmail.Valid {
			le := lowerEmail.String
			o.Person.LowerEmail = &le
		}
		o.ViaGroup = viaGroup.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OwnerRepo) HasAnyGrant(ctx context.Context, groupID, personID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ownership_grant WHERE group_id = ? AND person_id = ?",
		groupID, personID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *OwnerRepo) ListGrantsForPerson(ctx context.Context, personID int64) ([]domain.PersonGrant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.system, g.name, og.kind, og.via_group
		 FROM ownership_grant og
		 JOIN delegated_group g ON g.id = og.group_id
		 WHERE og.person_id = ?
		 ORDER BY g.system, g.lower_name, og.kind`,
		personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PersonGrant
	for rows.Next() {
		var pg domain.PersonGrant
		var viaGroup sql.NullString
		if err := rows.Scan(&pg.System, &pg.GroupName, &pg.Kind, &viaGroup); err != nil {
			return nil, err
		}
		pg.ViaGroup = viaGroup.String
		out = append(out, pg)
	}
	return out, rows.Err()
}
