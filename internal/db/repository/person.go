package repository

import (
	"context"
	"database/sql"
	"time"

	"delegated-groups/internal/domain"
)

type PersonRepo struct {
	db *sql.DB
}

func NewPersonRepo(db *sql.DB) *PersonRepo {
	return &PersonRepo{db: db}
}

const personColumns = "id, username, email, lower_username, lower_email, created_at"

func scanPerson(row interface{ Scan(...any) error }) (*domain.Person, error) {
	var p domain.Person
	var email, lowerEmail sql.NullString
	if err := row.Scan(&p.ID, &p.Username, &email, &p.LowerUsername, &lowerEmail, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Email = email.String
	if lowerEmail.Valid {
		le := lowerEmail.String
		p.LowerEmail = &le
	}
	return &p, nil
}

func (r *PersonRepo) GetByIdentity(ctx context.Context, lowerUsername string, lowerEmail *string) (*domain.Person, error) {
	var row *sql.Row
	if lowerEmail == nil {
		row = r.db.QueryRowContext(ctx,
			"SELECT "+personColumns+" FROM person WHERE lower_username = ? AND lower_email IS NULL",
			lowerUsername)
	} else {
		row = r.db.QueryRowContext(ctx,
			"SELECT "+personColumns+" FROM person WHERE lower_username = ? AND lower_email = ?",
			lowerUsername, *lowerEmail)
	}
	p, err := scanPerson(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

func (r *PersonRepo) Create(ctx context.Context, p *domain.Person) (*domain.Person, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO person (username, email, lower_username, lower_email, created_at) VALUES (?, ?, ?, ?, ?)",
		p.Username, emptyNull(p.Email), p.LowerUsername, nullString(p.LowerEmail), now)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := *p
	created.ID = id
	created.CreatedAt = now
	return &created, nil
}

func (r *PersonRepo) GetByEmail(ctx context.Context, lowerEmail string) (*domain.Person, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+personColumns+" FROM person WHERE lower_email = ? ORDER BY id LIMIT 1",
		lowerEmail)
	p, err := scanPerson(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

func (r *PersonRepo) GetByUsername(ctx context.Context, lowerUsername string) (*domain.Person, error) {
	// Oldest row wins when the same username exists with and without email.
	row := r.db.QueryRowContext(ctx,
		"SELECT "+personColumns+" FROM person WHERE lower_username = ? ORDER BY id LIMIT 1",
		lowerUsername)
	p, err := scanPerson(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}
