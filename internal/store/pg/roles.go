package pg

import (
	"context"
	"database/sql"
	"errors"

	"distributor.app/internal/auth"
)

type roleStore struct {
	db *sql.DB
}

func (s roleStore) Create(ctx context.Context, r *auth.Role) error {
	if s.db == nil {
		return errNoDB
	}
	err := s.db.QueryRowContext(ctx, `insert into roles (name) values ($1) returning id`, r.Name).Scan(&r.ID)
	if err != nil {
		if isPgCode(err, pgErrUniqueViolation) {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s roleStore) Find(ctx context.Context, id int64) (*auth.Role, error) {
	return s.findOne(ctx, `select id, name from roles where id = $1`, id)
}

func (s roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findOne(ctx, `select id, name from roles where lower(name) = lower($1)`, name)
}

func (s roleStore) findOne(ctx context.Context, query string, arg any) (*auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var r auth.Role
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&r.ID, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select id, name from roles order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
