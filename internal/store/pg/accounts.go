package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"distributor.app/internal/auth"
)

const accountColumns = `id, username, email, first_name, last_name, password_hash,
	is_active, is_superuser, role_id, created_at, updated_at`

type accountStore struct {
	db *sql.DB
}

func scanAccount(row rowScanner) (*auth.Account, error) {
	var (
		a      auth.Account
		roleID sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash,
		&a.IsActive, &a.IsSuperuser, &roleID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if roleID.Valid {
		id := roleID.Int64
		a.RoleID = &id
	}
	return &a, nil
}

func (s accountStore) Create(ctx context.Context, a *auth.Account) error {
	if s.db == nil {
		return errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into accounts (username, email, first_name, last_name, password_hash,
			is_active, is_superuser, role_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning id, created_at, updated_at
	`, a.Username, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		a.IsActive, a.IsSuperuser, nullableID(a.RoleID), a.CreatedAt, a.UpdatedAt)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return accountError(err)
	}
	return nil
}

func (s accountStore) Find(ctx context.Context, id int64) (*auth.Account, error) {
	return s.findOne(ctx, `select `+accountColumns+` from accounts where id = $1`, id)
}

func (s accountStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return s.findOne(ctx, `select `+accountColumns+` from accounts where lower(email) = lower($1)`, email)
}

func (s accountStore) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	return s.findOne(ctx, `select `+accountColumns+` from accounts where username = $1`, username)
}

func (s accountStore) findOne(ctx context.Context, query string, arg any) (*auth.Account, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s accountStore) List(ctx context.Context) ([]*auth.Account, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+accountColumns+` from accounts order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s accountStore) Update(ctx context.Context, a *auth.Account) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set username = $2, email = $3, first_name = $4, last_name = $5, password_hash = $6,
			is_active = $7, is_superuser = $8, role_id = $9, updated_at = $10
		where id = $1
	`, a.ID, a.Username, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		a.IsActive, a.IsSuperuser, nullableID(a.RoleID), a.UpdatedAt)
	if err != nil {
		return accountError(err)
	}
	return affectedOrNotFound(res)
}

// Delete removes the account; user_mappings rows go with it through the
// foreign key's on delete cascade.
func (s accountStore) Delete(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func accountError(err error) error {
	switch {
	case isPgCode(err, pgErrUniqueViolation):
		return auth.ErrConflict
	case isPgCode(err, pgErrForeignKeyViolation):
		return fmt.Errorf("%w: unknown role", auth.ErrInvalidInput)
	default:
		return err
	}
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
