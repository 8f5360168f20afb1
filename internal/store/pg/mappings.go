package pg

import (
	"context"
	"database/sql"
	"errors"

	"distributor.app/internal/auth"
)

const mappingColumns = `id, account_id, external_id, user_level, created_at`

type mappingStore struct {
	db *sql.DB
}

// Create relies on the unique constraints over account_id and external_id;
// whichever concurrent insert commits second gets auth.ErrConflict.
func (s mappingStore) Create(ctx context.Context, m *auth.IdentityMapping) error {
	if s.db == nil {
		return errNoDB
	}
	err := s.db.QueryRowContext(ctx, `
		insert into user_mappings (account_id, external_id, user_level, created_at)
		values ($1, $2, $3, $4)
		returning id, created_at
	`, m.AccountID, m.ExternalID, m.UserLevel, m.CreatedAt).Scan(&m.ID, &m.CreatedAt)
	switch {
	case err == nil:
		return nil
	case isPgCode(err, pgErrUniqueViolation):
		return auth.ErrConflict
	case isPgCode(err, pgErrForeignKeyViolation):
		return auth.ErrNotFound
	default:
		return err
	}
}

func (s mappingStore) Find(ctx context.Context, id int64) (*auth.IdentityMapping, error) {
	return s.findOne(ctx, `select `+mappingColumns+` from user_mappings where id = $1`, id)
}

func (s mappingStore) FindByAccount(ctx context.Context, accountID int64) (*auth.IdentityMapping, error) {
	return s.findOne(ctx, `select `+mappingColumns+` from user_mappings where account_id = $1`, accountID)
}

func (s mappingStore) FindByExternal(ctx context.Context, externalID int64) (*auth.IdentityMapping, error) {
	return s.findOne(ctx, `select `+mappingColumns+` from user_mappings where external_id = $1`, externalID)
}

func (s mappingStore) findOne(ctx context.Context, query string, arg any) (*auth.IdentityMapping, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var m auth.IdentityMapping
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&m.ID, &m.AccountID, &m.ExternalID, &m.UserLevel, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s mappingStore) List(ctx context.Context) ([]*auth.IdentityMapping, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+mappingColumns+` from user_mappings order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.IdentityMapping
	for rows.Next() {
		var m auth.IdentityMapping
		if err := rows.Scan(&m.ID, &m.AccountID, &m.ExternalID, &m.UserLevel, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s mappingStore) Delete(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from user_mappings where id = $1`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
