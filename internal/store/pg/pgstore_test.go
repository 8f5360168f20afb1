package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"distributor.app/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

var accountCols = []string{"id", "username", "email", "first_name", "last_name", "password_hash",
	"is_active", "is_superuser", "role_id", "created_at", "updated_at"}

func TestAccountCreateConflict(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	roleID := int64(2)

	mock.ExpectQuery("insert into accounts").
		WithArgs("alice", "alice@x.io", "", "", "hash", true, false, sql.NullInt64{Int64: 2, Valid: true}, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))
	acc := &auth.Account{Username: "alice", Email: "alice@x.io", PasswordHash: "hash", IsActive: true, RoleID: &roleID, CreatedAt: now, UpdatedAt: now}
	if err := store.Accounts(ctx).Create(ctx, acc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if acc.ID != 11 {
		t.Fatalf("expected id 11, got %d", acc.ID)
	}

	mock.ExpectQuery("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	dup := &auth.Account{Username: "alice", Email: "alice@x.io", PasswordHash: "hash"}
	if err := store.Accounts(ctx).Create(ctx, dup); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectQuery("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if err := store.Accounts(ctx).Create(ctx, dup); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAccountFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`from accounts where lower\(email\) = lower\(\$1\)`).
		WithArgs("Alice@x.io").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(3, "alice", "alice@x.io", "Alice", "A", "hash", true, false, 2, now, now))
	acc, err := store.Accounts(ctx).FindByEmail(ctx, "Alice@x.io")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if acc.ID != 3 || acc.RoleID == nil || *acc.RoleID != 2 {
		t.Fatalf("unexpected account: %+v", acc)
	}

	mock.ExpectQuery("from accounts where id").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	if _, err := store.Accounts(ctx).Find(ctx, 99); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountUpdateAndDelete(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("update accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Accounts(ctx).Update(ctx, &auth.Account{ID: 5}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec("update accounts").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if err := store.Accounts(ctx).Update(ctx, &auth.Account{ID: 5}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectExec("delete from accounts").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Accounts(ctx).Delete(ctx, 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestRoleStore(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("insert into roles").WithArgs("staff").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	r := &auth.Role{Name: "staff"}
	if err := store.Roles(ctx).Create(ctx, r); err != nil || r.ID != 2 {
		t.Fatalf("Create: id=%d err=%v", r.ID, err)
	}

	mock.ExpectQuery("insert into roles").WithArgs("staff").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if err := store.Roles(ctx).Create(ctx, &auth.Role{Name: "staff"}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectQuery(`from roles where lower\(name\)`).WithArgs("auditor").WillReturnError(sql.ErrNoRows)
	if _, err := store.Roles(ctx).FindByName(ctx, "auditor"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery("select id, name from roles order by id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "admin").AddRow(2, "staff"))
	roles, err := store.Roles(ctx).List(ctx)
	if err != nil || len(roles) != 2 {
		t.Fatalf("List: %v %v", roles, err)
	}
}

func TestMappingCreateUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("insert into user_mappings").
		WithArgs(int64(1), int64(7), 3, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(4, now))
	m := &auth.IdentityMapping{AccountID: 1, ExternalID: 7, UserLevel: 3, CreatedAt: now}
	if err := store.Mappings(ctx).Create(ctx, m); err != nil || m.ID != 4 {
		t.Fatalf("Create: id=%d err=%v", m.ID, err)
	}

	mock.ExpectQuery("insert into user_mappings").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "user_mappings_external_id_key"})
	if err := store.Mappings(ctx).Create(ctx, &auth.IdentityMapping{AccountID: 2, ExternalID: 7}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectQuery("insert into user_mappings").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if err := store.Mappings(ctx).Create(ctx, &auth.IdentityMapping{AccountID: 404, ExternalID: 8}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMappingLookups(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	cols := []string{"id", "account_id", "external_id", "user_level", "created_at"}

	mock.ExpectQuery("from user_mappings where account_id").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(4, 1, 7, 0, now))
	m, err := store.Mappings(ctx).FindByAccount(ctx, 1)
	if err != nil || m.ExternalID != 7 {
		t.Fatalf("FindByAccount: %+v %v", m, err)
	}

	mock.ExpectQuery("from user_mappings where external_id").WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)
	if _, err := store.Mappings(ctx).FindByExternal(ctx, 8); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec("delete from user_mappings").WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Mappings(ctx).Delete(ctx, 4); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokedTokens(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec("insert into revoked_tokens").WithArgs("k1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	inserted, err := store.Insert(ctx, "k1", now)
	if err != nil || !inserted {
		t.Fatalf("Insert: inserted=%v err=%v", inserted, err)
	}

	mock.ExpectExec("on conflict \\(token_hash\\) do nothing").WithArgs("k1", now).WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err = store.Insert(ctx, "k1", now)
	if err != nil || inserted {
		t.Fatalf("duplicate Insert: inserted=%v err=%v", inserted, err)
	}

	mock.ExpectQuery("select exists").WithArgs("k1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := store.Exists(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	cutoff := now.Add(-24 * time.Hour)
	mock.ExpectExec("delete from revoked_tokens where created_at < ").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := store.DeleteOlderThan(ctx, cutoff)
	if err != nil || n != 3 {
		t.Fatalf("DeleteOlderThan: n=%d err=%v", n, err)
	}
}

func TestNilDB(t *testing.T) {
	store := New(nil)
	ctx := context.Background()
	if _, err := store.Accounts(ctx).Find(ctx, 1); !errors.Is(err, errNoDB) {
		t.Fatalf("expected errNoDB, got %v", err)
	}
	if _, err := store.Exists(ctx, "k"); !errors.Is(err, errNoDB) {
		t.Fatalf("expected errNoDB, got %v", err)
	}
}
