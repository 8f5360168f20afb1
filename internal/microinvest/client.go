// Package microinvest reads the Microinvest point-of-sale database (SQL Server).
// The gateway never writes to it.
package microinvest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"distributor.app/internal/auth"
)

// Client is a read-only handle to the Microinvest database.
type Client struct {
	db  *sql.DB
	now func() time.Time
}

var _ auth.ExternalDirectory = (*Client)(nil)

// Open connects with a sqlserver:// DSN.
func Open(dsn string) (*Client, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Client { return &Client{db: db, now: time.Now} }

func (c *Client) Close() error { return c.db.Close() }

func (c *Client) DB() *sql.DB { return c.db }

// LookupUser returns the Microinvest user with id or auth.ErrNotFound.
func (c *Client) LookupUser(ctx context.Context, id int64) (auth.ExternalUser, error) {
	var (
		u    auth.ExternalUser
		name sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT ID, Name, UserLevel FROM dbo.Users WHERE ID = @id`,
		sql.Named("id", id),
	).Scan(&u.ID, &name, &u.UserLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ExternalUser{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.ExternalUser{}, fmt.Errorf("microinvest: lookup user %d: %w", id, err)
	}
	u.Name = name.String
	return u, nil
}
