// Package migrate applies the gateway's PostgreSQL schema with golang-migrate
// and loads the idempotent seed data.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"distributor.app/internal/obs"
)

//go:embed sql/migrations/*.sql sql/seeds/*.sql
var embedded embed.FS

const (
	migrationsDir = "sql/migrations"
	seedsDir      = "sql/seeds"
)

// ErrNothingApplied is returned by Down when the schema is empty.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

// Status describes the schema version of a database.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
	// Applied is false for a database that never ran a migration.
	Applied bool
}

// Migrator runs the embedded migrations against one database. It owns its
// own connection; Close releases it.
type Migrator struct {
	m      *migrate.Migrate
	latest uint
}

// New opens a migrator for a postgres:// DSN.
func New(dsn string) (*Migrator, error) {
	dbURL, err := databaseURL(dsn)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(embedded, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrate: open embedded source: %w", err)
	}
	latest, err := latestVersion(src)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("migrate: connect: %w", err)
	}
	m.Log = logAdapter{obs.Logger().WithField("component", "migrate")}
	return &Migrator{m: m, latest: latest}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (g *Migrator) Up(ctx context.Context) error {
	return g.run(ctx, func() error {
		if err := g.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate: up: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent migration.
func (g *Migrator) Down(ctx context.Context) error {
	if _, _, err := g.m.Version(); errors.Is(err, migrate.ErrNilVersion) {
		return ErrNothingApplied
	}
	return g.run(ctx, func() error {
		if err := g.m.Steps(-1); err != nil {
			return fmt.Errorf("migrate: down: %w", err)
		}
		return nil
	})
}

// Status reports the applied and latest embedded versions.
func (g *Migrator) Status() (Status, error) {
	version, dirty, err := g.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return Status{Latest: g.latest}, nil
	case err != nil:
		return Status{}, fmt.Errorf("migrate: version: %w", err)
	}
	return Status{Version: version, Latest: g.latest, Dirty: dirty, Applied: true}, nil
}

// Close releases the migrator's connection.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

// run executes fn and asks golang-migrate to stop after the current step
// when ctx is cancelled.
func (g *Migrator) run(ctx context.Context, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case g.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	return ctx.Err()
}

// Seed runs every embedded seed file in name order inside one transaction.
// Seed files must be idempotent.
func Seed(ctx context.Context, db *sql.DB) error {
	return seedFrom(ctx, db, embedded, seedsDir)
}

func seedFrom(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	if db == nil {
		return errors.New("migrate: nil database")
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("migrate: read seeds: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, name := range names {
		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate: seed %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// databaseURL maps a libpq style URL onto the pgx5 scheme golang-migrate
// registers. Keyword/value DSNs are not supported.
func databaseURL(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	for _, prefix := range []string{"postgres://", "postgresql://", "pgx5://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
		}
	}
	return "", errors.New("migrate: DSN must be a postgres:// URL")
}

type versionSource interface {
	First() (uint, error)
	Next(version uint) (uint, error)
}

func latestVersion(src versionSource) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("migrate: no embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, err
		}
		v = next
	}
}

type logAdapter struct{ *logrus.Entry }

func (l logAdapter) Printf(format string, v ...any) {
	l.Entry.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l logAdapter) Verbose() bool {
	return l.Entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
