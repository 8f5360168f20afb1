// Package store opens the storage backends selected by configuration.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"distributor.app/internal/auth"
	"distributor.app/internal/config"
	"distributor.app/internal/store/memory"
	"distributor.app/internal/store/pg"
	"distributor.app/internal/store/redisrev"
)

// Check reports whether one backend answers.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

// Backends holds the opened stores. Close releases every connection.
type Backends struct {
	Store      auth.Store
	Revocation auth.RevocationStore
	Postgres   *sql.DB
	Checks     []Check

	closers []func() error
}

// Open connects the account store and the revocation store. The role cache
// is layered over the account store.
func Open(ctx context.Context, cfg config.Config) (*Backends, error) {
	b := &Backends{}
	var (
		pgStore  *pg.Store
		memStore *memory.Store
	)
	openPG := func() (*pg.Store, error) {
		if pgStore != nil {
			return pgStore, nil
		}
		s, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := s.DB().PingContext(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		pgStore = s
		b.Postgres = s.DB()
		b.closers = append(b.closers, s.Close)
		b.Checks = append(b.Checks, Check{Name: "postgres", Check: s.DB().PingContext})
		return s, nil
	}
	openMem := func() *memory.Store {
		if memStore == nil {
			memStore = memory.New()
		}
		return memStore
	}

	var base auth.Store
	switch cfg.Store {
	case config.BackendPostgres:
		s, err := openPG()
		if err != nil {
			return nil, err
		}
		base = s
	case config.BackendMemory:
		base = openMem()
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	switch cfg.RevocationBackend {
	case config.BackendPostgres:
		s, err := openPG()
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Revocation = s
	case config.BackendRedis:
		s, err := redisrev.Open(ctx, cfg.RedisURL)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Revocation = s
		b.closers = append(b.closers, s.Close)
		b.Checks = append(b.Checks, Check{Name: "redis", Check: s.Ping})
	case config.BackendMemory:
		b.Revocation = openMem()
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown revocation backend %q", cfg.RevocationBackend)
	}

	cached, err := auth.WithRoleCache(base, cfg.RoleCacheSize)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Store = cached
	return b, nil
}

// Close closes every opened connection.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
