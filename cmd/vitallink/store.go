package main

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/vitallink/internal/cfg"
	"github.com/linnemanlabs/vitallink/internal/postgres"
	"github.com/linnemanlabs/vitallink/internal/sos"
	"github.com/linnemanlabs/vitallink/internal/sos/memstore"
	"github.com/linnemanlabs/vitallink/internal/sos/pgstore"
	"github.com/linnemanlabs/vitallink/internal/sos/sqlitestore"
)

// openStore connects the backend the configuration selects. On success the
// returned close function is never nil.
func openStore(ctx context.Context, c *vc.Config, L log.Logger) (sos.Store, func(), error) {
	switch c.Store() {
	case vc.StorePostgres:
		pool, err := postgres.NewPool(ctx, c.DatabaseURL, poolOptions(c))
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		s, err := pgstore.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres store", "max_conns", pool.Config().MaxConns, "log_slow_ms", c.DBLogSlowMs)
		return s, pool.Close, nil

	case vc.StoreSQLite:
		s, err := sqlitestore.Open(ctx, c.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		L.Info(ctx, "using sqlite store", "path", s.Path())
		return s, func() {
			if err := s.Close(); err != nil {
				L.Error(context.Background(), err, "failed to close sqlite store")
			}
		}, nil

	default:
		L.Info(ctx, "using in-memory store (no database-url or sqlite-path configured)")
		return memstore.New(), func() {}, nil
	}
}

func poolOptions(c *vc.Config) postgres.PoolOptions {
	return postgres.PoolOptions{
		AppName:  appName,
		MaxConns: int32(c.DBMaxConns), //nolint:gosec // bounded to 0..1000 by Validate
		LogAbove: c.DBLogSlow(),
	}
}
