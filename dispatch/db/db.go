// Package db owns the pgxpool.Pool connecting this service to its
// CockroachDB cluster, plus the crdbpgx-wrapped transaction-retry helper
// every multi-statement write in this repo (job assignment, time-tracking
// ledger writes, escalation advancement) goes through. Adapted in place
// from golden/go/db/db.go: the pool-construction and logging-hook pattern
// is kept, generalized off of golden/go/sql.GetConnectionURL (dropped, not
// part of the retrieved pack) to a plain connection string in
// dispatch/config.Common, and a RunTxn helper is added on top, grounded
// on the teacher's use of github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx
// elsewhere in the pack's go.sum.
package db

import (
	"context"
	"sync"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/dispatch/config"
	"go.fieldcore.build/go/sklog"
)

const maxSQLConnections = 20

var (
	pool     *pgxpool.Pool
	poolOnce sync.Once
)

// MustInitSQLDatabase initializes the connection pool to cfg.SQLConnection.
// Subsequent calls return the pool built on the first call. Fatal via
// sklog.Fatalf on any connection error, matching the teacher's
// fail-fast-at-startup behavior.
func MustInitSQLDatabase(ctx context.Context, cfg config.Common, logSQLQueries bool) *pgxpool.Pool {
	poolOnce.Do(func() {
		pool = mustInitSQLDatabaseImpl(ctx, cfg, logSQLQueries)
	})
	return pool
}

// crdbLogger forwards pgx driver log events to sklog, at Info severity,
// scoped to local/dev use per logSQLQueries.
type crdbLogger struct{}

func (l crdbLogger) Log(ctx context.Context, level pgx.LogLevel, msg string, data map[string]interface{}) {
	sklog.Infof("[pgxpool %s] %q %+v", level, msg, data)
}

func mustInitSQLDatabaseImpl(ctx context.Context, cfg config.Common, logSQLQueries bool) *pgxpool.Pool {
	if cfg.SQLConnection == "" {
		sklog.Fatalf("Must have sql_connection set in config")
	}
	conf, err := pgxpool.ParseConfig(cfg.SQLConnection)
	if err != nil {
		sklog.Fatalf("error parsing sql_connection %s: %s", cfg.SQLConnection, err)
	}
	if logSQLQueries && cfg.Local {
		conf.ConnConfig.Logger = crdbLogger{}
	}
	conf.MaxConns = maxSQLConnections
	p, err := pgxpool.ConnectConfig(ctx, conf)
	if err != nil {
		sklog.Fatalf("error connecting to the database: %s", err)
	}
	sklog.Infof("Connected to SQL database")
	return p
}

// Querier is the subset of pgxpool.Pool/pgx.Tx this repo's data-access code
// depends on, so packages can be exercised against a transaction or the
// pool interchangeably.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// RunTxn runs fn inside a serializable transaction, automatically retrying
// on CockroachDB retryable (40001) errors via crdbpgx.ExecuteTx. Every
// multi-statement write path in this repo (job assignment + audit log,
// ledger writes + completion upsert, escalation advancement) should go
// through this rather than pool.Begin directly.
func RunTxn(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return crdbpgx.ExecuteTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}
