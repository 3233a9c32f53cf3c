// Package pg provides utilities for interacting with PostgreSQL using the
// pgx/v5 driver. It offers a thin abstraction around connection pooling,
// migrations, health checks, and common error helpers so the flag storage
// layer can bootstrap a resilient database connection with a few lines of
// code.
//
// The package keeps a small API surface while relying on battle-tested
// upstream libraries (`pgx/v5` for connectivity and `goose/v3` for schema
// migrations) so that callers are never locked-in and can freely extend the
// behaviour where needed.
//
// # Architecture
//
// At its core the package exposes three cooperating building blocks:
//
//   - Config – a declarative struct whose fields are populated from
//     environment variables via github.com/caarlos0/env. It controls
//     connection pool limits, health-check cadence and migration paths.
//
//   - Connect – opens a *pgxpool.Pool based on Config, retrying with
//     backoff until the database becomes available.
//
//   - Migrate – runs goose database migrations against the same connection
//     pool, guaranteeing the flag schema is up-to-date before the service
//     starts evaluating.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//	    panic(err)
//	}
//
//	ctx := context.Background()
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    panic(err)
//	}
//
// # Error Handling
//
// Convenience helpers such as [IsDuplicateKeyError] or
// [IsForeignKeyViolationError] unwrap `*pgconn.PgError` values returned by
// pgx and make error classification trivial inside the storage layer.
package pg
