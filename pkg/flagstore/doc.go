// Package flagstore provides production implementations of the feature
// package's storage ports.
//
// PostgresStore persists flags, segments, experiments, and usage records in
// PostgreSQL via pgx; schema migrations live under migrations/ and are
// applied with pkg/pg.Migrate. CachedStore wraps any feature.Store with a
// Redis snapshot cache so hot flags avoid a database round trip on every
// evaluation. FileStore serves read-only flag fixtures from a YAML file for
// development and static deployments.
//
// # Usage
//
//	pool, err := pg.Connect(ctx, pgCfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	store := flagstore.NewPostgresStore(pool)
//
//	rdb, err := redis.Connect(ctx, redisCfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	cached := flagstore.NewCachedStore(store, rdb, flagstore.WithTTL(30*time.Second))
//
//	engine, err := feature.NewEngine(cached)
package flagstore
