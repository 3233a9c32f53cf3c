// Package redis provides convenient helpers for connecting to the Redis
// server that backs the snapshot cache.
//
// The package wraps the go-redis client and adds:
//
//   - A robust `Connect` which retries the connection using the supplied
//     configuration.
//   - Health-check helpers to integrate Redis into liveness / readiness
//     probes.
//
// Configuration is described by the `Config` struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	cfg := redis.Config{
//	    ConnectionURL:  "redis://localhost:6379/0",
//	    RetryAttempts:  3,
//	    RetryInterval:  5 * time.Second,
//	    ConnectTimeout: 30 * time.Second,
//	}
//
//	ctx := context.Background()
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
// The connected client typically feeds the snapshot cache:
//
//	cached := flagstore.NewCachedStore(store, client, flagstore.WithTTL(time.Minute))
//	engine, err := feature.NewEngine(cached)
//
// Register a health-check in your observability stack:
//
//	checker := redis.Healthcheck(client)
//	if err := checker(ctx); err != nil {
//	    // redis is not healthy
//	}
//
// # Errors
//
// The package defines sentinel errors (e.g. ErrRedisNotReady) that wrap the
// underlying go-redis errors using errors.Join, which makes them easy to
// compare and unwrap.
package redis
