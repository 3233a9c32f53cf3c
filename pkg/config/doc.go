// Package config provides a type-safe, generic and cached way to load
// application configuration from environment variables.
//
// It wraps `github.com/joho/godotenv` and `github.com/caarlos0/env/v11` to
// deliver a convenient API that:
//
//   - Loads values from the default `.env` file in the current working
//     directory when present.
//   - Parses the environment into any Go struct using field tags.
//   - Caches each successfully loaded configuration type so it is only parsed
//     once for the lifetime of the process.
//   - Exposes `MustLoad` for configurations the process cannot start without.
//
// # Architecture
//
// Internally the package keeps a singleton cache that stores parsed struct
// copies keyed by their fully-qualified type name. Each key also holds a
// `sync.Once` instance guaranteeing the parsing work is executed at most once
// per configuration type even when accessed from multiple goroutines
// concurrently.
//
// # Usage
//
// Create a struct describing your configuration and annotate its fields with
// `env` tags:
//
//	type CacheConfig struct {
//	    RedisURL    string        `env:"REDIS_URL,required"`
//	    SnapshotTTL time.Duration `env:"FLAG_SNAPSHOT_TTL" envDefault:"30s"`
//	}
//
//	var cache CacheConfig
//	if err := config.Load(&cache); err != nil {
//	    log.Fatalf("parsing env: %v", err)
//	}
//
// Subsequent calls to `config.Load(&cache)` are served from the in-memory
// cache without re-parsing.
//
// # Error Handling
//
// The package defines sentinel errors that can be compared with `errors.Is`:
//
//   - `ErrParsingConfig`   – failed to parse env vars into struct.
//   - `ErrConfigNotLoaded` – requested config type has not been loaded yet.
//   - `ErrNilPointer`      – nil pointer passed to `Load`/`MustLoad`.
package config
