// Package feature is a feature-flag and controlled-experiment evaluation
// engine: given a flag key and an optional user identity, it decides whether
// the feature is enabled and which value or experiment variant applies, and
// records that decision for later analysis.
//
// # Architecture
//
// The package is built around pure computation over explicit ports:
//
//  1. Store - a read port resolving a flag key into a Snapshot (the flag,
//     its segments, and its experiments), fully detached from storage
//  2. Engine - the precedence chain turning a snapshot into a Decision
//  3. Recorder / Analytics - the UsageStorage write port and the read-only
//     aggregation over it
//
// Evaluation is stateless and deterministic. Rollout bucketing and variant
// assignment are pure functions of (user identity, flag/experiment identity)
// via the pinned hash in pkg/bucket, so repeated calls return identical
// decisions ("sticky" assignment) without per-user state, and arbitrarily
// many Evaluate calls may run in parallel with no coordination.
//
// The precedence chain, first match wins: archived or missing flag, inactive
// flag, direct user targeting, active segments by priority, percentage
// rollout, running experiments in creation order, default. Configuration
// mistakes - missing flags, malformed segment conditions, empty experiments -
// degrade to "no match" rather than erroring, so a bad flag definition
// disables a feature instead of breaking the caller.
//
// # Usage
//
//	store, err := feature.NewMemoryStore(&feature.Flag{
//		Key:               "new-dashboard",
//		Name:              "New dashboard",
//		Value:             true,
//		DefaultValue:      false,
//		Active:            true,
//		RolloutPercentage: 50,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	engine, err := feature.NewEngine(store)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	decision, err := engine.Evaluate(ctx, "new-dashboard", "user-42", nil)
//	if err != nil {
//		// storage failure; decision is still safe to use (fail-closed)
//	}
//	if decision.Enabled {
//		// serve the new dashboard
//	}
//
// Recording usage and reading analytics:
//
//	usage := feature.NewMemoryUsageStorage()
//	recorder, _ := feature.NewRecorder(store, usage)
//	_, err = recorder.Record(ctx, "new-dashboard", "user-42", decision.Variant,
//		map[string]any{"action": "viewed"}, nil)
//
//	analytics, _ := feature.NewAnalytics(store, usage)
//	report, err := analytics.FlagReport(ctx, "new-dashboard", nil)
//
// Production deployments back the ports with pkg/flagstore implementations
// (Postgres, Redis-cached, or YAML fixtures) instead of the in-memory ones.
package feature
