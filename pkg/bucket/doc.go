// Package bucket implements deterministic weighted bucketing for staged
// rollouts and experiment variant assignment.
//
// A bucket is a stable pseudo-random position in [0,1) derived from a user
// identity and a scope identity (a flag or experiment ID). The hash algorithm
// is pinned to FNV-1a 32-bit so that any implementation of the same algorithm,
// in any language or process, assigns identical buckets for identical inputs.
//
// Because a bucket is a pure function of its inputs, rollout decisions are
// monotonic: raising a rollout percentage only ever adds users to the enabled
// population, it never removes one.
//
// # Usage
//
//	if bucket.InRollout(userID, flag.ID, flag.RolloutPercentage) {
//		// user is inside the staged rollout
//	}
//
//	idx := bucket.PickWeighted(userID, experiment.ID, []float64{50, 50})
//	if idx >= 0 {
//		variant := experiment.Variants[idx]
//	}
package bucket
