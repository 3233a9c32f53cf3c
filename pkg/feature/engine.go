package feature

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/bucket"
	"github.com/dmitrymomot/flagkit/pkg/logger"
)

// Snapshot is a fully resolved, acyclic view of one flag and its targeting
// state, fetched from the store in a single shot. The engine never holds a
// back-reference into storage: a snapshot goes in, a decision comes out.
type Snapshot struct {
	Flag        Flag         `json:"flag" yaml:"flag"`
	Segments    []Segment    `json:"segments,omitempty" yaml:"segments,omitempty"`
	Experiments []Experiment `json:"experiments,omitempty" yaml:"experiments,omitempty"`
}

// Store is the read port the engine evaluates against. Implementations must
// return ErrFlagNotFound for unknown keys and experiments in creation order.
type Store interface {
	// Snapshot resolves a flag key into the flag, its segments, and its
	// experiments in a single caller-bounded call.
	Snapshot(ctx context.Context, key string) (*Snapshot, error)
}

// Evaluation reasons, in precedence order.
const (
	ReasonNotFound        = "not found or archived"
	ReasonDisabled        = "disabled"
	ReasonDirectTargeting = "direct targeting"
	ReasonRollout         = "rollout"
	ReasonDefault         = "default"

	reasonSegmentPrefix    = "segment:"
	reasonExperimentPrefix = "experiment:"
)

// ReasonSegment builds the reason string for a segment match.
func ReasonSegment(name string) string { return reasonSegmentPrefix + name }

// ReasonExperiment builds the reason string for an experiment assignment.
func ReasonExperiment(name string) string { return reasonExperimentPrefix + name }

// Decision is the outcome of evaluating one flag for one caller.
type Decision struct {
	Key               string `json:"key"`
	Enabled           bool   `json:"enabled"`
	Value             any    `json:"value,omitempty"`
	Reason            string `json:"reason"`
	MatchedSegment    string `json:"matched_segment,omitempty"`
	MatchedExperiment string `json:"matched_experiment,omitempty"`
	Variant           string `json:"variant,omitempty"`
}

// Engine evaluates flags against snapshots from a Store. It is stateless and
// safe for arbitrary concurrent use: bucketing is a pure function of
// identities, not of call order or shared counters.
type Engine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used to report fail-closed degradations.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source, used by tests to pin experiment
// date-bound behavior.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an evaluation engine backed by the given store.
func NewEngine(store Store, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, ErrStorageNotInitialized
	}
	e := &Engine{
		store: store,
		log:   slog.New(slog.DiscardHandler),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate decides whether the flag identified by key is enabled for the
// given user and context, and which value applies.
//
// The precedence chain, first match wins: archived/missing flag, inactive
// flag, direct user targeting, segments by priority, percentage rollout,
// running experiments, default. Missing flags, malformed segment conditions,
// and empty experiments are configuration mistakes, not errors: they degrade
// to "no match" so production traffic is never blocked. The returned error is
// non-nil only when the store itself fails; even then the decision is the
// fail-closed one and safe to use.
//
// For a fixed snapshot, Evaluate is deterministic: the same key and user
// always produce the same decision, which keeps rollout and variant
// assignment sticky without storing per-user state.
func (e *Engine) Evaluate(ctx context.Context, key, userID string, ec *EvalContext) (Decision, error) {
	snap, err := e.store.Snapshot(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrFlagNotFound) {
			e.log.ErrorContext(ctx, "flag snapshot fetch failed", logger.FlagKey(key), logger.Error(err))
			return Decision{Key: key, Reason: ReasonNotFound}, err
		}
		return Decision{Key: key, Reason: ReasonNotFound}, nil
	}
	return e.evaluateSnapshot(snap, key, userID, ec), nil
}

func (e *Engine) evaluateSnapshot(snap *Snapshot, key, userID string, ec *EvalContext) Decision {
	flag := snap.Flag

	if flag.Archived {
		return Decision{Key: key, Reason: ReasonNotFound}
	}

	if !flag.Active {
		return Decision{Key: key, Value: flag.DefaultValue, Reason: ReasonDisabled}
	}

	if flag.IsDirectlyTargeted(userID) {
		return Decision{Key: key, Enabled: true, Value: flag.Value, Reason: ReasonDirectTargeting}
	}

	for _, seg := range sortSegments(snap.Segments) {
		if !seg.Active {
			continue
		}
		if seg.Matches(userID, ec) {
			return Decision{
				Key:            key,
				Enabled:        true,
				Value:          flag.Value,
				Reason:         ReasonSegment(seg.Name),
				MatchedSegment: seg.Name,
			}
		}
	}

	if userID != "" && bucket.InRollout(userID, flag.ID, flag.RolloutPercentage) {
		return Decision{Key: key, Enabled: true, Value: flag.Value, Reason: ReasonRollout}
	}

	if userID != "" {
		now := e.now()
		for i := range snap.Experiments {
			exp := &snap.Experiments[i]
			if v := AssignVariant(exp, userID, now); v != nil {
				return Decision{
					Key:               key,
					Enabled:           true,
					Value:             v.Value,
					Reason:            ReasonExperiment(exp.Name),
					MatchedExperiment: exp.Name,
					Variant:           v.Name,
				}
			}
		}
	}

	return Decision{Key: key, Value: flag.DefaultValue, Reason: ReasonDefault}
}
