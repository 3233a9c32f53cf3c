package feature

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UsageRecord is an immutable event capturing that a user observed a flag or
// variant decision. Records are append-only: nothing in this package mutates
// or deletes one after it is written.
type UsageRecord struct {
	ID           string         `json:"id"`
	FlagID       string         `json:"flag_id"`
	UserID       string         `json:"user_id"`
	ExperimentID string         `json:"experiment_id,omitempty"`
	Variant      string         `json:"variant,omitempty"`
	Action       string         `json:"action"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// UsageCriteria bounds a usage query. Zero fields are unconstrained.
type UsageCriteria struct {
	FlagID       string
	ExperimentID string
	From         time.Time
	To           time.Time
}

// UsageStorage is the write/read port for usage events. Append is a pure
// insert with no read-modify-write step, so concurrent calls need no
// coordination beyond the backend's native insert atomicity. Query results
// are an eventually consistent snapshot relative to in-flight appends.
type UsageStorage interface {
	Append(ctx context.Context, rec UsageRecord) error
	Query(ctx context.Context, criteria UsageCriteria) ([]UsageRecord, error)
}

// Recorder validates and appends usage events for evaluated flags.
type Recorder struct {
	store   Store
	usage   UsageStorage
	now     func() time.Time
	eventID func() string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the timestamp source.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a usage recorder writing through the given storage.
func NewRecorder(store Store, usage UsageStorage, opts ...RecorderOption) (*Recorder, error) {
	if store == nil || usage == nil {
		return nil, ErrStorageNotInitialized
	}
	r := &Recorder{
		store:   store,
		usage:   usage,
		now:     time.Now,
		eventID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends one immutable usage event for the flag identified by key.
//
// Key, userID, and a metadata "action" are required; missing any of them is a
// validation error raised synchronously with no retry. When variant names a
// variant defined by one of the flag's running experiments, the event is
// tagged with that experiment's ID so analytics can attribute it.
func (r *Recorder) Record(ctx context.Context, key, userID, variant string, metadata map[string]any, ec *EvalContext) (*UsageRecord, error) {
	action, _ := metadata["action"].(string)
	if key == "" || userID == "" || action == "" {
		return nil, errors.Join(ErrValidation,
			errors.New("Key, userId, and metadata with action are required"))
	}

	snap, err := r.store.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	rec := UsageRecord{
		ID:        r.eventID(),
		FlagID:    snap.Flag.ID,
		UserID:    userID,
		Variant:   variant,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: r.now(),
	}
	if ec != nil {
		rec.UserAgent = ec.UserAgent
		rec.IPAddress = ec.IPAddress
	}

	if variant != "" {
		now := rec.CreatedAt
		for i := range snap.Experiments {
			exp := &snap.Experiments[i]
			if exp.IsRunningAt(now) && exp.Variant(variant) != nil {
				rec.ExperimentID = exp.ID
				break
			}
		}
	}

	if err := r.usage.Append(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
