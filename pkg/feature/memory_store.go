package feature

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the Store port with
// administrative mutations. It's useful for testing and single-process
// deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	flags       map[string]*Flag // by key
	segments    map[string][]Segment
	experiments map[string][]Experiment // creation order
	now         func() time.Time
}

// NewMemoryStore creates an in-memory store, optionally seeded with flags.
func NewMemoryStore(initialFlags ...*Flag) (*MemoryStore, error) {
	s := &MemoryStore{
		flags:       make(map[string]*Flag),
		segments:    make(map[string][]Segment),
		experiments: make(map[string][]Experiment),
		now:         time.Now,
	}
	for _, flag := range initialFlags {
		if flag == nil {
			continue
		}
		if err := s.CreateFlag(context.Background(), flag); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Snapshot resolves a flag key into a fully copied snapshot, so callers can
// never mutate store state through the result.
func (s *MemoryStore) Snapshot(ctx context.Context, key string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flag, ok := s.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}

	snap := &Snapshot{Flag: copyFlag(flag)}
	for _, seg := range s.segments[flag.ID] {
		snap.Segments = append(snap.Segments, copySegment(seg))
	}
	for _, exp := range s.experiments[flag.ID] {
		snap.Experiments = append(snap.Experiments, copyExperiment(exp))
	}
	return snap, nil
}

// CreateFlag validates and stores a new flag. Empty IDs are assigned;
// duplicate keys are rejected.
func (s *MemoryStore) CreateFlag(ctx context.Context, flag *Flag) error {
	if flag == nil {
		return errors.Join(ErrValidation, errors.New("flag is required"))
	}
	if err := flag.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flags[flag.Key]; exists {
		return errors.Join(ErrDuplicateKey, fmt.Errorf("flag key %q already exists", flag.Key))
	}

	stored := copyFlag(flag)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.UpdatedAt = stored.CreatedAt

	s.flags[flag.Key] = &stored
	flag.ID = stored.ID
	flag.CreatedAt = stored.CreatedAt
	flag.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetFlag returns a copy of the flag with the given key.
func (s *MemoryStore) GetFlag(ctx context.Context, key string) (*Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flag, ok := s.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	c := copyFlag(flag)
	return &c, nil
}

// UpdateFlag replaces the mutable fields of an existing flag. The key is
// immutable and identifies the record; attempts to change IDs are ignored.
func (s *MemoryStore) UpdateFlag(ctx context.Context, flag *Flag) error {
	if flag == nil {
		return errors.Join(ErrValidation, errors.New("flag is required"))
	}
	if err := flag.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.flags[flag.Key]
	if !ok {
		return ErrFlagNotFound
	}

	updated := copyFlag(flag)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()
	s.flags[flag.Key] = &updated
	return nil
}

// DeleteFlag removes a flag along with its segments and experiments.
func (s *MemoryStore) DeleteFlag(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flag, ok := s.flags[key]
	if !ok {
		return ErrFlagNotFound
	}
	delete(s.flags, key)
	delete(s.segments, flag.ID)
	delete(s.experiments, flag.ID)
	return nil
}

// CreateSegment validates and attaches a segment to its owning flag.
func (s *MemoryStore) CreateSegment(ctx context.Context, seg *Segment) error {
	if seg == nil {
		return errors.Join(ErrValidation, errors.New("segment is required"))
	}
	if err := seg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.flagIDExists(seg.FlagID) {
		return ErrFlagNotFound
	}

	stored := copySegment(*seg)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.segments[seg.FlagID] = append(s.segments[seg.FlagID], stored)
	seg.ID = stored.ID
	seg.CreatedAt = stored.CreatedAt
	return nil
}

// DeleteSegment removes one segment; the owning flag is untouched.
func (s *MemoryStore) DeleteSegment(ctx context.Context, segmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for flagID, segs := range s.segments {
		for i, seg := range segs {
			if seg.ID == segmentID {
				s.segments[flagID] = slices.Delete(segs, i, i+1)
				return nil
			}
		}
	}
	return ErrSegmentNotFound
}

// CreateExperiment validates and attaches an experiment to its owning flag.
// New experiments start in draft unless a status is set explicitly.
func (s *MemoryStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	if exp == nil {
		return errors.Join(ErrValidation, errors.New("experiment is required"))
	}
	if exp.Status == "" {
		exp.Status = ExperimentDraft
	}
	if err := exp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.flagIDExists(exp.FlagID) {
		return ErrFlagNotFound
	}

	stored := copyExperiment(*exp)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.experiments[exp.FlagID] = append(s.experiments[exp.FlagID], stored)
	exp.ID = stored.ID
	exp.CreatedAt = stored.CreatedAt
	return nil
}

// GetExperiment returns a copy of the experiment with the given ID.
func (s *MemoryStore) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, exps := range s.experiments {
		for _, exp := range exps {
			if exp.ID == experimentID {
				c := copyExperiment(exp)
				return &c, nil
			}
		}
	}
	return nil, ErrExperimentNotFound
}

// UpdateExperiment replaces an existing experiment, re-validating its
// variants and keeping its creation order slot.
func (s *MemoryStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	if exp == nil {
		return errors.Join(ErrValidation, errors.New("experiment is required"))
	}
	if err := exp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for flagID, exps := range s.experiments {
		for i, existing := range exps {
			if existing.ID == exp.ID {
				stored := copyExperiment(*exp)
				stored.FlagID = flagID
				stored.CreatedAt = existing.CreatedAt
				s.experiments[flagID][i] = stored
				return nil
			}
		}
	}
	return ErrExperimentNotFound
}

func (s *MemoryStore) flagIDExists(flagID string) bool {
	for _, flag := range s.flags {
		if flag.ID == flagID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the snapshot, detached from any store that
// produced it.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{Flag: copyFlag(&s.Flag)}
	for _, seg := range s.Segments {
		c.Segments = append(c.Segments, copySegment(seg))
	}
	for _, exp := range s.Experiments {
		c.Experiments = append(c.Experiments, copyExperiment(exp))
	}
	return c
}

func copyFlag(f *Flag) Flag {
	c := *f
	if f.DirectUserIDs != nil {
		c.DirectUserIDs = slices.Clone(f.DirectUserIDs)
	}
	return c
}

func copySegment(s Segment) Segment {
	c := s
	if s.Conditions != nil {
		c.Conditions = make([]Condition, len(s.Conditions))
		for i, cond := range s.Conditions {
			c.Conditions[i] = cond
			if cond.Values != nil {
				c.Conditions[i].Values = slices.Clone(cond.Values)
			}
		}
	}
	return c
}

func copyExperiment(e Experiment) Experiment {
	c := e
	if e.Variants != nil {
		c.Variants = slices.Clone(e.Variants)
	}
	if e.StartDate != nil {
		start := *e.StartDate
		c.StartDate = &start
	}
	if e.EndDate != nil {
		end := *e.EndDate
		c.EndDate = &end
	}
	return c
}
