package flagstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/flagkit/pkg/feature"
)

// FileStore is a read-only feature.Store loaded from a YAML fixture file.
// It suits development environments and static deployments where flags ship
// with the binary instead of living in a database.
//
// File format:
//
//	flags:
//	  - flag:
//	      key: new-dashboard
//	      name: New dashboard
//	      value: true
//	      default_value: false
//	      active: true
//	      rollout_percentage: 50
//	    segments:
//	      - name: internal
//	        active: true
//	        priority: 10
//	        conditions:
//	          - kind: attr_equals
//	            attribute: team
//	            values: [core]
//	    experiments: []
type FileStore struct {
	snapshots map[string]*feature.Snapshot
}

type fixtureFile struct {
	Flags []feature.Snapshot `yaml:"flags"`
}

// NewFileStore parses and validates the fixture file at path. Flags without
// IDs get their key as ID so bucketing stays stable across restarts.
func NewFileStore(path string) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidFixture, err)
	}
	return newFileStore(raw)
}

func newFileStore(raw []byte) (*FileStore, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Join(ErrInvalidFixture, err)
	}

	store := &FileStore{snapshots: make(map[string]*feature.Snapshot, len(file.Flags))}
	for i := range file.Flags {
		snap := file.Flags[i]
		if err := snap.Flag.Validate(); err != nil {
			return nil, errors.Join(ErrInvalidFixture, err)
		}
		if _, dup := store.snapshots[snap.Flag.Key]; dup {
			return nil, errors.Join(ErrInvalidFixture,
				fmt.Errorf("duplicate flag key %q", snap.Flag.Key))
		}
		if snap.Flag.ID == "" {
			snap.Flag.ID = snap.Flag.Key
		}
		for j := range snap.Segments {
			seg := &snap.Segments[j]
			if seg.FlagID == "" {
				seg.FlagID = snap.Flag.ID
			}
			if seg.ID == "" {
				seg.ID = fmt.Sprintf("%s/segment/%d", snap.Flag.Key, j)
			}
			if err := seg.Validate(); err != nil {
				return nil, errors.Join(ErrInvalidFixture, err)
			}
		}
		for j := range snap.Experiments {
			exp := &snap.Experiments[j]
			if exp.FlagID == "" {
				exp.FlagID = snap.Flag.ID
			}
			if exp.ID == "" {
				exp.ID = fmt.Sprintf("%s/experiment/%d", snap.Flag.Key, j)
			}
			if exp.Status == "" {
				exp.Status = feature.ExperimentDraft
			}
			if err := exp.Validate(); err != nil {
				return nil, errors.Join(ErrInvalidFixture, err)
			}
		}
		store.snapshots[snap.Flag.Key] = &snap
	}
	return store, nil
}

// Snapshot returns a deep copy of the fixture snapshot for key.
func (s *FileStore) Snapshot(ctx context.Context, key string) (*feature.Snapshot, error) {
	snap, ok := s.snapshots[key]
	if !ok {
		return nil, feature.ErrFlagNotFound
	}
	return snap.Clone(), nil
}

// Keys returns all flag keys defined in the fixture, for diagnostics.
func (s *FileStore) Keys() []string {
	keys := make([]string, 0, len(s.snapshots))
	for k := range s.snapshots {
		keys = append(keys, k)
	}
	return keys
}
