package feature_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/feature"
)

func TestMemoryStoreFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("CreateAssignsIDAndTimestamps", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		flag := &feature.Flag{Key: "new-ui", Name: "New UI", Active: true}
		require.NoError(t, store.CreateFlag(ctx, flag))
		assert.NotEmpty(t, flag.ID)
		assert.False(t, flag.CreatedAt.IsZero())
	})

	t.Run("DuplicateKeyConflict", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, &feature.Flag{Key: "new-ui", Name: "New UI"})
		err := store.CreateFlag(ctx, &feature.Flag{Key: "new-ui", Name: "Other"})
		require.ErrorIs(t, err, feature.ErrDuplicateKey)
	})

	t.Run("InvalidKeyRejected", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		for _, key := range []string{"", "New-UI", "has space", "-leading"} {
			err := store.CreateFlag(ctx, &feature.Flag{Key: key, Name: "x"})
			require.ErrorIs(t, err, feature.ErrValidation, "key %q", key)
		}
	})

	t.Run("RolloutBoundsRejected", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		err := store.CreateFlag(ctx, &feature.Flag{Key: "f1", Name: "x", RolloutPercentage: 120})
		require.ErrorIs(t, err, feature.ErrValidation)
		err = store.CreateFlag(ctx, &feature.Flag{Key: "f1", Name: "x", RolloutPercentage: -1})
		require.ErrorIs(t, err, feature.ErrValidation)
	})

	t.Run("SnapshotIsACopy", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, &feature.Flag{
			Key: "copy-me", Name: "Copy", Active: true, DirectUserIDs: []string{"u1"},
		})

		snap, err := store.Snapshot(ctx, "copy-me")
		require.NoError(t, err)
		snap.Flag.DirectUserIDs[0] = "tampered"
		snap.Flag.Active = false

		fresh, err := store.Snapshot(ctx, "copy-me")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, fresh.Flag.DirectUserIDs)
		assert.True(t, fresh.Flag.Active)
	})

	t.Run("UpdatePreservesIDAndCreation", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "mutable", Name: "Before", Active: false}
		store := newTestStore(t, flag)

		updated := &feature.Flag{Key: "mutable", Name: "After", Active: true, ID: "spoofed"}
		require.NoError(t, store.UpdateFlag(ctx, updated))

		got, err := store.GetFlag(ctx, "mutable")
		require.NoError(t, err)
		assert.Equal(t, flag.ID, got.ID)
		assert.Equal(t, "After", got.Name)
		assert.True(t, got.Active)
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "doomed", Name: "Doomed", Active: true}
		store := newTestStore(t, flag)
		seg := &feature.Segment{FlagID: flag.ID, Name: "seg",
			Conditions: []feature.Condition{{Kind: feature.ConditionUserIn, Values: []string{"u1"}}}}
		require.NoError(t, store.CreateSegment(ctx, seg))

		require.NoError(t, store.DeleteFlag(ctx, "doomed"))
		_, err := store.Snapshot(ctx, "doomed")
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
		require.ErrorIs(t, store.DeleteFlag(ctx, "doomed"), feature.ErrFlagNotFound)
	})
}

func TestMemoryStoreSegmentsAndExperiments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("SegmentRequiresExistingFlag", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		err := store.CreateSegment(ctx, &feature.Segment{FlagID: "ghost", Name: "s"})
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
	})

	t.Run("DeleteSegmentLeavesFlag", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "stays", Name: "Stays", Active: true}
		store := newTestStore(t, flag)
		seg := &feature.Segment{FlagID: flag.ID, Name: "goes",
			Conditions: []feature.Condition{{Kind: feature.ConditionUserIn, Values: []string{"u1"}}}}
		require.NoError(t, store.CreateSegment(ctx, seg))

		require.NoError(t, store.DeleteSegment(ctx, seg.ID))
		snap, err := store.Snapshot(ctx, "stays")
		require.NoError(t, err)
		assert.Empty(t, snap.Segments)
		require.ErrorIs(t, store.DeleteSegment(ctx, seg.ID), feature.ErrSegmentNotFound)
	})

	t.Run("ExperimentsKeepCreationOrder", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "ordered", Name: "Ordered", Active: true}
		store := newTestStore(t, flag)
		for _, name := range []string{"first", "second", "third"} {
			require.NoError(t, store.CreateExperiment(ctx, &feature.Experiment{
				FlagID: flag.ID, Name: name,
				Variants: []feature.Variant{{Name: "control", Percentage: 100}},
			}))
		}

		snap, err := store.Snapshot(ctx, "ordered")
		require.NoError(t, err)
		require.Len(t, snap.Experiments, 3)
		assert.Equal(t, "first", snap.Experiments[0].Name)
		assert.Equal(t, "second", snap.Experiments[1].Name)
		assert.Equal(t, "third", snap.Experiments[2].Name)
	})

	t.Run("CreateExperimentDefaultsToDraft", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "drafty", Name: "Drafty", Active: true}
		store := newTestStore(t, flag)
		exp := &feature.Experiment{FlagID: flag.ID, Name: "e",
			Variants: []feature.Variant{{Name: "control", Percentage: 100}}}
		require.NoError(t, store.CreateExperiment(ctx, exp))

		got, err := store.GetExperiment(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, feature.ExperimentDraft, got.Status)
	})

	t.Run("CreateExperimentValidatesVariants", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "strict", Name: "Strict", Active: true}
		store := newTestStore(t, flag)
		err := store.CreateExperiment(ctx, &feature.Experiment{
			FlagID: flag.ID, Name: "bad",
			Variants: []feature.Variant{{Name: "A", Percentage: 30}, {Name: "B", Percentage: 30}},
		})
		require.ErrorIs(t, err, feature.ErrValidation)
	})

	t.Run("UpdateExperimentLifecycleRoundTrip", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "lifecycle", Name: "Lifecycle", Active: true}
		store := newTestStore(t, flag)
		exp := &feature.Experiment{FlagID: flag.ID, Name: "e",
			Variants: []feature.Variant{{Name: "control", Percentage: 100}}}
		require.NoError(t, store.CreateExperiment(ctx, exp))

		got, err := store.GetExperiment(ctx, exp.ID)
		require.NoError(t, err)
		require.NoError(t, got.Start(got.CreatedAt))
		require.NoError(t, store.UpdateExperiment(ctx, got))

		snap, err := store.Snapshot(ctx, "lifecycle")
		require.NoError(t, err)
		require.Len(t, snap.Experiments, 1)
		assert.Equal(t, feature.ExperimentRunning, snap.Experiments[0].Status)
		require.NotNil(t, snap.Experiments[0].StartDate)
	})
}

func TestMemoryStoreConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, &feature.Flag{Key: "hot", Name: "Hot", Active: true, RolloutPercentage: 50})
	engine := newTestEngine(t, store)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				_, err := engine.Evaluate(ctx, "hot", "user-1", nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
