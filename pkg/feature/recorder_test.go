package feature_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/feature"
)

func TestRecorderRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*feature.MemoryStore, *feature.MemoryUsageStorage, *feature.Recorder, *feature.Flag) {
		t.Helper()
		flag := &feature.Flag{Key: "checkout", Name: "Checkout", Value: true, DefaultValue: false, Active: true}
		store := newTestStore(t, flag)
		usage := feature.NewMemoryUsageStorage()
		recorder, err := feature.NewRecorder(store, usage)
		require.NoError(t, err)
		return store, usage, recorder, flag
	}

	t.Run("MissingRequiredFields", func(t *testing.T) {
		t.Parallel()
		_, _, recorder, _ := setup(t)

		cases := []struct {
			name     string
			key      string
			userID   string
			metadata map[string]any
		}{
			{"NoAction", "f", "u1", map[string]any{}},
			{"NilMetadata", "f", "u1", nil},
			{"NoKey", "", "u1", map[string]any{"action": "viewed"}},
			{"NoUser", "f", "", map[string]any{"action": "viewed"}},
			{"ActionNotString", "f", "u1", map[string]any{"action": 42}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()
				rec, err := recorder.Record(ctx, tc.key, tc.userID, "", tc.metadata, nil)
				require.ErrorIs(t, err, feature.ErrValidation)
				assert.ErrorContains(t, err, "Key, userId, and metadata with action are required")
				assert.Nil(t, rec)
			})
		}
	})

	t.Run("UnknownFlag", func(t *testing.T) {
		t.Parallel()
		_, _, recorder, _ := setup(t)
		_, err := recorder.Record(ctx, "missing", "u1", "", map[string]any{"action": "viewed"}, nil)
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
	})

	t.Run("AppendsImmutableRecord", func(t *testing.T) {
		t.Parallel()
		_, usage, recorder, flag := setup(t)

		rec, err := recorder.Record(ctx, "checkout", "u1", "", map[string]any{"action": "viewed", "page": "cart"},
			&feature.EvalContext{UserAgent: "curl/8.0", IPAddress: "10.0.0.1"})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, flag.ID, rec.FlagID)
		assert.Equal(t, "u1", rec.UserID)
		assert.Equal(t, "viewed", rec.Action)
		assert.Equal(t, "curl/8.0", rec.UserAgent)
		assert.Equal(t, "10.0.0.1", rec.IPAddress)
		assert.False(t, rec.CreatedAt.IsZero())

		// Mutating the caller's metadata after recording must not leak into
		// the stored record.
		stored, err := usage.Query(ctx, feature.UsageCriteria{FlagID: flag.ID})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		rec.Metadata["page"] = "tampered"
		fresh, err := usage.Query(ctx, feature.UsageCriteria{FlagID: flag.ID})
		require.NoError(t, err)
		assert.Equal(t, "cart", fresh[0].Metadata["page"])
	})

	t.Run("TagsRunningExperimentByVariantName", func(t *testing.T) {
		t.Parallel()
		store, usage, recorder, flag := setup(t)
		exp := &feature.Experiment{
			FlagID: flag.ID, Name: "checkout-test", Status: feature.ExperimentRunning,
			Variants: []feature.Variant{
				{Name: "control", Percentage: 50},
				{Name: "one-page", Percentage: 50},
			},
		}
		require.NoError(t, store.CreateExperiment(ctx, exp))

		rec, err := recorder.Record(ctx, "checkout", "u1", "one-page", map[string]any{"action": "converted"}, nil)
		require.NoError(t, err)
		assert.Equal(t, exp.ID, rec.ExperimentID)
		assert.Equal(t, "one-page", rec.Variant)

		stored, err := usage.Query(ctx, feature.UsageCriteria{ExperimentID: exp.ID})
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("UnknownVariantStaysUntagged", func(t *testing.T) {
		t.Parallel()
		store, _, recorder, flag := setup(t)
		require.NoError(t, store.CreateExperiment(ctx, &feature.Experiment{
			FlagID: flag.ID, Name: "checkout-test", Status: feature.ExperimentRunning,
			Variants: []feature.Variant{{Name: "control", Percentage: 100}},
		}))

		rec, err := recorder.Record(ctx, "checkout", "u1", "nonexistent", map[string]any{"action": "viewed"}, nil)
		require.NoError(t, err)
		assert.Empty(t, rec.ExperimentID)
		assert.Equal(t, "nonexistent", rec.Variant)
	})

	t.Run("NonRunningExperimentNotTagged", func(t *testing.T) {
		t.Parallel()
		store, _, recorder, flag := setup(t)
		require.NoError(t, store.CreateExperiment(ctx, &feature.Experiment{
			FlagID: flag.ID, Name: "paused-test", Status: feature.ExperimentPaused,
			Variants: []feature.Variant{{Name: "control", Percentage: 100}},
		}))

		rec, err := recorder.Record(ctx, "checkout", "u1", "control", map[string]any{"action": "viewed"}, nil)
		require.NoError(t, err)
		assert.Empty(t, rec.ExperimentID)
	})

	t.Run("ClockOverride", func(t *testing.T) {
		t.Parallel()
		flag := &feature.Flag{Key: "clocked", Name: "Clocked", Active: true}
		store := newTestStore(t, flag)
		fixed := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
		recorder, err := feature.NewRecorder(store, feature.NewMemoryUsageStorage(),
			feature.WithRecorderClock(func() time.Time { return fixed }))
		require.NoError(t, err)

		rec, err := recorder.Record(ctx, "clocked", "u1", "", map[string]any{"action": "viewed"}, nil)
		require.NoError(t, err)
		assert.Equal(t, fixed, rec.CreatedAt)
	})
}

func TestNewRecorder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := feature.NewRecorder(nil, feature.NewMemoryUsageStorage())
	require.ErrorIs(t, err, feature.ErrStorageNotInitialized)
	_, err = feature.NewRecorder(store, nil)
	require.ErrorIs(t, err, feature.ErrStorageNotInitialized)
}
