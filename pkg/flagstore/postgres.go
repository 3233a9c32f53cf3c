package flagstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/flagkit/pkg/feature"
	"github.com/dmitrymomot/flagkit/pkg/pg"
)

// PostgresStore implements feature.Store and the administrative mutations on
// top of a pgx connection pool. Snapshot issues three single-shot reads; no
// transaction is held across them because evaluation tolerates an eventually
// consistent view.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool. The schema is
// managed by the migrations under migrations/.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("flagstore: pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

// Snapshot resolves a flag key into the flag, its active segments, and its
// experiments in creation order.
func (s *PostgresStore) Snapshot(ctx context.Context, key string) (*feature.Snapshot, error) {
	flag, err := s.getFlag(ctx, key)
	if err != nil {
		return nil, err
	}
	snap := &feature.Snapshot{Flag: *flag}

	rows, err := s.pool.Query(ctx, `
		SELECT id, flag_id, name, type, conditions, priority, active, created_at
		FROM flag_segments
		WHERE flag_id = $1
		ORDER BY created_at, id`, flag.ID)
	if err != nil {
		return nil, err
	}
	snap.Segments, err = pgx.CollectRows(rows, scanSegment)
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, flag_id, name, status, variants, start_date, end_date, created_at
		FROM flag_experiments
		WHERE flag_id = $1
		ORDER BY created_at, id`, flag.ID)
	if err != nil {
		return nil, err
	}
	snap.Experiments, err = pgx.CollectRows(rows, scanExperiment)
	if err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *PostgresStore) getFlag(ctx context.Context, key string) (*feature.Flag, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, key, name, description, value, default_value,
		       active, archived, rollout_percentage, direct_user_ids,
		       created_at, updated_at
		FROM feature_flags
		WHERE key = $1`, key)

	var (
		flag          feature.Flag
		value, defVal []byte
	)
	err := row.Scan(&flag.ID, &flag.Key, &flag.Name, &flag.Description, &value, &defVal,
		&flag.Active, &flag.Archived, &flag.RolloutPercentage, &flag.DirectUserIDs,
		&flag.CreatedAt, &flag.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, feature.ErrFlagNotFound
		}
		return nil, err
	}
	if err := unmarshalPayload(value, &flag.Value); err != nil {
		return nil, err
	}
	if err := unmarshalPayload(defVal, &flag.DefaultValue); err != nil {
		return nil, err
	}
	return &flag, nil
}

// GetFlag returns the flag with the given key.
func (s *PostgresStore) GetFlag(ctx context.Context, key string) (*feature.Flag, error) {
	return s.getFlag(ctx, key)
}

// CreateFlag validates and inserts a new flag. A key collision surfaces as
// feature.ErrDuplicateKey.
func (s *PostgresStore) CreateFlag(ctx context.Context, flag *feature.Flag) error {
	if flag == nil {
		return errors.Join(feature.ErrValidation, errors.New("flag is required"))
	}
	if err := flag.Validate(); err != nil {
		return err
	}
	if flag.ID == "" {
		flag.ID = uuid.New().String()
	}
	value, defVal, err := marshalPayloads(flag.Value, flag.DefaultValue)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO feature_flags
			(id, key, name, description, value, default_value,
			 active, archived, rollout_percentage, direct_user_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		flag.ID, flag.Key, flag.Name, flag.Description, value, defVal,
		flag.Active, flag.Archived, flag.RolloutPercentage, flag.DirectUserIDs, now)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return errors.Join(feature.ErrDuplicateKey, err)
		}
		return err
	}
	flag.CreatedAt = now
	flag.UpdatedAt = now
	return nil
}

// UpdateFlag replaces the mutable fields of an existing flag, addressed by
// its immutable key.
func (s *PostgresStore) UpdateFlag(ctx context.Context, flag *feature.Flag) error {
	if flag == nil {
		return errors.Join(feature.ErrValidation, errors.New("flag is required"))
	}
	if err := flag.Validate(); err != nil {
		return err
	}
	value, defVal, err := marshalPayloads(flag.Value, flag.DefaultValue)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE feature_flags
		SET name = $2, description = $3, value = $4, default_value = $5,
		    active = $6, archived = $7, rollout_percentage = $8,
		    direct_user_ids = $9, updated_at = now()
		WHERE key = $1`,
		flag.Key, flag.Name, flag.Description, value, defVal,
		flag.Active, flag.Archived, flag.RolloutPercentage, flag.DirectUserIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return feature.ErrFlagNotFound
	}
	return nil
}

// DeleteFlag removes a flag; segments and experiments cascade at the schema
// level. Usage records are append-only and intentionally survive.
func (s *PostgresStore) DeleteFlag(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return feature.ErrFlagNotFound
	}
	return nil
}

// CreateSegment validates and inserts a segment for an existing flag.
func (s *PostgresStore) CreateSegment(ctx context.Context, seg *feature.Segment) error {
	if seg == nil {
		return errors.Join(feature.ErrValidation, errors.New("segment is required"))
	}
	if err := seg.Validate(); err != nil {
		return err
	}
	if seg.ID == "" {
		seg.ID = uuid.New().String()
	}
	conditions, err := json.Marshal(seg.Conditions)
	if err != nil {
		return errors.Join(ErrMarshalSnapshot, err)
	}

	now := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO flag_segments (id, flag_id, name, type, conditions, priority, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		seg.ID, seg.FlagID, seg.Name, seg.Type, conditions, seg.Priority, seg.Active, now)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return feature.ErrFlagNotFound
		}
		return err
	}
	seg.CreatedAt = now
	return nil
}

// DeleteSegment removes one segment independently of its flag.
func (s *PostgresStore) DeleteSegment(ctx context.Context, segmentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flag_segments WHERE id = $1`, segmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return feature.ErrSegmentNotFound
	}
	return nil
}

// CreateExperiment validates and inserts an experiment in draft status unless
// one is set explicitly.
func (s *PostgresStore) CreateExperiment(ctx context.Context, exp *feature.Experiment) error {
	if exp == nil {
		return errors.Join(feature.ErrValidation, errors.New("experiment is required"))
	}
	if exp.Status == "" {
		exp.Status = feature.ExperimentDraft
	}
	if err := exp.Validate(); err != nil {
		return err
	}
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	variants, err := json.Marshal(exp.Variants)
	if err != nil {
		return errors.Join(ErrMarshalSnapshot, err)
	}

	now := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO flag_experiments (id, flag_id, name, status, variants, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exp.ID, exp.FlagID, exp.Name, exp.Status, variants, exp.StartDate, exp.EndDate, now)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return feature.ErrFlagNotFound
		}
		return err
	}
	exp.CreatedAt = now
	return nil
}

// GetExperiment returns the experiment with the given ID.
func (s *PostgresStore) GetExperiment(ctx context.Context, experimentID string) (*feature.Experiment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, flag_id, name, status, variants, start_date, end_date, created_at
		FROM flag_experiments
		WHERE id = $1`, experimentID)
	if err != nil {
		return nil, err
	}
	exp, err := pgx.CollectOneRow(rows, scanExperiment)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, feature.ErrExperimentNotFound
		}
		return nil, err
	}
	return &exp, nil
}

// UpdateExperiment replaces an existing experiment's status, variants, and
// date bounds after re-validating the variant set.
func (s *PostgresStore) UpdateExperiment(ctx context.Context, exp *feature.Experiment) error {
	if exp == nil {
		return errors.Join(feature.ErrValidation, errors.New("experiment is required"))
	}
	if err := exp.Validate(); err != nil {
		return err
	}
	variants, err := json.Marshal(exp.Variants)
	if err != nil {
		return errors.Join(ErrMarshalSnapshot, err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE flag_experiments
		SET name = $2, status = $3, variants = $4, start_date = $5, end_date = $6
		WHERE id = $1`,
		exp.ID, exp.Name, exp.Status, variants, exp.StartDate, exp.EndDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return feature.ErrExperimentNotFound
	}
	return nil
}

func scanSegment(row pgx.CollectableRow) (feature.Segment, error) {
	var (
		seg        feature.Segment
		conditions []byte
	)
	err := row.Scan(&seg.ID, &seg.FlagID, &seg.Name, &seg.Type, &conditions,
		&seg.Priority, &seg.Active, &seg.CreatedAt)
	if err != nil {
		return feature.Segment{}, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &seg.Conditions); err != nil {
			return feature.Segment{}, errors.Join(ErrMarshalSnapshot, err)
		}
	}
	return seg, nil
}

func scanExperiment(row pgx.CollectableRow) (feature.Experiment, error) {
	var (
		exp      feature.Experiment
		variants []byte
	)
	err := row.Scan(&exp.ID, &exp.FlagID, &exp.Name, &exp.Status, &variants,
		&exp.StartDate, &exp.EndDate, &exp.CreatedAt)
	if err != nil {
		return feature.Experiment{}, err
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &exp.Variants); err != nil {
			return feature.Experiment{}, errors.Join(ErrMarshalSnapshot, err)
		}
	}
	return exp, nil
}

func marshalPayloads(value, defaultValue any) ([]byte, []byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, nil, errors.Join(ErrMarshalSnapshot, err)
	}
	d, err := json.Marshal(defaultValue)
	if err != nil {
		return nil, nil, errors.Join(ErrMarshalSnapshot, err)
	}
	return v, d, nil
}

func unmarshalPayload(raw []byte, dst *any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(ErrMarshalSnapshot, err)
	}
	return nil
}
