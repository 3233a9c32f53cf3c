package flagstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/flagkit/pkg/feature"
)

// PostgresUsageStorage implements feature.UsageStorage with plain inserts and
// bounded scans. Append relies on PostgreSQL's native insert atomicity; no
// transaction or retry wraps it.
type PostgresUsageStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresUsageStorage creates a usage storage backed by the given pool.
func NewPostgresUsageStorage(pool *pgxpool.Pool) *PostgresUsageStorage {
	if pool == nil {
		panic("flagstore: pool cannot be nil")
	}
	return &PostgresUsageStorage{pool: pool}
}

// Append inserts one immutable usage record. Nothing in this package updates
// or deletes rows in usage_records.
func (s *PostgresUsageStorage) Append(ctx context.Context, rec feature.UsageRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return errors.Join(ErrMarshalSnapshot, err)
	}

	var experimentID *string
	if rec.ExperimentID != "" {
		experimentID = &rec.ExperimentID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO usage_records
			(id, flag_id, user_id, experiment_id, variant, action,
			 metadata, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.FlagID, rec.UserID, experimentID, rec.Variant, rec.Action,
		metadata, rec.UserAgent, rec.IPAddress, rec.CreatedAt)
	return err
}

// Query returns records matching the criteria in insertion order. Zero
// criteria fields are unconstrained; time bounds are inclusive.
func (s *PostgresUsageStorage) Query(ctx context.Context, criteria feature.UsageCriteria) ([]feature.UsageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, flag_id, user_id, experiment_id, variant, action,
		       metadata, user_agent, ip_address, created_at
		FROM usage_records
		WHERE ($1 = '' OR flag_id = $1)
		  AND ($2 = '' OR experiment_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at <= $4)
		ORDER BY created_at, id`,
		criteria.FlagID, criteria.ExperimentID,
		nullableTime(criteria.From), nullableTime(criteria.To))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanUsageRecord)
}

func scanUsageRecord(row pgx.CollectableRow) (feature.UsageRecord, error) {
	var (
		rec          feature.UsageRecord
		experimentID *string
		metadata     []byte
	)
	err := row.Scan(&rec.ID, &rec.FlagID, &rec.UserID, &experimentID, &rec.Variant,
		&rec.Action, &metadata, &rec.UserAgent, &rec.IPAddress, &rec.CreatedAt)
	if err != nil {
		return feature.UsageRecord{}, err
	}
	if experimentID != nil {
		rec.ExperimentID = *experimentID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return feature.UsageRecord{}, errors.Join(ErrMarshalSnapshot, err)
		}
	}
	return rec, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
