package repository

import (
	"context"
	"fmt"

	"github.com/hjemla/easeewatch/internal/models"
)

// SampleRepository stores and reads exported telemetry samples.
type SampleRepository struct {
	db *DB
}

// NewSampleRepository creates a sample repository.
func NewSampleRepository(db *DB) *SampleRepository {
	return &SampleRepository{db: db}
}

// Insert stores one sample.
func (r *SampleRepository) Insert(ctx context.Context, sample *models.Sample) error {
	query := `
		INSERT INTO telemetry_samples (charger_id, field, value, recorded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		sample.ChargerID,
		sample.Field,
		sample.Value,
		sample.RecordedAt,
	).Scan(&sample.ID)

	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// InsertBatch stores all samples of one poll tick in a single transaction, so
// a tick is either fully exported or not at all.
func (r *SampleRepository) InsertBatch(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO telemetry_samples (charger_id, field, value, recorded_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, s := range samples {
		if _, err := tx.Exec(ctx, query, s.ChargerID, s.Field, s.Value, s.RecordedAt); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListByCharger returns the most recent samples for a charger, newest first.
// field may be empty to return all fields.
func (r *SampleRepository) ListByCharger(ctx context.Context, chargerID, field string, limit int) ([]*models.Sample, error) {
	query := `
		SELECT id, charger_id, field, value, recorded_at
		FROM telemetry_samples
		WHERE charger_id = $1 AND ($2 = '' OR field = $2)
		ORDER BY recorded_at DESC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, query, chargerID, field, limit)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.Sample
	for rows.Next() {
		s := &models.Sample{}
		if err := rows.Scan(&s.ID, &s.ChargerID, &s.Field, &s.Value, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}

	return samples, nil
}
