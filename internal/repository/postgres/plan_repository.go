package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
)

// PlanRepository stores plan records in the reconfiguration_plans table.
type PlanRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPlanRepository creates a new PostgreSQL plan repository.
func NewPlanRepository(db *DB, logger *zap.Logger) *PlanRepository {
	return &PlanRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "plan")),
	}
}

const planColumns = `id, status, duration, actions, partitions, reason, created_at`

// Create stores a new plan record. Actions are kept as a JSONB array.
func (r *PlanRepository) Create(ctx context.Context, rec *plan.Record) (*plan.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO reconfiguration_plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.pool.Exec(ctx, query,
		rec.ID,
		string(rec.Status),
		rec.Duration,
		actions,
		rec.Partitions,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create plan record", zap.Error(err), zap.String("id", rec.ID))
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert plan record: %w", err)
	}

	r.logger.Debug("Created plan record",
		zap.String("id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int("actions", len(rec.Actions)),
	)
	return rec.Clone(), nil
}

// Get retrieves a plan record by ID.
func (r *PlanRepository) Get(ctx context.Context, id string) (*plan.Record, error) {
	query := `SELECT ` + planColumns + ` FROM reconfiguration_plans WHERE id = $1`

	rec, err := scanRecord(r.db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan record: %w", err)
	}
	return rec, nil
}

// List returns the most recent records first. An empty status matches every
// record and a non-positive limit returns them all.
func (r *PlanRepository) List(ctx context.Context, status plan.RecordStatus, limit int) ([]*plan.Record, error) {
	query := `
		SELECT ` + planColumns + `
		FROM reconfiguration_plans
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id
	`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan records: %w", err)
	}
	defer rows.Close()

	var result []*plan.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan record: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// DeleteOld removes records created before olderThan.
func (r *PlanRepository) DeleteOld(ctx context.Context, olderThan time.Time) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM reconfiguration_plans WHERE created_at < $1`, olderThan)
	if err != nil {
		return fmt.Errorf("failed to delete old plan records: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.Info("Deleted old plan records", zap.Int64("count", n))
	}
	return nil
}

func scanRecord(row pgx.Row) (*plan.Record, error) {
	var (
		rec     plan.Record
		status  string
		actions []byte
	)
	if err := row.Scan(
		&rec.ID,
		&status,
		&rec.Duration,
		&actions,
		&rec.Partitions,
		&rec.Reason,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = plan.RecordStatus(status)
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &rec.Actions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
		}
	}
	return &rec, nil
}
