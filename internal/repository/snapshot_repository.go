package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pulseworks/pulse-api/internal/models"
)

// SnapshotRepository persists report snapshots. Snapshots are append-only:
// a new computation inserts a new row and prior rows are never touched.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, survey_id, computed_at, computed_by, aggregates, response_rate, enps`

// Create inserts a new immutable snapshot row.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.ReportSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.ComputedAt.IsZero() {
		snapshot.ComputedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_snapshots (id, survey_id, computed_at, computed_by, aggregates, response_rate, enps)
VALUES (:id, :survey_id, :computed_at, :computed_by, :aggregates, :response_rate, :enps)`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("insert report snapshot: %w", err)
	}
	return nil
}

// GetByID returns one snapshot.
func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*models.ReportSnapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_snapshots WHERE id = $1`, snapshotColumns)
	var snapshot models.ReportSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, id); err != nil {
		return nil, fmt.Errorf("get report snapshot: %w", err)
	}
	return &snapshot, nil
}

// Latest returns the most recent snapshot for a survey.
func (r *SnapshotRepository) Latest(ctx context.Context, surveyID string) (*models.ReportSnapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_snapshots WHERE survey_id = $1 ORDER BY computed_at DESC LIMIT 1`, snapshotColumns)
	var snapshot models.ReportSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, surveyID); err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// ListBySurvey returns snapshot history for a survey, newest first.
func (r *SnapshotRepository) ListBySurvey(ctx context.Context, surveyID string, limit int) ([]models.ReportSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM report_snapshots WHERE survey_id = $1 ORDER BY computed_at DESC LIMIT $2`, snapshotColumns)
	var snapshots []models.ReportSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, surveyID, limit); err != nil {
		return nil, fmt.Errorf("list report snapshots: %w", err)
	}
	return snapshots, nil
}
