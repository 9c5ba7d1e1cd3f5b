package contributions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

// Repository wires together contribution persistence helpers. Status writes
// are compare-and-swap updates against status = pending so racing decisions
// resolve in the store, never in memory.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new pending contribution.
func (r *Repository) Create(ctx context.Context, contribution *models.Contribution) (*models.Contribution, error) {
	if err := r.db.WithContext(ctx).Create(contribution).Error; err != nil {
		return nil, err
	}
	return contribution, nil
}

// FindByID loads the contribution without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	var contribution models.Contribution
	if err := r.db.WithContext(ctx).First(&contribution, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contribution, nil
}

// UpdatePendingPayload replaces vehicle_data and the target reference while
// the contribution is still pending. Returns false when the row was already
// terminal (or gone) and nothing changed.
func (r *Repository) UpdatePendingPayload(ctx context.Context, id uuid.UUID, targetVehicleID *uuid.UUID, data json.RawMessage) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"target_vehicle_id": targetVehicleID,
			"vehicle_data":      data,
			"updated_at":        time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

// MarkApproved flips pending to approved. Returns false when the CAS lost.
func (r *Repository) MarkApproved(ctx context.Context, id uuid.UUID, decidedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"status":      enums.ContributionStatusApproved,
			"approved_at": decidedAt,
			"updated_at":  decidedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkRejected flips pending to rejected and stores the moderator's comment.
func (r *Repository) MarkRejected(ctx context.Context, id uuid.UUID, comment string, decidedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"status":            enums.ContributionStatusRejected,
			"rejection_comment": comment,
			"rejected_at":       decidedAt,
			"updated_at":        decidedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkCancelled flips pending to cancelled.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, decidedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("id = ? AND status = ?", id, enums.ContributionStatusPending).
		Updates(map[string]any{
			"status":       enums.ContributionStatusCancelled,
			"cancelled_at": decidedAt,
			"updated_at":   decidedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// Delete removes the contribution row. Reviews cascade at the schema level;
// the reconciler still deletes them explicitly so the pass works on stores
// without cascade support.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Contribution{}).Error
}

// List returns a cursor-paginated page, newest first, with vote counts
// recomputed from review rows.
func (r *Repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.db.WithContext(ctx).Model(&models.Contribution{})
	if filters.Status != nil {
		qb = qb.Where("status = ?", *filters.Status)
	}
	if filters.ChangeType != nil {
		qb = qb.Where("change_type = ?", *filters.ChangeType)
	}
	if filters.UserID != nil {
		qb = qb.Where("user_id = ?", *filters.UserID)
	}
	if filters.TargetVehicleID != nil {
		qb = qb.Where("target_vehicle_id = ?", *filters.TargetVehicleID)
	}
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Contribution
	err = qb.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	counts, err := r.voteCounts(ctx, contributionIDs(rows))
	if err != nil {
		return nil, err
	}

	dtos := make([]ContributionDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ContributionDTO{Contribution: row, VoteCount: counts[row.ID]})
	}
	return &ListResult{Contributions: dtos, NextCursor: nextCursor}, nil
}

// ListPendingByTarget returns every pending UPDATE contribution aimed at the
// vehicle, excluding the given contribution id.
func (r *Repository) ListPendingByTarget(ctx context.Context, vehicleID, excludeID uuid.UUID) ([]models.Contribution, error) {
	var rows []models.Contribution
	err := r.db.WithContext(ctx).
		Where("status = ? AND change_type = ? AND target_vehicle_id = ?",
			enums.ContributionStatusPending, enums.ChangeTypeUpdate, vehicleID).
		Where("id <> ?", excludeID).
		Order("created_at DESC").
		Find(&rows).
		Error
	return rows, err
}

// ListPendingByChangeType returns all pending contributions of one change
// type. The clusterer filters make/model/year in memory because the candidate
// payload is opaque to the store.
func (r *Repository) ListPendingByChangeType(ctx context.Context, changeType enums.ChangeType) ([]models.Contribution, error) {
	var rows []models.Contribution
	err := r.db.WithContext(ctx).
		Where("status = ? AND change_type = ?", enums.ContributionStatusPending, changeType).
		Order("created_at DESC").
		Find(&rows).
		Error
	return rows, err
}

// FindOrphans returns UPDATE contributions whose target vehicle no longer
// exists.
func (r *Repository) FindOrphans(ctx context.Context) ([]OrphanRecord, error) {
	var records []OrphanRecord
	err := r.db.WithContext(ctx).
		Table("contributions c").
		Select("c.id AS contribution_id, c.target_vehicle_id AS missing_vehicle_id").
		Joins("LEFT JOIN vehicles v ON v.id = c.target_vehicle_id").
		Where("c.change_type = ? AND c.target_vehicle_id IS NOT NULL AND v.id IS NULL", enums.ChangeTypeUpdate).
		Order("c.created_at ASC").
		Scan(&records).
		Error
	return records, err
}

func contributionIDs(rows []models.Contribution) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func (r *Repository) voteCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	type countRow struct {
		ContributionID uuid.UUID
		Total          int
	}
	var rows []countRow
	err := r.db.WithContext(ctx).
		Model(&models.ContributionReview{}).
		Select("contribution_id, COUNT(*) AS total").
		Where("contribution_id IN ?", ids).
		Group("contribution_id").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ContributionID] = row.Total
	}
	return counts, nil
}
