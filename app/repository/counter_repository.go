package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MartenSchelker/QuotaGate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// counterRepository implements the CounterRepository interface
type counterRepository struct {
	db *gorm.DB
}

// NewCounterRepository creates a new counter repository instance
func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepository{db: db}
}

// GetCount reads the counter for one period window. Absence is not an error.
func (r *counterRepository) GetCount(ctx context.Context, userID, periodType string, periodStart time.Time) (int64, error) {
	var row models.RateLimitCounter
	err := r.db.WithContext(ctx).
		Select("request_count").
		Where("user_id = ? AND period_type = ? AND period_start = ?", userID, periodType, periodStart.UTC()).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.RequestCount, nil
}

// IncrementOrInsert upserts the counter row in one round-trip. The unique
// index on (user_id, period_type, period_start) serializes concurrent callers
// and the increment expression keeps the update associative.
func (r *counterRepository) IncrementOrInsert(ctx context.Context, userID, periodType string, periodStart, now time.Time) error {
	row := models.RateLimitCounter{
		UserID:       userID,
		PeriodType:   periodType,
		PeriodStart:  periodStart.UTC(),
		RequestCount: 1,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "period_type"}, {Name: "period_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count": gorm.Expr("request_count + 1"),
			"updated_at":    now.UTC(),
		}),
	}).Create(&row).Error
}

// History returns the most recent counter rows for one period type.
func (r *counterRepository) History(ctx context.Context, userID, periodType string, limit int) ([]models.RateLimitCounter, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var rows []models.RateLimitCounter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND period_type = ?", userID, periodType).
		Order("period_start DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
